package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kas-flash/stream-server-go/internal/service"
)

type MerchantHandler struct {
	streamingService *service.StreamingService
}

func NewMerchantHandler(streamingService *service.StreamingService) *MerchantHandler {
	return &MerchantHandler{
		streamingService: streamingService,
	}
}

func (h *MerchantHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.GetStats)

	return r
}

// GET /api/merchant/stats
func (h *MerchantHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.streamingService.GetMerchantStats())
}
