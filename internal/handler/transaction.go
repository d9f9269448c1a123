package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/kas-flash/stream-server-go/internal/errors"
	"github.com/kas-flash/stream-server-go/internal/httputil"
	"github.com/kas-flash/stream-server-go/internal/service"
)

type TransactionHandler struct {
	streamingService *service.StreamingService
}

func NewTransactionHandler(streamingService *service.StreamingService) *TransactionHandler {
	return &TransactionHandler{
		streamingService: streamingService,
	}
}

func (h *TransactionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}/hash", h.UpdateHash)
	r.Post("/{id}/failed", h.MarkFailed)

	return r
}

type updateHashRequest struct {
	SessionID string `json:"sessionId"`
	TxHash    string `json:"txHash"`
}

// POST /api/transactions/{id}/hash
//
// Reported by the signer bridge after the wallet sent the funds.
func (h *TransactionHandler) UpdateHash(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateHashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	if req.SessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionId"))
		return
	}
	if req.TxHash == "" {
		httputil.WriteError(w, apperrors.MissingRequired("txHash"))
		return
	}

	h.streamingService.UpdateTransactionHash(req.SessionID, id, req.TxHash)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type markFailedRequest struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// POST /api/transactions/{id}/failed
//
// A signer failure is recorded on the transaction, never escalated to an
// HTTP error: the endpoint itself always succeeds.
func (h *TransactionHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req markFailedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	if req.SessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	reason := req.Error
	if reason == "" {
		reason = "Unknown error"
	}

	h.streamingService.MarkTransactionFailed(req.SessionID, id, reason)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
