package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/kas-flash/stream-server-go/internal/errors"
	"github.com/kas-flash/stream-server-go/internal/httputil"
	"github.com/kas-flash/stream-server-go/internal/model"
	"github.com/kas-flash/stream-server-go/internal/service"
)

type SessionHandler struct {
	streamingService *service.StreamingService
}

func NewSessionHandler(streamingService *service.StreamingService) *SessionHandler {
	return &SessionHandler{
		streamingService: streamingService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/create", h.CreateSession)
	r.Post("/{id}/pause", h.PauseSession)
	r.Post("/{id}/resume", h.ResumeSession)
	r.Post("/{id}/end", h.EndSession)
	r.Get("/{id}", h.GetSession)

	return r
}

// POST /api/sessions/create
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var params model.CreateSessionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	session, err := h.streamingService.CreateSession(params)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// POST /api/sessions/{id}/pause
func (h *SessionHandler) PauseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.streamingService.PauseSession(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// POST /api/sessions/{id}/resume
func (h *SessionHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.streamingService.ResumeSession(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// POST /api/sessions/{id}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.streamingService.EndSession(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.streamingService.GetSession(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	transactions, err := h.streamingService.GetSessionTransactions(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":      session,
		"transactions": transactions,
	})
}
