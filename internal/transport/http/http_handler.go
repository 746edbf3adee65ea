package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// APIHandler exposes the session lifecycle over plain HTTP. Clients that
// cannot hold a websocket open use these endpoints to create sessions and
// poll standings.
type APIHandler struct {
	service *app.SessionService
	log     zerolog.Logger
}

func NewAPIHandler(service *app.SessionService, log zerolog.Logger) *APIHandler {
	return &APIHandler{service: service, log: log.With().Str("component", "api").Logger()}
}

// Register mounts the REST routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{id}", h.getSnapshot)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.getLeaderboard)
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.QuizID == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "quizId and hostId are required")
		return
	}

	info, err := h.service.CreateSession(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *APIHandler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Leaderboard)
}

func (h *APIHandler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrQuizInvalid),
		errors.Is(err, domain.ErrInvalidSubmission):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrSessionNotLive),
		errors.Is(err, domain.ErrSessionNotWaiting),
		errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrStaleQuestion):
		status = http.StatusConflict
	default:
		h.log.Error().Err(err).Msg("unhandled service error")
	}
	writeError(w, status, errorCode(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
