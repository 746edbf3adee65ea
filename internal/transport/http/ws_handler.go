package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.SessionService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex  int    `json:"questionIndex"`
	SelectedOption string `json:"selectedOption"`
	ElapsedMs      int64  `json:"elapsedMs"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq,omitempty"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live
// session use cases. The session's host drives lifecycle messages over the
// same connection type participants answer on; a host connection is a
// spectator, not a scored participant.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if sessionID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing sessionId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	hostID, err := h.service.HostOf(sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	isHost := hostID == userID

	if !isHost {
		if _, err := h.service.Join(r.Context(), sessionID, userID, displayName); err != nil {
			_ = conn.WriteJSON(errorMessage(err))
			return
		}
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Seq: update.Seq, Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Initial snapshot so reconnecting clients never depend on the stream.
	if snap, err := h.service.Snapshot(r.Context(), sessionID); err == nil {
		send <- outboundMessage[any]{Type: "snapshot", Payload: snap}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(r, send, sessionID, userID, isHost, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(r *http.Request, send chan outboundMessage[any], sessionID, userID string, isHost bool, inbound inboundMessage) {
	ctx := r.Context()
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage(domain.ErrInvalidSubmission)
			return
		}
		result, _, err := h.service.SubmitAnswer(ctx, sessionID, userID, payload.QuestionIndex, payload.SelectedOption, payload.ElapsedMs)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: result}
	case "snapshot":
		snap, err := h.service.Snapshot(ctx, sessionID)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "snapshot", Payload: snap}
	case "open", "start", "next", "end":
		if !isHost {
			send <- errorMessage(domain.ErrNotHost)
			return
		}
		var err error
		switch inbound.Type {
		case "open":
			err = h.service.OpenSession(ctx, sessionID, userID)
		case "start":
			err = h.service.Start(ctx, sessionID, userID)
		case "next":
			err = h.service.AdvanceQuestion(ctx, sessionID, userID)
		case "end":
			err = h.service.EndSession(ctx, sessionID, userID)
		}
		if err != nil {
			send <- errorMessage(err)
		}
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "UNSUPPORTED", Message: "unsupported message type"}}
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "PARTICIPANT_NOT_FOUND"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "QUIZ_NOT_FOUND"
	case errors.Is(err, domain.ErrQuizInvalid):
		return "QUIZ_INVALID"
	case errors.Is(err, domain.ErrInvalidSubmission):
		return "INVALID_SUBMISSION"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return "DUPLICATE_SUBMISSION"
	case errors.Is(err, domain.ErrStaleQuestion):
		return "STALE_QUESTION"
	case errors.Is(err, domain.ErrSessionNotLive):
		return "SESSION_NOT_LIVE"
	case errors.Is(err, domain.ErrSessionEnded):
		return "SESSION_ENDED"
	case errors.Is(err, domain.ErrSessionNotWaiting):
		return "SESSION_NOT_WAITING"
	case errors.Is(err, domain.ErrNotHost):
		return "NOT_HOST"
	default:
		return "INTERNAL"
	}
}
