package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/dotsetgreg/repcue/pkg/store"
	"github.com/go-chi/chi/v5"
)

type messageRequest struct {
	SessionID  string            `json:"session_id"`
	UserID     string            `json:"user_id"`
	Text       string            `json:"text"`
	Channel    string            `json:"channel,omitempty"`
	ReceivedAt *time.Time        `json:"received_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type messageResponse struct {
	Reply     string             `json:"reply"`
	Phase     conversation.Phase `json:"phase,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// pairView is the read model of one member's preferences in a session.
type pairView struct {
	SessionID     string                 `json:"session_id"`
	UserID        string                 `json:"user_id"`
	Phase         conversation.Phase     `json:"phase"`
	PendingPrompt string                 `json:"pending_prompt,omitempty"`
	Record        preferences.FlatRecord `json:"record"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func newPairView(st conversation.State) pairView {
	v := pairView{
		SessionID: st.SessionID,
		UserID:    st.UserID,
		Phase:     st.Phase,
		Record:    st.Record.Flatten(),
		UpdatedAt: st.UpdatedAt,
	}
	if st.Pending != nil {
		v.PendingPrompt = st.Pending.Text()
	}
	return v
}

// statusFor maps engine errors to HTTP status codes and reports whether the
// client should resend.
func statusFor(err error) (int, bool) {
	switch {
	case err == nil:
		return http.StatusOK, false
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, conversation.ErrEngineClosed),
		errors.Is(err, conversation.ErrPairBusy):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, conversation.ErrInvalidState):
		return http.StatusConflict, false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, true
	}
	return http.StatusInternalServerError, false
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}

	msg := bus.InboundMessage{
		ID:        r.Header.Get("X-Request-Id"),
		Channel:   req.Channel,
		ChatID:    req.SessionID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Text:      req.Text,
		Metadata:  req.Metadata,
	}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = *req.ReceivedAt
	}
	if err := msg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reply, err := s.engine.Handle(r.Context(), msg)
	status, retryable := statusFor(err)
	resp := messageResponse{Reply: reply, Retryable: retryable}
	if err != nil {
		resp.Error = err.Error()
		logger.WarnCF("gateway", "Check-in failed", map[string]interface{}{
			"session_id": msg.SessionID,
			"user_id":    msg.UserID,
			"status":     status,
			"error":      err.Error(),
		})
		if retryable {
			w.Header().Set("Retry-After", "5")
		}
	} else if st, perr := s.engine.PairState(r.Context(), msg.SessionID, msg.UserID); perr == nil {
		resp.Phase = st.Phase
	}
	writeJSON(w, status, resp)
}

func (s *Server) handlePairPreferences(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := chi.URLParam(r, "userID")

	st, err := s.engine.PairState(r.Context(), sessionID, userID)
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, newPairView(st))
}

func (s *Server) handleSessionPreferences(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	states, err := s.engine.SessionRecords(r.Context(), sessionID)
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, status, err)
		return
	}
	views := make([]pairView, 0, len(states))
	for _, st := range states {
		views = append(views, newPairView(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"members":    views,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	n, err := s.engine.EndSession(r.Context(), sessionID)
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, status, err)
		return
	}
	dropped := 0
	if s.registry != nil {
		dropped = s.registry.DropSession(sessionID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":        sessionID,
		"states_deleted":    n,
		"listeners_dropped": dropped,
	})
}
