package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 45 * time.Second
)

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// handleStream pushes every committed preference change in the session to
// the websocket as JSON. When the listener is dropped (it fell behind, the
// session ended or the registry closed) the socket gets a 1001 close frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, "broadcast disabled", http.StatusNotFound)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	// Subscribe before the handshake completes so a client that has
	// connected never misses an event published right after.
	sub := s.registry.Subscribe(sessionID)
	defer s.registry.Unsubscribe(sub.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("gateway", "Websocket upgrade failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	readerDone := make(chan struct{})
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.InfoCF("gateway", "Stream listener connected", map[string]interface{}{
		"session_id":  sessionID,
		"listener_id": sub.ID,
	})

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}
