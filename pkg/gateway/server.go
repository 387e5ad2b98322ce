// Package gateway exposes the conversation engine over HTTP: an inbound
// check-in webhook, preference reads, session teardown and a websocket feed
// of preference changes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dotsetgreg/repcue/pkg/broadcast"
	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// Engine is the part of conversation.Engine the gateway drives.
type Engine interface {
	Handle(ctx context.Context, msg bus.InboundMessage) (string, error)
	PairState(ctx context.Context, sessionID, userID string) (conversation.State, error)
	SessionRecords(ctx context.Context, sessionID string) ([]conversation.State, error)
	EndSession(ctx context.Context, sessionID string) (int, error)
}

// Pinger reports whether the backing store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router   *chi.Mux
	engine   Engine
	registry *broadcast.Registry
	ready    Pinger
	upgrader websocket.Upgrader
	addr     string
	http     *http.Server
}

// NewServer wires the routes. ready may be nil, in which case /ready always
// succeeds.
func NewServer(cfg config.GatewayConfig, engine Engine, registry *broadcast.Registry, ready Pinger) *Server {
	origins := []string(cfg.AllowedOrigins)
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		router:   chi.NewRouter(),
		engine:   engine,
		registry: registry,
		ready:    ready,
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Get("/sessions/{sessionID}/preferences", s.handleSessionPreferences)
		r.Get("/sessions/{sessionID}/users/{userID}/preferences", s.handlePairPreferences)
		r.Delete("/sessions/{sessionID}", s.handleEndSession)
		r.Get("/sessions/{sessionID}/stream", s.handleStream)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("gateway", "Gateway listening", map[string]interface{}{"addr": s.addr})
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	<-errCh
	logger.InfoC("gateway", "Gateway stopped")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.DebugCF("gateway", "Request served", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("gateway", "Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
