// Package gateway is the websocket delivery boundary: it accepts run
// requests, streams canonical events back as JSON frames, merges the plan
// side channel into the outgoing stream, and forwards approval decisions
// into the active run.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/internal/observability"
	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
)

// RunStarter launches one run and returns its event stream.
type RunStarter interface {
	Run(ctx context.Context, rc *engine.RunContext, middlewares []engine.Middleware) <-chan event.Event
}

// Server is the websocket gateway.
type Server struct {
	port        int
	starter     RunStarter
	middlewares []engine.Middleware
	server      *http.Server
	upgrader    websocket.Upgrader
	logger      zerolog.Logger

	connMu    sync.Mutex
	connCount int
}

// Config holds gateway configuration.
type Config struct {
	Port        int
	Starter     RunStarter
	Middlewares []engine.Middleware
	Logger      zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Starter == nil {
		return nil, fmt.Errorf("run starter is required")
	}

	return &Server{
		port:        cfg.Port,
		starter:     cfg.Starter,
		middlewares: cfg.Middlewares,
		logger:      cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Start begins serving. It does not block.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Shutting down gateway server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.trackConnection(1)
	defer s.trackConnection(-1)

	c := newConnection(conn, s.starter, s.middlewares, s.logger)
	c.serve(r.Context())
}

func (s *Server) trackConnection(delta int) {
	s.connMu.Lock()
	s.connCount += delta
	count := s.connCount
	s.connMu.Unlock()
	observability.SetGatewayConnections(count)
}
