// Package server wires the HTTP routes and middleware around the handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"route-optimizer/internal/handlers"
	"route-optimizer/internal/metrics"
)

// Server wraps the HTTP server and its handler
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
}

// New creates a server (does not start it). writeTimeout should exceed the
// optimize timeout so slow plans still reach the client.
func New(addr string, h *handlers.Handler, writeTimeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Routes(h),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		addr: addr,
	}
}

// Routes builds the full handler chain
func Routes(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.Middleware(pattern, fn))
	}

	route("POST /api/v1/routes/optimize", h.HandleOptimizeRoute)
	route("GET /api/v1/address-search", h.HandleAddressSearch)
	route("GET /api/v1/health", h.HandleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return requestIDMiddleware(loggingMiddleware(corsMiddleware(mux)))
}

// Start listens and serves in the background. It returns the bound address,
// which differs from the configured one when the port is 0.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Info().Str("component", "http").Str("addr", actualAddr).Msg("starting server")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("component", "http").Err(err).Msg("server error")
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
