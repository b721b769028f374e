// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"formplane/internal/controller/handlers"
	"formplane/internal/controller/middleware"
)

// Options configure the HTTP surface around the handlers.
type Options struct {
	// APIToken guards mutating routes when non-empty.
	APIToken string

	// RateLimit is the sustained mutating requests per second per client.
	// Zero disables limiting.
	RateLimit      float64
	RateLimitBurst int

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, deps handlers.Dependencies, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      Routes(deps, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Routes builds the full handler tree.
func Routes(deps handlers.Dependencies, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}
	h := handlers.New(deps)

	limiter := middleware.NewRateLimiter(middleware.WithLimit(opts.RateLimit, opts.RateLimitBurst))
	authMW := middleware.RequireToken(opts.APIToken)
	mutating := func(fn http.HandlerFunc) http.Handler {
		return authMW(limiter.Middleware()(fn))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /entities", mutating(h.CreateEntity))
	mux.Handle("PUT /entities/{id}", mutating(h.UpdateEntity))
	mux.Handle("DELETE /entities/{id}", mutating(h.DeleteEntity))
	mux.Handle("POST /entities/{id}/retry", mutating(h.RetryEntity))

	mux.HandleFunc("GET /entities", h.ListEntities)
	mux.HandleFunc("GET /entities/{id}", h.GetEntity)
	mux.HandleFunc("GET /entities/{id}/status", h.GetEntityStatus)

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var handler http.Handler = mux
	handler = middleware.AccessLog(opts.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
