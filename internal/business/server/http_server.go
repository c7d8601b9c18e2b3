package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/config"
	"github.com/openkcm/session-keeper/internal/grant"
	"github.com/openkcm/session-keeper/internal/health"
	"github.com/openkcm/session-keeper/internal/middleware/bearer"
)

// Handlers are the application endpoints served by the HTTP server.
type Handlers struct {
	Grants *grant.Handler
	Auth   bearer.Authenticator

	// Engines backs the readiness probe. When nil, readiness follows liveness.
	Engines health.EngineSource
}

func newMux(cfg *config.Config, m *meters, h Handlers) *http.ServeMux {
	traced := newTraceMiddleware(cfg, m)

	readiness := health.Liveness()
	if h.Engines != nil {
		readiness = health.Readiness(h.Engines, health.DefaultReadinessTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", health.Liveness())
	mux.Handle("GET /readyz", readiness)
	mux.Handle("POST /auth/refresh", traced("refresh", http.HandlerFunc(h.Grants.Refresh)))
	mux.Handle("POST /auth/logout", traced("logout", http.HandlerFunc(h.Grants.Logout)))
	mux.Handle("GET /v1/session", traced("session", bearer.Middleware(h.Auth)(http.HandlerFunc(h.Grants.Session))))

	return mux
}

// createHTTPServer creates an API http server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, m *meters, h Handlers) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newMux(cfg, m, h),
	}
}

// StartHTTPServer starts the HTTP server using the given config and blocks
// until ctx is done.
func StartHTTPServer(ctx context.Context, cfg *config.Config, h Handlers) error {
	m, err := initMeters(ctx, cfg)
	if err != nil {
		return err
	}

	server := createHTTPServer(ctx, cfg, m, h)

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
