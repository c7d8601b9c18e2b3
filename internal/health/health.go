// Package health serves the liveness and readiness probes.
//
// Liveness answers "ok" without touching any dependency, so that an
// orchestrator never restarts the process because the database or the
// refresh endpoint is slow. Readiness is the probe that reaches the database.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/dbconn"
	"github.com/openkcm/session-keeper/internal/serviceerr"
)

const DefaultReadinessTimeout = 2 * time.Second

// EngineSource is satisfied by *dbconn.Manager.
type EngineSource interface {
	Get(ctx context.Context) (dbconn.Engine, error)
}

// Liveness always answers 200 "ok".
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Readiness answers 200 "ready" once an engine can be obtained and pinged
// within timeout, and 503 otherwise.
func Readiness(engines EngineSource, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := check(ctx, engines); err != nil {
			slogctx.Warn(ctx, "Readiness check failed", "error", err)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "unavailable",
				"error":  string(serviceerr.CodeConnectionUnavailable),
			})

			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

func check(ctx context.Context, engines EngineSource) error {
	engine, err := engines.Get(ctx)
	if err != nil {
		return err
	}

	if err := engine.Ping(ctx); err != nil {
		return serviceerr.ErrConnectionUnavailable.Wrap(err)
	}

	return nil
}
