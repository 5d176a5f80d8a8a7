package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const readinessTimeout = 2 * time.Second

// health is a liveness probe for Docker/Kubernetes.
// Returns 200 OK with {"status":"ok"} unconditionally.
func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness is a readiness probe. When a pool is configured it pings the
// database; a failed ping returns 503 so load balancers stop routing here.
// Without a pool the server is ready as soon as it serves requests.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", logger)
			return
		}

		stat := pool.Stat()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ready",
			"total_conns":       stat.TotalConns(),
			"idle_conns":        stat.IdleConns(),
			"acquired_conns":    stat.AcquiredConns(),
			"max_conns":         stat.MaxConns(),
			"new_conns_count":   stat.NewConnsCount(),
			"acquire_count":     stat.AcquireCount(),
			"canceled_acquires": stat.CanceledAcquireCount(),
		}, logger)
	}
}
