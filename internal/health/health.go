// Package health exposes the operational HTTP surface of the pgbridge
// binaries: a database-backed health check, the pool bookkeeping snapshot,
// and the prometheus metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pgbridge/internal/pool"
)

// pingTimeout bounds the health-check round trip.
const pingTimeout = 2 * time.Second

// Pinger verifies database reachability; implemented by *db.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatSource provides the pool bookkeeping snapshot; implemented by
// *db.Client.
type StatSource interface {
	Stat() pool.Stat
}

// NewRouter builds the ops router. metricsHandler may be nil to omit the
// /metrics endpoint; logger may be nil.
func NewRouter(p Pinger, s StatSource, metricsHandler http.Handler, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, s.Stat())
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
