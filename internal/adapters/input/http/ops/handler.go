package ops

import (
    "context"
    "log/slog"
    "net/http"
    "time"

    "user-events-engine/pkg/logattr"

    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
    checks map[string]HealthCheck
    logger *slog.Logger
    mux    *http.ServeMux
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(checks map[string]HealthCheck, logger *slog.Logger) *Handler {
    h := &Handler{
        checks: checks,
        logger: logger,
        mux:    http.NewServeMux(),
    }
    h.mux.HandleFunc("GET /healthz", h.healthz)
    h.mux.Handle("GET /metrics", promhttp.Handler())
    return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    h.mux.ServeHTTP(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
    defer cancel()
    for name, check := range h.checks {
        if err := check(ctx); err != nil {
            h.logger.Warn(
                "health check failed",
                logattr.Component(name),
                logattr.Error(err.Error()),
            )
            http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
            return
        }
    }
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte("ok"))
}
