// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	platformmetrics "diligence/internal/platform/metrics"
	"diligence/pkg/platform/httputil"
	"diligence/pkg/platform/middleware/requestid"
	"diligence/pkg/platform/middleware/requesttime"
)

const readyTimeout = 2 * time.Second

// Registrar mounts a module's endpoints on the router.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig holds what the router needs besides module handlers.
type RouterConfig struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// Ready backs /readyz. Nil omits the endpoint.
	Ready func(ctx context.Context) error
	// Throttle wraps module routes. Nil disables it.
	Throttle func(http.Handler) http.Handler
}

// NewRouter wires health, metrics and every module handler behind the
// shared middleware stack.
func NewRouter(cfg RouterConfig, modules ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Ready != nil {
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		})
	}
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", platformmetrics.Handler(cfg.Registry))
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
		}
		if cfg.Throttle != nil {
			r.Use(cfg.Throttle)
		}
		for _, m := range modules {
			m.Register(r)
		}
	})
	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				return
			}
			logger.InfoContext(r.Context(), "http request",
				"request_id", ww.Header().Get(requestid.Header),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
