package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/observability"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Guard   *guard.Guard
	Metrics *observability.Metrics
}

// MiddlewareStack installs the gateway middleware chain. The guard runs
// after request id and metrics so rejections are logged and counted.
// Forwarding headers rewrite the client address only when the config trusts them.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var middlewares []func(http.Handler) http.Handler
	if cfg.Config != nil && cfg.Config.TrustProxyHeaders {
		middlewares = append(middlewares, middleware.RealIP)
	}
	middlewares = append(middlewares,
		middleware.RequestID,
		requestLogger(logger),
		middleware.Recoverer,
	)
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	if cfg.Guard != nil {
		middlewares = append(middlewares, cfg.Guard.Middleware)
	}
	return append(middlewares,
		middleware.Timeout(timeout),
		middleware.Compress(5),
	)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_ip", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
