package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coworkhub/coworkhub/internal/observability"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
)

// NewMetricsServer exposes the registry on a listener that bypasses the
// access guard, mirroring the worker's scrape endpoint.
func NewMetricsServer(addr string, metrics *observability.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
