package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coworkhub/coworkhub/internal/access"
	audithttp "github.com/coworkhub/coworkhub/internal/audit/http"
	"github.com/coworkhub/coworkhub/internal/auth"
	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/observability"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
	"github.com/coworkhub/coworkhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Guard        *guard.Guard
	AuthHandler  *auth.Handler
	AuditHandler *audithttp.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
}

var publicPages = []string{
	"/", "/login", "/register", "/forgot-password", "/reset-password", "/verify-email",
	access.UnauthorizedPath, "/account/suspended", "/about", "/contact", "/pricing", "/spaces",
}

// NewRouter constructs the chi.Router behind the access guard.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Guard:   params.Guard,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, path := range publicPages {
		r.Get(path, pageHandler)
	}
	r.Get("/blog", pageHandler)
	r.Get("/blog/*", pageHandler)
	r.Get("/events", pageHandler)
	r.Get("/events/*", pageHandler)

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", dashboardHub)
		r.HandleFunc("/*", pageHandler)
	})

	if params.AuthHandler != nil {
		r.Route("/api/auth", params.AuthHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/api/admin/audit", params.AuditHandler.MountRoutes)
	}
	r.HandleFunc("/api/*", apiPlaceholder)

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		http.NotFound(w, r)
	})

	return r
}
