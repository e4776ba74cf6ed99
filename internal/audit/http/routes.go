package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)
	r.Get("/", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if tok, ok := guard.TokenFromContext(r.Context()); ok && tok.UserID != "" {
		return "user:" + tok.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
