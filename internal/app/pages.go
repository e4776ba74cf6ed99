package app

import (
	"net/http"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
)

// pageView is rendered by the frontend; the gateway only proves the request was let through.
type pageView struct {
	Page      string `json:"page"`
	UserID    string `json:"userId,omitempty"`
	Role      string `json:"role,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
}

func pageHandler(w http.ResponseWriter, r *http.Request) {
	view := pageView{Page: r.URL.Path}
	if tok, ok := guard.TokenFromContext(r.Context()); ok {
		view.UserID = tok.UserID
		view.Role = string(tok.Role)
		view.CSRFToken = tok.CSRFToken
	}
	httpx.JSON(w, http.StatusOK, view)
}

// dashboardHub forwards each role to its own dashboard.
func dashboardHub(w http.ResponseWriter, r *http.Request) {
	tok, ok := guard.TokenFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, access.DashboardFor(tok.Role), http.StatusSeeOther)
}

func apiPlaceholder(w http.ResponseWriter, r *http.Request) {
	tok, ok := guard.TokenFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"path":   r.URL.Path,
		"method": r.Method,
		"role":   string(tok.Role),
	})
}
