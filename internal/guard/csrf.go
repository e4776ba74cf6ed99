package guard

import (
	"crypto/hmac"
	"net/http"

	"github.com/coworkhub/coworkhub/internal/session"
)

// Header and query parameter names accepted for the CSRF token.
const (
	CSRFHeader     = "X-CSRF-Token"
	XSRFHeader     = "X-XSRF-Token"
	CSRFQueryParam = "csrf"
)

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func csrfFromRequest(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	if token := r.Header.Get(XSRFHeader); token != "" {
		return token
	}
	return r.URL.Query().Get(CSRFQueryParam)
}

func validCSRF(expected, supplied string) bool {
	if expected == "" || supplied == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(supplied))
}

// CheckCSRF reports whether r carries the CSRF token bound to tok.
func CheckCSRF(r *http.Request, tok *session.Token) bool {
	if tok == nil {
		return false
	}
	return validCSRF(tok.CSRFToken, csrfFromRequest(r))
}
