package session

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// CookieName carries the session token for browser navigation.
const CookieName = "cowork_session"

// Revocations tracks sessions ended before their natural expiry.
type Revocations interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// Verifier extracts and validates the session token of a request.
type Verifier struct {
	manager     *Manager
	revocations Revocations
}

// NewVerifier builds a Verifier. revocations may be nil.
func NewVerifier(manager *Manager, revocations Revocations) *Verifier {
	return &Verifier{manager: manager, revocations: revocations}
}

// Verify returns the token bound to r. ErrNoToken, ErrInvalidToken and
// ErrRevoked describe caller problems; any other error is an internal failure.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (*Token, error) {
	raw := extract(r)
	if raw == "" {
		return nil, ErrNoToken
	}
	tok, err := v.manager.Parse(raw)
	if err != nil {
		return nil, err
	}
	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, tok.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrRevoked
		}
	}
	return tok, nil
}

func extract(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const bearer = "Bearer "
		if len(header) > len(bearer) && strings.EqualFold(header[:len(bearer)], bearer) {
			return strings.TrimSpace(header[len(bearer):])
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Cookie builds the session cookie for a signed token.
func Cookie(value string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
