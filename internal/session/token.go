package session

import (
	"errors"
	"time"

	"github.com/coworkhub/coworkhub/internal/access"
)

// Status is the account state captured when the session was issued.
type Status string

// Account states.
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

var (
	// ErrNoToken indicates the request carried no session token.
	ErrNoToken = errors.New("session: token missing")
	// ErrInvalidToken indicates a malformed, forged or unparsable token.
	ErrInvalidToken = errors.New("session: token invalid")
	// ErrRevoked indicates the session was ended by logout.
	ErrRevoked = errors.New("session: token revoked")
)

// Token is the read-only identity the guard evaluates.
type Token struct {
	ID        string
	UserID    string
	Role      access.Role
	IsActive  bool
	Status    Status
	ExpiresAt time.Time
	CSRFToken string
}

// Expired reports whether the token is stale at now.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt.IsZero() || !now.Before(t.ExpiresAt)
}
