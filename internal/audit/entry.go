// Package audit records security events off the request path.
package audit

import (
	"context"
	"errors"
	"time"
)

// Actions written by the request guard.
const (
	ActionSuspiciousActivity = "SUSPICIOUS_ACTIVITY"
	ActionRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ActionUnauthenticated    = "UNAUTHENTICATED"
	ActionAccountDisabled    = "ACCOUNT_DISABLED"
	ActionAccountSuspended   = "ACCOUNT_SUSPENDED"
	ActionSessionExpired     = "SESSION_EXPIRED"
	ActionAccessDenied       = "ACCESS_DENIED"
	ActionCSRFInvalid        = "CSRF_INVALID"
	ActionAccessGranted      = "ACCESS_GRANTED"
	ActionInternalError      = "INTERNAL_ERROR"
	ActionLogin              = "LOGIN"
	ActionLogout             = "LOGOUT"
)

// ErrInvalidEntry is returned by sinks for entries missing required fields.
var ErrInvalidEntry = errors.New("audit: entry requires action and resource")

// Entry is one security audit record. Entries are append-only.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Validate checks the fields every sink relies on.
func (e Entry) Validate() error {
	if e.Action == "" || e.Resource == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Sink persists entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry Entry) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// MultiSink fans an entry out to every sink and joins their errors.
type MultiSink []Sink

// Write forwards entry to all sinks.
func (m MultiSink) Write(ctx context.Context, entry Entry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Write(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
