package guard

import (
	"net/http"
	"time"

	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/session"
)

// Reason names the terminal state of an evaluation.
type Reason string

// Terminal states. Everything other than ReasonPublic and ReasonGranted is a rejection.
const (
	ReasonPublic             Reason = "public"
	ReasonGranted            Reason = "granted"
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonAccountDisabled    Reason = "account_disabled"
	ReasonAccountSuspended   Reason = "account_suspended"
	ReasonAccountBanned      Reason = "account_banned"
	ReasonSessionExpired     Reason = "session_expired"
	ReasonAccessDenied       Reason = "access_denied"
	ReasonCSRFInvalid        Reason = "csrf_invalid"
	ReasonSuspiciousActivity Reason = "suspicious_activity"
	ReasonRateLimitExceeded  Reason = "rate_limit_exceeded"
	ReasonInternalError      Reason = "internal_error"
)

// Error codes placed in the error query parameter of redirects.
const (
	CodeAccountDisabled  = "AccountDisabled"
	CodeAccountSuspended = "AccountSuspended"
	CodeAccountBanned    = "AccountBanned"
	CodeSessionExpired   = "SessionExpired"
)

var auditActions = map[Reason]string{
	ReasonGranted:            audit.ActionAccessGranted,
	ReasonUnauthenticated:    audit.ActionUnauthenticated,
	ReasonAccountDisabled:    audit.ActionAccountDisabled,
	ReasonAccountSuspended:   audit.ActionAccountSuspended,
	ReasonAccountBanned:      audit.ActionAccountSuspended,
	ReasonSessionExpired:     audit.ActionSessionExpired,
	ReasonAccessDenied:       audit.ActionAccessDenied,
	ReasonCSRFInvalid:        audit.ActionCSRFInvalid,
	ReasonSuspiciousActivity: audit.ActionSuspiciousActivity,
	ReasonRateLimitExceeded:  audit.ActionRateLimitExceeded,
	ReasonInternalError:      audit.ActionInternalError,
}

// Decision is the result of evaluating one request.
type Decision struct {
	Reason Reason
	// Status is the HTTP status of a rejection; redirects use http.StatusSeeOther.
	Status int
	// Location is set for redirects.
	Location   string
	RetryAfter time.Duration
	Token      *session.Token
	Err        error
	// Details end up in the audit entry.
	Details map[string]any
}

// Rejected reports whether the request must not reach the handler.
func (d Decision) Rejected() bool {
	return d.Reason != ReasonPublic && d.Reason != ReasonGranted
}

// Redirect reports whether the rejection is a redirect.
func (d Decision) Redirect() bool {
	return d.Location != "" && d.Status == http.StatusSeeOther
}
