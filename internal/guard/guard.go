// Package guard is the request access-control middleware. Every request runs
// anomaly detection and rate limiting first, then the session state machine:
// classified, authenticated, status checked, authorized, csrf checked.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
	"github.com/coworkhub/coworkhub/internal/ratelimit"
	"github.com/coworkhub/coworkhub/internal/session"
)

// Default redirect targets.
const (
	DefaultLoginPath     = "/login"
	DefaultSuspendedPath = "/account/suspended"
)

// TokenVerifier resolves the session of a request.
type TokenVerifier interface {
	Verify(ctx context.Context, r *http.Request) (*session.Token, error)
}

// AuditRecorder receives audit entries without blocking.
type AuditRecorder interface {
	Record(entry audit.Entry)
}

// DecisionObserver is notified of every terminal state.
type DecisionObserver interface {
	ObserveDecision(reason string)
}

// Config wires the guard collaborators. Policy, Verifier and Headers are required.
type Config struct {
	Policy    *access.Policy
	Verifier  TokenVerifier
	Headers   *SecurityHeaders
	Limiter   *ratelimit.Limiter
	Anomalies *AnomalyDetector
	Audit     AuditRecorder
	Sampler   audit.Sampler
	Metrics   DecisionObserver
	Logger    *slog.Logger
	Now       func() time.Time

	LoginPath     string
	SuspendedPath string
}

// Guard evaluates requests against the access policy.
type Guard struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Guard, error) {
	if cfg.Policy == nil {
		return nil, errors.New("guard: policy required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("guard: token verifier required")
	}
	if cfg.Headers == nil {
		return nil, errors.New("guard: security headers required")
	}
	if cfg.Sampler == nil {
		cfg.Sampler = audit.RateSampler(0.05)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.SuspendedPath == "" {
		cfg.SuspendedPath = DefaultSuspendedPath
	}
	return &Guard{cfg: cfg}, nil
}

// Middleware runs the guard in front of next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		if !d.Rejected() {
			if err := g.cfg.Headers.Apply(w, r); err != nil {
				d = g.internalError(r, fmt.Errorf("guard: security headers: %w", err), nil)
			}
		}
		g.observe(r, d)
		if d.Rejected() {
			g.reject(w, r, d)
			return
		}
		ctx := r.Context()
		if d.Token != nil {
			if r.Method == http.MethodGet && d.Token.CSRFToken != "" {
				w.Header().Set(CSRFHeader, d.Token.CSRFToken)
			}
			ctx = ContextWithToken(ctx, d.Token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Evaluate runs the pre-checks and the state machine for r. It never panics:
// any internal failure becomes ReasonInternalError.
func (g *Guard) Evaluate(r *http.Request) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			d = g.internalError(r, fmt.Errorf("guard: panic: %v", rec), debug.Stack())
		}
	}()

	if pattern, hit := g.cfg.Anomalies.Match(r.URL); hit {
		return Decision{
			Reason:  ReasonSuspiciousActivity,
			Status:  http.StatusForbidden,
			Details: map[string]any{"pattern": pattern, "url": r.URL.RequestURI()},
		}
	}
	if d, limited := g.rateLimit(r); limited {
		return d
	}

	// START -> CLASSIFIED
	path := r.URL.Path
	if g.cfg.Policy.IsPublicRoute(path) {
		return Decision{Reason: ReasonPublic}
	}

	// CLASSIFIED -> AUTHENTICATED
	tok, err := g.cfg.Verifier.Verify(r.Context(), r)
	switch {
	case err == nil && tok != nil:
	case err == nil, errors.Is(err, session.ErrNoToken), errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrRevoked):
		return Decision{
			Reason:   ReasonUnauthenticated,
			Status:   http.StatusSeeOther,
			Location: g.loginURL(callbackFor(r), ""),
			Details:  map[string]any{"cause": causeOf(err)},
		}
	default:
		return g.internalError(r, fmt.Errorf("guard: verify token: %w", err), nil)
	}

	// AUTHENTICATED -> STATUS_CHECKED
	if d, rejected := g.checkStatus(r, tok); rejected {
		return d
	}

	// STATUS_CHECKED -> AUTHORIZED
	if !g.cfg.Policy.HasRouteAccess(tok.Role, path) {
		target := access.DashboardFor(tok.Role)
		if target == path {
			target = access.UnauthorizedPath
		}
		return Decision{
			Reason:   ReasonAccessDenied,
			Status:   http.StatusSeeOther,
			Location: target,
			Token:    tok,
			Details:  map[string]any{"role": string(tok.Role), "method": r.Method},
		}
	}

	// AUTHORIZED -> CSRF_CHECKED
	if isMutating(r.Method) && !CheckCSRF(r, tok) {
		return Decision{
			Reason:  ReasonCSRFInvalid,
			Status:  http.StatusForbidden,
			Token:   tok,
			Details: map[string]any{"role": string(tok.Role), "method": r.Method},
		}
	}

	// CSRF_CHECKED -> DONE
	return Decision{Reason: ReasonGranted, Token: tok, Details: map[string]any{"role": string(tok.Role), "method": r.Method}}
}

func (g *Guard) rateLimit(r *http.Request) (Decision, bool) {
	if g.cfg.Limiter == nil {
		return Decision{}, false
	}
	key := clientIP(r)
	res, err := g.cfg.Limiter.Allow(r.Context(), key)
	if err != nil {
		// Best effort: a broken counter store must not take the site down.
		g.cfg.Logger.Warn("rate limit store unavailable", slog.Any("error", err), slog.String("ip", key))
		return Decision{}, false
	}
	if res.Allowed {
		return Decision{}, false
	}
	return Decision{
		Reason:     ReasonRateLimitExceeded,
		Status:     http.StatusTooManyRequests,
		RetryAfter: res.RetryAfter,
		Details:    map[string]any{"count": res.Count, "limit": res.Limit, "retry_after_seconds": retryAfterSeconds(res.RetryAfter)},
	}, true
}

// SessionState reports why an authenticated token may not be used at now.
// Account status is checked before expiry.
func SessionState(tok *session.Token, now time.Time) (Reason, bool) {
	switch {
	case tok == nil:
		return ReasonUnauthenticated, true
	case !tok.IsActive:
		return ReasonAccountDisabled, true
	case tok.Status == session.StatusSuspended:
		return ReasonAccountSuspended, true
	case tok.Status == session.StatusBanned:
		return ReasonAccountBanned, true
	case tok.Expired(now):
		return ReasonSessionExpired, true
	}
	return "", false
}

// ProblemFor maps a rejection reason to the status, title and error code
// sent to API callers.
func ProblemFor(reason Reason) (int, string, string) {
	status, title := apiStatus(reason)
	return status, title, apiDetail(reason)
}

func (g *Guard) checkStatus(r *http.Request, tok *session.Token) (Decision, bool) {
	reason, rejected := SessionState(tok, g.cfg.Now())
	if !rejected {
		return Decision{}, false
	}
	d := Decision{
		Reason:  reason,
		Status:  http.StatusSeeOther,
		Token:   tok,
		Details: map[string]any{"role": string(tok.Role), "status": string(tok.Status)},
	}
	switch reason {
	case ReasonAccountDisabled:
		d.Location = g.loginURL("", CodeAccountDisabled)
	case ReasonAccountSuspended:
		d.Location = withQuery(g.cfg.SuspendedPath, url.Values{"error": {CodeAccountSuspended}})
	case ReasonAccountBanned:
		d.Location = withQuery(g.cfg.SuspendedPath, url.Values{"error": {CodeAccountBanned}})
	case ReasonSessionExpired:
		d.Details["expired_at"] = tok.ExpiresAt.UTC().Format(time.RFC3339)
		d.Location = g.loginURL(callbackFor(r), CodeSessionExpired)
	}
	return d, true
}

func (g *Guard) internalError(r *http.Request, err error, stack []byte) Decision {
	if stack == nil {
		stack = debug.Stack()
	}
	g.cfg.Logger.Error("access guard failure",
		slog.Any("error", err),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("stack", string(stack)))
	return Decision{
		Reason:   ReasonInternalError,
		Status:   http.StatusSeeOther,
		Location: g.loginURL("", ""),
		Err:      err,
		Details:  map[string]any{"error": err.Error()},
	}
}

// observe feeds metrics and audit. Rejections are always audited, grants are sampled.
func (g *Guard) observe(r *http.Request, d Decision) {
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.ObserveDecision(string(d.Reason))
	}
	if g.cfg.Audit == nil || d.Reason == ReasonPublic {
		return
	}
	if d.Reason == ReasonGranted && !g.cfg.Sampler() {
		return
	}
	entry := audit.Entry{
		Action:    auditActions[d.Reason],
		Resource:  r.URL.Path,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   !d.Rejected(),
		Details:   d.Details,
		Timestamp: g.cfg.Now().UTC(),
	}
	if d.Token != nil {
		entry.UserID = d.Token.UserID
	}
	if d.Location != "" {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["redirect"] = d.Location
	}
	g.cfg.Audit.Record(entry)
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, d Decision) {
	api := isAPI(r.URL.Path)
	switch d.Reason {
	case ReasonSuspiciousActivity:
		writeError(w, api, http.StatusForbidden, "Forbidden", "")
	case ReasonRateLimitExceeded:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
		writeError(w, api, http.StatusTooManyRequests, "Too Many Requests", "")
	case ReasonCSRFInvalid:
		writeError(w, api, http.StatusForbidden, "CSRF Token Invalid", "")
	default:
		if api {
			status, title := apiStatus(d.Reason)
			httpx.Problem(w, status, title, apiDetail(d.Reason))
			return
		}
		http.Redirect(w, r, d.Location, http.StatusSeeOther)
	}
}

func apiStatus(reason Reason) (int, string) {
	switch reason {
	case ReasonAccountDisabled, ReasonAccountSuspended, ReasonAccountBanned, ReasonAccessDenied:
		return http.StatusForbidden, "Forbidden"
	}
	return http.StatusUnauthorized, "Unauthorized"
}

func apiDetail(reason Reason) string {
	switch reason {
	case ReasonAccountDisabled:
		return CodeAccountDisabled
	case ReasonAccountSuspended:
		return CodeAccountSuspended
	case ReasonAccountBanned:
		return CodeAccountBanned
	case ReasonSessionExpired:
		return CodeSessionExpired
	case ReasonAccessDenied:
		return "AccessDenied"
	case ReasonUnauthenticated:
		return "Unauthenticated"
	}
	return ""
}

func writeError(w http.ResponseWriter, api bool, status int, title, detail string) {
	if api {
		httpx.Problem(w, status, title, detail)
		return
	}
	http.Error(w, title, status)
}

func (g *Guard) loginURL(callback, code string) string {
	q := url.Values{}
	if code != "" {
		q.Set("error", code)
	}
	if callback != "" {
		q.Set("callbackUrl", callback)
	}
	return withQuery(g.cfg.LoginPath, q)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func callbackFor(r *http.Request) string {
	cb := r.URL.Path
	if r.URL.RawQuery != "" {
		cb += "?" + r.URL.RawQuery
	}
	return cb
}

func causeOf(err error) string {
	switch {
	case err == nil, errors.Is(err, session.ErrNoToken):
		return "missing"
	case errors.Is(err, session.ErrRevoked):
		return "revoked"
	}
	return "invalid"
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func clientIP(r *http.Request) string {
	ip, err := httprate.KeyByIP(r)
	if err != nil || ip == "" {
		return r.RemoteAddr
	}
	return ip
}
