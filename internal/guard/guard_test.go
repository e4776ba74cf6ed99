package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
	"github.com/coworkhub/coworkhub/internal/ratelimit"
	"github.com/coworkhub/coworkhub/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(e audit.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recordingAudit) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAudit) Last(t *testing.T) audit.Entry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveDecision(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[reason]++
}

type verifierFunc func(ctx context.Context, r *http.Request) (*session.Token, error)

func (f verifierFunc) Verify(ctx context.Context, r *http.Request) (*session.Token, error) {
	return f(ctx, r)
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string) (ratelimit.Window, error) {
	return ratelimit.Window{}, ratelimit.ErrStoreUnavailable
}

func (brokenStore) Reset(context.Context) error { return nil }

type harness struct {
	guard   *Guard
	manager *session.Manager
	clock   *fakeClock
	audit   *recordingAudit
	metrics *countingMetrics
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)}
	manager, err := session.NewManager(session.Config{
		Secret:     []byte("guard-test-signing-secret"),
		CSRFSecret: []byte("guard-test-csrf-secret"),
		TTL:        time.Hour,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(time.Minute, clock.Now), 100, clock.Now)
	require.NoError(t, err)
	anomalies, err := NewAnomalyDetector(DefaultAnomalyPatterns)
	require.NoError(t, err)

	h := &harness{manager: manager, clock: clock, audit: &recordingAudit{}, metrics: &countingMetrics{}}
	cfg := Config{
		Policy:    access.MustPolicy(access.DefaultPolicyConfig()),
		Verifier:  session.NewVerifier(manager, nil),
		Headers:   NewSecurityHeaders(HeaderConfig{}),
		Limiter:   limiter,
		Anomalies: anomalies,
		Audit:     h.audit,
		Sampler:   func() bool { return false },
		Metrics:   h.metrics,
		Now:       clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.guard, err = New(cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) issue(t *testing.T, role access.Role, mutate ...func(*session.Token)) (string, session.Token) {
	t.Helper()
	tok := session.Token{UserID: "user-" + string(role), Role: role, IsActive: true}
	for _, m := range mutate {
		m(&tok)
	}
	raw, issued, err := h.manager.Issue(tok)
	require.NoError(t, err)
	return raw, issued
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok, ok := TokenFromContext(r.Context()); ok {
			w.Header().Set("X-Test-User", tok.UserID)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rec := httptest.NewRecorder()
	h.guard.Middleware(next).ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target, raw string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if raw != "" {
		req.Header.Set("Authorization", "Bearer "+raw)
	}
	return req
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Policy: access.MustPolicy(access.DefaultPolicyConfig())})
	assert.Error(t, err)
}

func TestPublicRoutePassesWithoutToken(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/login", "/blog/opening-day", "/spaces", "/api/auth/login"} {
		rec := h.serve(newRequest(http.MethodGet, path, ""))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"), path)
	}
	assert.Empty(t, h.audit.Actions())
}

func TestPublicPostSkipsCSRF(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(newRequest(http.MethodPost, "/api/auth/login", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard", ""))
	loc := location(t, rec)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/dashboard", loc.Query().Get("callbackUrl"))
	assert.Empty(t, loc.Query().Get("error"))

	entry := h.audit.Last(t)
	assert.Equal(t, audit.ActionUnauthenticated, entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, "/dashboard", entry.Resource)
	assert.Equal(t, "192.0.2.1", entry.IP)
}

func TestCallbackKeepsQuery(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/bookings?page=2", ""))
	assert.Equal(t, "/dashboard/bookings?page=2", location(t, rec).Query().Get("callbackUrl"))
}

func TestForgedTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleAdmin)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/admin", raw+"x"))
	assert.Equal(t, "/login", location(t, rec).Path)
	assert.Equal(t, audit.ActionUnauthenticated, h.audit.Last(t).Action)
}

func TestRevokedTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Verifier = verifierFunc(func(context.Context, *http.Request) (*session.Token, error) {
			return nil, session.ErrRevoked
		})
	})

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/client", "whatever"))
	assert.Equal(t, "/login", location(t, rec).Path)
	assert.Equal(t, "revoked", h.audit.Last(t).Details["cause"])
}

func TestExpiredSession(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleClient, func(tok *session.Token) {
		tok.ExpiresAt = h.clock.Now().Add(time.Minute)
	})
	h.clock.Advance(2 * time.Minute)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))
	loc := location(t, rec)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "SessionExpired", loc.Query().Get("error"))
	assert.Equal(t, "/dashboard/client", loc.Query().Get("callbackUrl"))
	assert.Equal(t, audit.ActionSessionExpired, h.audit.Last(t).Action)
}

func TestAccountStatusRedirects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*session.Token)
		path   string
		code   string
		action string
	}{
		{"disabled", func(tok *session.Token) { tok.IsActive = false }, "/login", "AccountDisabled", audit.ActionAccountDisabled},
		{"suspended", func(tok *session.Token) { tok.Status = session.StatusSuspended }, "/account/suspended", "AccountSuspended", audit.ActionAccountSuspended},
		{"banned", func(tok *session.Token) { tok.Status = session.StatusBanned }, "/account/suspended", "AccountBanned", audit.ActionAccountSuspended},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			raw, _ := h.issue(t, access.RoleManager, tc.mutate)

			rec := h.serve(newRequest(http.MethodGet, "/dashboard/manager", raw))
			loc := location(t, rec)
			assert.Equal(t, tc.path, loc.Path)
			assert.Equal(t, tc.code, loc.Query().Get("error"))

			entry := h.audit.Last(t)
			assert.Equal(t, tc.action, entry.Action)
			assert.Equal(t, "user-MANAGER", entry.UserID)
		})
	}
}

func TestDisabledCheckedBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleStaff, func(tok *session.Token) {
		tok.IsActive = false
		tok.ExpiresAt = h.clock.Now().Add(time.Minute)
	})
	h.clock.Advance(time.Hour)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/staff", raw))
	assert.Equal(t, "AccountDisabled", location(t, rec).Query().Get("error"))
}

func TestRoleDeniedRedirectsToOwnDashboard(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleStaff)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/manager", raw))
	assert.Equal(t, "/dashboard/staff", location(t, rec).Path)

	entry := h.audit.Last(t)
	assert.Equal(t, audit.ActionAccessDenied, entry.Action)
	assert.Equal(t, "STAFF", entry.Details["role"])
	assert.Equal(t, "/dashboard/staff", entry.Details["redirect"])
}

func TestDeniedOnOwnDashboardGoesToUnauthorized(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Policy = access.MustPolicy(access.PolicyConfig{
			PublicRoutes: []string{"/login", access.UnauthorizedPath},
			Routes: []access.RoutePermission{
				{Path: "/dashboard/client", AllowedRoles: []access.Role{access.RoleStaff}},
			},
		})
	})
	raw, _ := h.issue(t, access.RoleClient)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))
	assert.Equal(t, access.UnauthorizedPath, location(t, rec).Path)
}

func TestHigherRolesInheritAccess(t *testing.T) {
	h := newHarness(t)
	for _, role := range access.RoleOrder {
		raw, _ := h.issue(t, role)
		rec := h.serve(newRequest(http.MethodGet, "/dashboard/bookings", raw))
		assert.Equal(t, http.StatusOK, rec.Code, role)
		assert.Equal(t, "user-"+string(role), rec.Header().Get("X-Test-User"))
	}
}

func TestUnlistedRouteAdminOnly(t *testing.T) {
	h := newHarness(t)

	admin, _ := h.issue(t, access.RoleAdmin)
	rec := h.serve(newRequest(http.MethodGet, "/dashboard/experimental-feature", admin))
	assert.Equal(t, http.StatusOK, rec.Code)

	client, _ := h.issue(t, access.RoleClient)
	rec = h.serve(newRequest(http.MethodGet, "/dashboard/experimental-feature", client))
	assert.Equal(t, "/dashboard/client", location(t, rec).Path)
}

func TestCSRFOnMutatingRequests(t *testing.T) {
	h := newHarness(t)
	raw, tok := h.issue(t, access.RoleClient)

	rec := h.serve(newRequest(http.MethodPost, "/dashboard/bookings", raw))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CSRF Token Invalid")
	assert.Equal(t, audit.ActionCSRFInvalid, h.audit.Last(t).Action)

	req := newRequest(http.MethodPost, "/dashboard/bookings", raw)
	req.Header.Set(CSRFHeader, "wrong")
	assert.Equal(t, http.StatusForbidden, h.serve(req).Code)

	req = newRequest(http.MethodPost, "/dashboard/bookings", raw)
	req.Header.Set(CSRFHeader, tok.CSRFToken)
	assert.Equal(t, http.StatusOK, h.serve(req).Code)

	req = newRequest(http.MethodDelete, "/dashboard/bookings/7", raw)
	req.Header.Set(XSRFHeader, tok.CSRFToken)
	assert.Equal(t, http.StatusOK, h.serve(req).Code)

	req = newRequest(http.MethodPatch, "/dashboard/bookings/7?csrf="+url.QueryEscape(tok.CSRFToken), raw)
	assert.Equal(t, http.StatusOK, h.serve(req).Code)
}

func TestGetEchoesCSRFToken(t *testing.T) {
	h := newHarness(t)
	raw, tok := h.issue(t, access.RoleClient)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/bookings", raw))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tok.CSRFToken, rec.Header().Get(CSRFHeader))
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(time.Minute, c.Now), 3, c.Now)
		require.NoError(t, err)
		c.Limiter = limiter
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, h.serve(newRequest(http.MethodGet, "/about", "")).Code)
	}
	rec := h.serve(newRequest(http.MethodGet, "/about", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, audit.ActionRateLimitExceeded, h.audit.Last(t).Action)

	other := newRequest(http.MethodGet, "/about", "")
	other.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, h.serve(other).Code)

	h.clock.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, h.serve(newRequest(http.MethodGet, "/about", "")).Code)
}

func TestRateLimitStoreFailureFailsOpen(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		limiter, err := ratelimit.NewLimiter(brokenStore{}, 1, c.Now)
		require.NoError(t, err)
		c.Limiter = limiter
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, h.serve(newRequest(http.MethodGet, "/about", "")).Code)
	}
}

func TestSuspiciousRequestsBlockedEvenWithSession(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleAdmin)

	for _, target := range []string{
		"/.env",
		"/wp-admin/install.php",
		"/static/..%2F..%2Fetc%2Fpasswd",
		"/spaces?q=%27%20OR%201%3D1",
		"/blog?search=%3Cscript%3Ealert(1)%3C/script%3E",
	} {
		rec := h.serve(newRequest(http.MethodGet, target, raw))
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.Equal(t, audit.ActionSuspiciousActivity, h.audit.Last(t).Action, target)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleClient)

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))
	require.Equal(t, http.StatusOK, rec.Code)
	hdr := rec.Header()
	assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", hdr.Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", hdr.Get("Referrer-Policy"))
	assert.Equal(t, DefaultContentSecurityPolicy, hdr.Get("Content-Security-Policy"))
	assert.Equal(t, DefaultPermissionsPolicy, hdr.Get("Permissions-Policy"))
	assert.Equal(t, "no-store, must-revalidate", hdr.Get("Cache-Control"))
	assert.Equal(t, "noindex, nofollow", hdr.Get("X-Robots-Tag"))
	assert.Empty(t, hdr.Get("Strict-Transport-Security"))
}

func TestHSTSInProduction(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Headers = NewSecurityHeaders(HeaderConfig{Production: true})
	})

	rec := h.serve(newRequest(http.MethodGet, "/pricing", ""))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=63072000")
}

func TestPanicFailsSafe(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Verifier = verifierFunc(func(context.Context, *http.Request) (*session.Token, error) {
			panic("boom")
		})
	})

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/admin", "x"))
	assert.Equal(t, "/login", location(t, rec).Path)

	entry := h.audit.Last(t)
	assert.Equal(t, audit.ActionInternalError, entry.Action)
	assert.Contains(t, entry.Details["error"], "boom")
}

func TestVerifierBackendErrorFailsSafe(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Verifier = verifierFunc(func(context.Context, *http.Request) (*session.Token, error) {
			return nil, errors.New("redis: connection refused")
		})
	})

	rec := h.serve(newRequest(http.MethodGet, "/dashboard/client", "x"))
	assert.Equal(t, "/login", location(t, rec).Path)
	assert.Equal(t, audit.ActionInternalError, h.audit.Last(t).Action)
}

func TestAPIPathsGetProblemResponses(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(newRequest(http.MethodGet, "/api/bookings", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.ContentTypeProblem, rec.Header().Get("Content-Type"))

	raw, _ := h.issue(t, access.RoleClient)
	rec = h.serve(newRequest(http.MethodGet, "/api/admin/users", raw))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AccessDenied", body.Detail)

	rec = h.serve(newRequest(http.MethodPost, "/api/bookings", raw))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CSRF Token Invalid", body.Title)
}

func TestGrantedRequestsAreSampled(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleClient)

	h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))
	assert.Empty(t, h.audit.Actions())

	h = newHarness(t, func(c *Config) { c.Sampler = func() bool { return true } })
	raw, _ = h.issue(t, access.RoleClient)
	h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))

	entry := h.audit.Last(t)
	assert.Equal(t, audit.ActionAccessGranted, entry.Action)
	assert.True(t, entry.Success)
	assert.Equal(t, "user-CLIENT", entry.UserID)
}

func TestMetricsObserveEveryDecision(t *testing.T) {
	h := newHarness(t)
	raw, _ := h.issue(t, access.RoleClient)

	h.serve(newRequest(http.MethodGet, "/", ""))
	h.serve(newRequest(http.MethodGet, "/dashboard/client", raw))
	h.serve(newRequest(http.MethodGet, "/dashboard/admin", raw))

	assert.Equal(t, 1, h.metrics.counts[string(ReasonPublic)])
	assert.Equal(t, 1, h.metrics.counts[string(ReasonGranted)])
	assert.Equal(t, 1, h.metrics.counts[string(ReasonAccessDenied)])
}

func TestConcurrentEvaluation(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.issue(t, access.RoleAdmin)
	client, _ := h.issue(t, access.RoleClient)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := client
			if i%2 == 0 {
				raw = admin
			}
			d := h.guard.Evaluate(newRequest(http.MethodGet, "/dashboard/users", raw))
			if raw == admin {
				assert.Equal(t, ReasonGranted, d.Reason)
			} else {
				assert.Equal(t, ReasonAccessDenied, d.Reason)
			}
		}(i)
	}
	wg.Wait()
}

func TestSessionStateOrdering(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(time.Hour)
	stale := now.Add(-time.Minute)

	cases := []struct {
		name   string
		tok    *session.Token
		reason Reason
		status int
		code   string
	}{
		{"missing", nil, ReasonUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
		{"disabled and expired", &session.Token{IsActive: false, Status: session.StatusBanned, ExpiresAt: stale}, ReasonAccountDisabled, http.StatusForbidden, CodeAccountDisabled},
		{"suspended", &session.Token{IsActive: true, Status: session.StatusSuspended, ExpiresAt: fresh}, ReasonAccountSuspended, http.StatusForbidden, CodeAccountSuspended},
		{"banned", &session.Token{IsActive: true, Status: session.StatusBanned, ExpiresAt: fresh}, ReasonAccountBanned, http.StatusForbidden, CodeAccountBanned},
		{"expired", &session.Token{IsActive: true, Status: session.StatusActive, ExpiresAt: stale}, ReasonSessionExpired, http.StatusUnauthorized, CodeSessionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, rejected := SessionState(tc.tok, now)
			require.True(t, rejected)
			assert.Equal(t, tc.reason, reason)
			status, _, code := ProblemFor(reason)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}

	_, rejected := SessionState(&session.Token{IsActive: true, Status: session.StatusActive, ExpiresAt: fresh}, now)
	assert.False(t, rejected)
}
