package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAccessCheck(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"inherited", []string{"--role", "MANAGER", "--path", "/dashboard/schedule"}, "ALLOW /dashboard/schedule for MANAGER via /dashboard/schedule [STAFF]"},
		{"public", []string{"--role", "CLIENT", "--path", "/blog/opening"}, "ALLOW /blog/opening (public)"},
		{"denied", []string{"--role", "CLIENT", "--path", "/api/admin/users"}, "DENY /api/admin/users for CLIENT via /api/admin [ADMIN] -> /dashboard/client"},
		{"unlisted admin", []string{"--role", "admin", "--path", "/dashboard/new-report"}, "ALLOW /dashboard/new-report for ADMIN (unlisted admin fallthrough)"},
		{"unlisted", []string{"--role", "STAFF", "--path", "/internal/tools"}, "DENY /internal/tools for STAFF (no matching route) -> /dashboard/staff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, append([]string{"access", "check"}, tc.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tc.want+"\n", out)
		})
	}
}

func TestAccessCheckOwnDashboardRedirectsToUnauthorized(t *testing.T) {
	out, err := run(t, "--admin-unlisted=false", "access", "check", "--role", "ADMIN", "--path", "/dashboard/admin", "--json")
	require.NoError(t, err)

	var decision accessDecision
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.True(t, decision.Allowed)

	policyPath := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
[[route]]
path = "/dashboard/admin"
roles = ["ADMIN"]

[[route]]
path = "/dashboard/client"
roles = ["MANAGER"]
`), 0o600))
	out, err = run(t, "--policy", policyPath, "access", "check", "--role", "CLIENT", "--path", "/dashboard/client", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, access.UnauthorizedPath, decision.Redirect)
	assert.Equal(t, []string{"MANAGER"}, decision.Required)
}

func TestAccessCheckRejectsUnknownRole(t *testing.T) {
	_, err := run(t, "access", "check", "--role", "GUEST", "--path", "/dashboard")
	require.ErrorIs(t, err, access.ErrUnknownRole)
}

func TestPolicyDumpRoundTrips(t *testing.T) {
	out, err := run(t, "policy", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "admin_unlisted = true")
	assert.Contains(t, out, `path = "/dashboard/admin"`)

	path := filepath.Join(t.TempDir(), "dump.toml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
	again, err := run(t, "--policy", path, "policy", "dump")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestTokenIssue(t *testing.T) {
	secret := "cli-test-session-secret"
	t.Setenv("SESSION_SECRET", secret)
	t.Setenv("CSRF_SECRET", "cli-test-csrf")

	out, err := run(t, "token", "issue", "--user", "u-7", "--role", "staff", "--status", "suspended", "--ttl", "5m")
	require.NoError(t, err)

	var issued issuedToken
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "STAFF", issued.Role)
	assert.NotEmpty(t, issued.CSRFToken)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), issued.ExpiresAt, time.Minute)

	manager, err := session.NewManager(session.Config{
		Secret:     []byte(secret),
		CSRFSecret: []byte("cli-test-csrf"),
		Issuer:     "coworkhub",
		TTL:        time.Hour,
	})
	require.NoError(t, err)
	tok, err := manager.Parse(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", tok.UserID)
	assert.Equal(t, session.StatusSuspended, tok.Status)
	assert.True(t, tok.IsActive)
	assert.Equal(t, issued.SessionID, tok.ID)
}

func TestTokenIssueValidatesFlags(t *testing.T) {
	t.Setenv("SESSION_SECRET", "cli-test-session-secret")
	t.Setenv("CSRF_SECRET", "cli-test-csrf")

	_, err := run(t, "token", "issue", "--user", "u-1", "--role", "CLIENT", "--status", "deleted")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown status"))

	_, err = run(t, "token", "issue", "--role", "CLIENT")
	require.Error(t, err)
}
