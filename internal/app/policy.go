package app

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/guard"
)

// PolicyBundle is the route policy plus the anomaly signatures the guard loads at startup.
type PolicyBundle struct {
	Policy          access.PolicyConfig
	AnomalyPatterns []string
}

type policyFile struct {
	AdminUnlisted   *bool        `toml:"admin_unlisted"`
	Public          []string     `toml:"public"`
	AnomalyPatterns []string     `toml:"anomaly_patterns"`
	Routes          []routeEntry `toml:"route"`
}

type routeEntry struct {
	Path   string   `toml:"path"`
	Roles  []string `toml:"roles,omitempty"`
	Public bool     `toml:"public,omitempty"`
	Exact  bool     `toml:"exact,omitempty"`
}

// DefaultPolicyBundle is the built-in coworking policy.
func DefaultPolicyBundle(adminUnlisted bool) PolicyBundle {
	cfg := access.DefaultPolicyConfig()
	cfg.AdminUnlisted = adminUnlisted
	patterns := make([]string, len(guard.DefaultAnomalyPatterns))
	copy(patterns, guard.DefaultAnomalyPatterns)
	return PolicyBundle{Policy: cfg, AnomalyPatterns: patterns}
}

// LoadPolicy reads a TOML policy file. An empty path yields the built-in
// policy. Sections omitted from the file keep their built-in values;
// admin_unlisted in the file overrides the environment.
func LoadPolicy(path string, adminUnlisted bool) (PolicyBundle, error) {
	bundle := DefaultPolicyBundle(adminUnlisted)
	if path == "" {
		return bundle, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return PolicyBundle{}, fmt.Errorf("app: open policy: %w", err)
	}
	defer f.Close()
	return decodePolicy(f, bundle)
}

func decodePolicy(r io.Reader, bundle PolicyBundle) (PolicyBundle, error) {
	var file policyFile
	md, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return PolicyBundle{}, fmt.Errorf("app: decode policy: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return PolicyBundle{}, fmt.Errorf("app: unknown policy keys %v", undecoded)
	}
	if file.AdminUnlisted != nil {
		bundle.Policy.AdminUnlisted = *file.AdminUnlisted
	}
	if md.IsDefined("public") {
		bundle.Policy.PublicRoutes = file.Public
	}
	if md.IsDefined("anomaly_patterns") {
		bundle.AnomalyPatterns = file.AnomalyPatterns
	}
	if md.IsDefined("route") {
		routes := make([]access.RoutePermission, 0, len(file.Routes))
		for _, entry := range file.Routes {
			perm := access.RoutePermission{Path: entry.Path, Public: entry.Public, Exact: entry.Exact}
			for _, raw := range entry.Roles {
				role, err := access.ParseRole(raw)
				if err != nil {
					return PolicyBundle{}, fmt.Errorf("app: policy route %s: %w", entry.Path, err)
				}
				perm.AllowedRoles = append(perm.AllowedRoles, role)
			}
			routes = append(routes, perm)
		}
		bundle.Policy.Routes = routes
	}
	if _, err := access.NewPolicy(bundle.Policy); err != nil {
		return PolicyBundle{}, err
	}
	if _, err := guard.NewAnomalyDetector(bundle.AnomalyPatterns); err != nil {
		return PolicyBundle{}, err
	}
	return bundle, nil
}

// EncodePolicy writes bundle in the format LoadPolicy reads.
func EncodePolicy(w io.Writer, bundle PolicyBundle) error {
	adminUnlisted := bundle.Policy.AdminUnlisted
	file := policyFile{
		AdminUnlisted:   &adminUnlisted,
		Public:          bundle.Policy.PublicRoutes,
		AnomalyPatterns: bundle.AnomalyPatterns,
	}
	for _, route := range bundle.Policy.Routes {
		entry := routeEntry{Path: route.Path, Public: route.Public, Exact: route.Exact}
		for _, role := range route.AllowedRoles {
			entry.Roles = append(entry.Roles, string(role))
		}
		file.Routes = append(file.Routes, entry)
	}
	return toml.NewEncoder(w).Encode(file)
}
