package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RoutePermission grants a path prefix to a set of roles.
type RoutePermission struct {
	Path         string
	AllowedRoles []Role
	Public       bool
	// Exact restricts the entry to the identical path instead of the whole subtree.
	Exact bool
}

// PolicyConfig is the static input of a Policy.
type PolicyConfig struct {
	PublicRoutes []string
	Routes       []RoutePermission
	// AdminUnlisted grants ADMIN access to protected paths no entry matches.
	AdminUnlisted bool
}

// Policy answers route classification and authorization questions.
// It is immutable once built and safe for concurrent use.
type Policy struct {
	publicExact    map[string]struct{}
	publicPrefixes []string
	publicWildcard []string
	routes         []RoutePermission
	hierarchy      Hierarchy
	adminUnlisted  bool
}

// NewPolicy validates cfg and precomputes lookup structures.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	p := &Policy{
		publicExact:   make(map[string]struct{}),
		hierarchy:     DefaultHierarchy,
		adminUnlisted: cfg.AdminUnlisted,
	}
	for _, raw := range cfg.PublicRoutes {
		if err := p.addPublic(raw); err != nil {
			return nil, err
		}
	}
	for _, route := range cfg.Routes {
		path := normalizePath(route.Path)
		if path == "" {
			return nil, errors.New("access: route path required")
		}
		if route.Public {
			if err := p.addPublic(path); err != nil {
				return nil, err
			}
			continue
		}
		if len(route.AllowedRoles) == 0 {
			return nil, fmt.Errorf("access: route %s has no allowed roles", path)
		}
		roles := make([]Role, 0, len(route.AllowedRoles))
		for _, r := range route.AllowedRoles {
			parsed, err := ParseRole(string(r))
			if err != nil {
				return nil, fmt.Errorf("access: route %s: %w", path, err)
			}
			roles = append(roles, parsed)
		}
		p.routes = append(p.routes, RoutePermission{Path: path, AllowedRoles: roles, Exact: route.Exact})
	}
	// Most specific first; exact entries win ties against subtree entries.
	sort.SliceStable(p.routes, func(i, j int) bool {
		if len(p.routes[i].Path) != len(p.routes[j].Path) {
			return len(p.routes[i].Path) > len(p.routes[j].Path)
		}
		return p.routes[i].Exact && !p.routes[j].Exact
	})
	return p, nil
}

// MustPolicy is NewPolicy for static tables known to be valid.
func MustPolicy(cfg PolicyConfig) *Policy {
	p, err := NewPolicy(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) addPublic(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("access: empty public route")
	}
	if prefix, ok := strings.CutSuffix(raw, "*"); ok {
		p.publicWildcard = append(p.publicWildcard, prefix)
		return nil
	}
	path := normalizePath(raw)
	p.publicExact[path] = struct{}{}
	if path != "/" {
		p.publicPrefixes = append(p.publicPrefixes, path)
	}
	return nil
}

// IsPublicRoute reports whether path can be served without a session.
func (p *Policy) IsPublicRoute(path string) bool {
	path = normalizePath(path)
	if _, ok := p.publicExact[path]; ok {
		return true
	}
	for _, prefix := range p.publicPrefixes {
		if hasSegmentPrefix(path, prefix) {
			return true
		}
	}
	for _, prefix := range p.publicWildcard {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// FindMatchingRoute returns the most specific protected entry covering path.
func (p *Policy) FindMatchingRoute(path string) (RoutePermission, bool) {
	path = normalizePath(path)
	for _, route := range p.routes {
		if route.Exact {
			if path == route.Path {
				return route, true
			}
			continue
		}
		if hasSegmentPrefix(path, route.Path) {
			return route, true
		}
	}
	return RoutePermission{}, false
}

// HasRouteAccess decides whether role may open path.
func (p *Policy) HasRouteAccess(role Role, path string) bool {
	if p.IsPublicRoute(path) {
		return true
	}
	route, ok := p.FindMatchingRoute(path)
	if !ok {
		return role == RoleAdmin && p.adminUnlisted
	}
	for _, required := range route.AllowedRoles {
		if p.hierarchy.Satisfies(role, required) {
			return true
		}
	}
	return false
}

// AdminUnlisted reports whether ADMIN falls through on unlisted routes.
func (p *Policy) AdminUnlisted() bool {
	return p.adminUnlisted
}

// Routes returns the protected entries in evaluation order.
func (p *Policy) Routes() []RoutePermission {
	out := make([]RoutePermission, len(p.routes))
	copy(out, p.routes)
	return out
}

// PublicRoutes returns the configured public patterns, sorted.
func (p *Policy) PublicRoutes() []string {
	out := make([]string, 0, len(p.publicExact)+len(p.publicWildcard))
	for path := range p.publicExact {
		out = append(out, path)
	}
	for _, prefix := range p.publicWildcard {
		out = append(out, prefix+"*")
	}
	sort.Strings(out)
	return out
}

func hasSegmentPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+"/")
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
