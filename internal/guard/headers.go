package guard

import (
	"net/http"

	"github.com/unrolled/secure"
)

// DefaultContentSecurityPolicy allows same-origin content plus inline styles
// and scripts emitted by the frontend build.
const DefaultContentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; font-src 'self' data:; connect-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

// DefaultPermissionsPolicy disables powerful browser features.
const DefaultPermissionsPolicy = "camera=(), microphone=(), geolocation=(), payment=(), usb=(), " +
	"magnetometer=(), gyroscope=(), accelerometer=(), interest-cohort=()"

// HeaderConfig configures SecurityHeaders.
type HeaderConfig struct {
	Production            bool
	ContentSecurityPolicy string
	PermissionsPolicy     string
	HSTSSeconds           int64
}

// SecurityHeaders attaches the response hardening headers.
type SecurityHeaders struct {
	secure *secure.Secure
}

// NewSecurityHeaders builds the header set. HSTS is only emitted in production.
func NewSecurityHeaders(cfg HeaderConfig) *SecurityHeaders {
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = DefaultContentSecurityPolicy
	}
	if cfg.PermissionsPolicy == "" {
		cfg.PermissionsPolicy = DefaultPermissionsPolicy
	}
	if cfg.HSTSSeconds <= 0 {
		cfg.HSTSSeconds = 63072000
	}
	opts := secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     cfg.PermissionsPolicy,
		ContentSecurityPolicy: cfg.ContentSecurityPolicy,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	}
	if cfg.Production {
		opts.STSSeconds = cfg.HSTSSeconds
		opts.STSIncludeSubdomains = true
		opts.STSPreload = true
		opts.ForceSTSHeader = true
	}
	return &SecurityHeaders{secure: secure.New(opts)}
}

// Apply writes the headers to w.
func (h *SecurityHeaders) Apply(w http.ResponseWriter, r *http.Request) error {
	if err := h.secure.Process(w, r); err != nil {
		return err
	}
	w.Header().Set("Cache-Control", "no-store, must-revalidate")
	w.Header().Set("X-Robots-Tag", "noindex, nofollow")
	return nil
}
