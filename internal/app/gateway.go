package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/observability"
	"github.com/coworkhub/coworkhub/internal/ratelimit"
	"github.com/coworkhub/coworkhub/internal/session"
)

// GatewayDeps are the external resources the access layer is built on.
type GatewayDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Redis   redis.UniversalClient
	Audit   guard.AuditRecorder
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Gateway bundles the components of the access layer.
type Gateway struct {
	Policy   *access.Policy
	Sessions *session.Manager
	Verifier *session.Verifier
	// Revocations is nil when no Redis client is configured.
	Revocations session.Revocations
	Limiter     *ratelimit.Limiter
	Guard       *guard.Guard
}

// NewGateway assembles policy, sessions, limiter and guard from configuration.
func NewGateway(deps GatewayDeps, bundle PolicyBundle) (*Gateway, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	policy, err := access.NewPolicy(bundle.Policy)
	if err != nil {
		return nil, fmt.Errorf("app: policy: %w", err)
	}
	anomalies, err := guard.NewAnomalyDetector(bundle.AnomalyPatterns)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(session.Config{
		Secret:     []byte(cfg.SessionSecret),
		CSRFSecret: []byte(cfg.CSRFSecret),
		Issuer:     cfg.SessionIssuer,
		TTL:        cfg.SessionTTL,
		Now:        deps.Now,
	})
	if err != nil {
		return nil, err
	}

	gw := &Gateway{Policy: policy, Sessions: sessions}
	if deps.Redis != nil {
		revocations := session.NewRedisRevocations(deps.Redis)
		gw.Revocations = revocations
		gw.Verifier = session.NewVerifier(sessions, revocations)
	} else {
		gw.Verifier = session.NewVerifier(sessions, nil)
	}

	var store ratelimit.Store
	switch cfg.RateLimitBackend {
	case RateLimitRedis:
		if deps.Redis == nil {
			return nil, errors.New("app: redis rate limit backend requires a redis client")
		}
		store = ratelimit.NewRedisStore(deps.Redis, "", cfg.RateLimitWindow, deps.Now)
	default:
		store = ratelimit.NewMemoryStore(cfg.RateLimitWindow, deps.Now)
	}
	gw.Limiter, err = ratelimit.NewLimiter(store, cfg.RateLimitRequests, deps.Now)
	if err != nil {
		return nil, err
	}

	guardCfg := guard.Config{
		Policy:    policy,
		Verifier:  gw.Verifier,
		Headers:   guard.NewSecurityHeaders(guard.HeaderConfig{Production: cfg.IsProduction()}),
		Limiter:   gw.Limiter,
		Anomalies: anomalies,
		Audit:     deps.Audit,
		Sampler:   audit.RateSampler(cfg.AuditSampleRate),
		Logger:    deps.Logger,
		Now:       deps.Now,
	}
	if deps.Metrics != nil {
		guardCfg.Metrics = deps.Metrics
	}
	gw.Guard, err = guard.New(guardCfg)
	if err != nil {
		return nil, err
	}
	return gw, nil
}
