package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/coworkhub/coworkhub/internal/access"
)

// Config controls token signing.
type Config struct {
	Secret     []byte
	CSRFSecret []byte
	Issuer     string
	TTL        time.Duration
	Now        func() time.Time
}

// Manager issues and parses signed session tokens.
type Manager struct {
	cfg Config
}

type claims struct {
	Role   string `json:"role"`
	Active bool   `json:"active"`
	Status string `json:"status"`
	CSRF   string `json:"csrf"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session: signing secret must be at least 16 bytes")
	}
	if len(cfg.CSRFSecret) == 0 {
		return nil, errors.New("session: csrf secret required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "coworkhub"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Issue signs a token for the given identity. ID, ExpiresAt and CSRFToken are
// filled in when empty.
func (m *Manager) Issue(tok Token) (string, Token, error) {
	if tok.UserID == "" {
		return "", Token{}, errors.New("session: user id required")
	}
	if !tok.Role.Valid() {
		return "", Token{}, access.ErrUnknownRole
	}
	now := m.cfg.Now()
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = now.Add(m.cfg.TTL)
	}
	if tok.Status == "" {
		tok.Status = StatusActive
	}
	if tok.CSRFToken == "" {
		tok.CSRFToken = m.csrfToken(tok.ID, now)
	}
	c := claims{
		Role:   string(tok.Role),
		Active: tok.IsActive,
		Status: string(tok.Status),
		CSRF:   tok.CSRFToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			Subject:   tok.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.cfg.Secret)
	if err != nil {
		return "", Token{}, fmt.Errorf("session: sign: %w", err)
	}
	tok.ExpiresAt = c.ExpiresAt.Time.UTC()
	return signed, tok, nil
}

// Parse verifies signature and issuer. Expiry is left to the caller so a stale
// session can be told apart from a forged one.
func (m *Manager) Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithoutClaimsValidation(),
	)
	var c claims
	token, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.Issuer != m.cfg.Issuer || c.Subject == "" || c.ID == "" || c.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return nil, ErrInvalidToken
	}
	status := Status(c.Status)
	switch status {
	case StatusActive, StatusSuspended, StatusBanned:
	default:
		return nil, ErrInvalidToken
	}
	return &Token{
		ID:        c.ID,
		UserID:    c.Subject,
		Role:      role,
		IsActive:  c.Active,
		Status:    status,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
		CSRFToken: c.CSRF,
	}, nil
}

func (m *Manager) csrfToken(sessionID string, now time.Time) string {
	mac := hmac.New(sha256.New, m.cfg.CSRFSecret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(now.UnixNano()))
	_, _ = mac.Write(buf)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
