package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/coworkhub/coworkhub/internal/session"
)

// unknownUserHash is compared against when the email does not exist so both
// paths spend one bcrypt comparison.
var unknownUserHash, _ = bcrypt.GenerateFromPassword([]byte("coworkhub-unknown-user"), bcrypt.MinCost)

// Service wraps authentication business rules.
type Service struct {
	repo        Repository
	tokens      *session.Manager
	revocations session.Revocations
	logger      *slog.Logger
}

// NewService constructs a new Service. revocations may be nil, in which case
// logout only clears the cookie.
func NewService(repo Repository, tokens *session.Manager, revocations session.Revocations, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, revocations: revocations, logger: logger}
}

// Authenticate validates email/password credentials. Inactive, suspended and
// banned accounts authenticate; the access guard turns their session away
// with the matching status redirect.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and issues a session token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	status := user.Status
	if status == "" {
		status = session.StatusActive
	}
	raw, tok, err := s.tokens.Issue(session.Token{
		UserID:   user.ID,
		Role:     user.Role,
		IsActive: user.IsActive,
		Status:   status,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: issue session: %w", err)
	}
	if err := s.repo.CreateSession(ctx, tok, in.IP, in.UserAgent); err != nil {
		s.logger.Warn("register session", slog.Any("error", err), slog.String("user_id", user.ID))
	}
	return &LoginResult{User: user, Raw: raw, Token: tok}, nil
}

// Logout revokes the session until its natural expiry.
func (s *Service) Logout(ctx context.Context, tok *session.Token) error {
	if tok == nil {
		return nil
	}
	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
			return err
		}
	}
	if err := s.repo.EndSession(ctx, tok.ID); err != nil {
		s.logger.Warn("end session", slog.Any("error", err), slog.String("session_id", tok.ID))
	}
	return nil
}
