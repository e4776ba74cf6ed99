package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/session"
)

// Schema creates the tables used by PGRepository.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('ADMIN', 'MANAGER', 'STAFF', 'CLIENT')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'suspended', 'banned')),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_sessions (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ,
	ip         TEXT,
	user_agent TEXT
);`

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, tok session.Token, ip, ua string) error
	EndSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, now: time.Now}
}

// EnsureSchema creates missing tables.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("auth: ensure schema: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id::text, email, password_hash, role, is_active, status, created_at, updated_at
FROM users WHERE lower(email) = lower($1)`
	var (
		user   User
		role   string
		status string
	)
	err := r.pool.QueryRow(ctx, q, strings.TrimSpace(email)).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &role, &user.IsActive, &status, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	parsed, err := access.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("auth: user %s: %w", user.ID, err)
	}
	user.Role = parsed
	user.Status = session.Status(status)
	return &user, nil
}

// CreateSession persists login metadata for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, tok session.Token, ip, ua string) error {
	const q = `INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`
	if _, err := r.pool.Exec(ctx, q, tok.ID, tok.UserID, r.now().UTC(), tok.ExpiresAt.UTC(), ip, ua); err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// EndSession stamps the session as ended.
func (r *PGRepository) EndSession(ctx context.Context, id string) error {
	const q = `UPDATE user_sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	if _, err := r.pool.Exec(ctx, q, id, r.now().UTC()); err != nil {
		return fmt.Errorf("auth: end session: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
