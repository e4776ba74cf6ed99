package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the security audit table.
const Schema = `CREATE TABLE IF NOT EXISTS security_audit_logs (
	id          UUID PRIMARY KEY,
	user_id     TEXT,
	action      TEXT        NOT NULL,
	resource    TEXT        NOT NULL,
	ip          TEXT        NOT NULL DEFAULT '',
	user_agent  TEXT        NOT NULL DEFAULT '',
	success     BOOLEAN     NOT NULL,
	details     JSONB       NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS security_audit_logs_occurred_at_idx ON security_audit_logs (occurred_at DESC);
CREATE INDEX IF NOT EXISTS security_audit_logs_action_idx ON security_audit_logs (action, occurred_at DESC);`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore writes and reads entries in security_audit_logs.
type PostgresStore struct {
	db DB
}

// NewPostgresStore returns a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

const insertEntry = `INSERT INTO security_audit_logs (id, user_id, action, resource, ip, user_agent, success, details, occurred_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

// Write persists entry. Replays of the same ID are ignored.
func (s *PostgresStore) Write(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: postgres store not initialised")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	at := entry.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, insertEntry, entry.ID, entry.UserID, entry.Action, entry.Resource, entry.IP, entry.UserAgent, entry.Success, detailsJSON, at); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Timeline returns entries matching params, newest first.
func (s *PostgresStore) Timeline(ctx context.Context, params TimelineParams) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !params.From.IsZero() {
		add("occurred_at >= $%d", params.From)
	}
	if !params.To.IsZero() {
		add("occurred_at < $%d", params.To)
	}
	if params.Action != "" {
		add("action = $%d", params.Action)
	}
	if params.UserID != "" {
		add("user_id = $%d", params.UserID)
	}
	if params.IP != "" {
		add("ip = $%d", params.IP)
	}
	query := "SELECT id, COALESCE(user_id, ''), action, resource, ip, user_agent, success, details, occurred_at FROM security_audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.IP, &e.UserAgent, &e.Success, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: timeline scan: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: timeline details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: timeline rows: %w", err)
	}
	return entries, nil
}

// Purge deletes entries older than before and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("audit: purge requires a cutoff")
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM security_audit_logs WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
