package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDB struct {
	sql  string
	args []any
	tag  string
	err  error
}

func (db *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql = sql
	db.args = args
	tag := db.tag
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), db.err
}

func (db *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresStoreWrite(t *testing.T) {
	db := &recordingDB{}
	store := NewPostgresStore(db)
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	err := store.Write(context.Background(), Entry{
		ID:        "0b0e7a52-6f5e-4d8b-9f51-4c6b4cc1e0a1",
		UserID:    "u-1",
		Action:    ActionAccessDenied,
		Resource:  "/dashboard/admin",
		IP:        "10.1.1.1",
		UserAgent: "curl/8",
		Details:   map[string]any{"role": "CLIENT"},
		Timestamp: at,
	})
	require.NoError(t, err)
	assert.Contains(t, db.sql, "INSERT INTO security_audit_logs")
	require.Len(t, db.args, 9)
	assert.Equal(t, ActionAccessDenied, db.args[2])
	assert.Equal(t, false, db.args[6])
	assert.Equal(t, at, db.args[8])

	var details map[string]any
	require.NoError(t, json.Unmarshal(db.args[7].([]byte), &details))
	assert.Equal(t, "CLIENT", details["role"])
}

func TestPostgresStoreWriteErrors(t *testing.T) {
	store := NewPostgresStore(&recordingDB{})
	assert.ErrorIs(t, store.Write(context.Background(), Entry{Action: ActionLogin}), ErrInvalidEntry)

	failing := NewPostgresStore(&recordingDB{err: errors.New("conn reset")})
	err := failing.Write(context.Background(), Entry{Action: ActionLogin, Resource: "/api/auth/login"})
	assert.ErrorContains(t, err, "conn reset")

	var nilStore *PostgresStore
	assert.Error(t, nilStore.Write(context.Background(), Entry{Action: ActionLogin, Resource: "/"}))
}

func TestPostgresStoreEnsureSchema(t *testing.T) {
	db := &recordingDB{}
	require.NoError(t, NewPostgresStore(db).EnsureSchema(context.Background()))
	assert.Contains(t, db.sql, "CREATE TABLE IF NOT EXISTS security_audit_logs")
}

func TestPostgresStorePurge(t *testing.T) {
	db := &recordingDB{tag: "DELETE 42"}
	store := NewPostgresStore(db)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := store.Purge(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Contains(t, db.sql, "DELETE FROM security_audit_logs")
	assert.Equal(t, []any{cutoff}, db.args)

	_, err = store.Purge(context.Background(), time.Time{})
	assert.Error(t, err)
}
