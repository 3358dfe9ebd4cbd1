package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkViolation = "23514"

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

// migrateDown runs every down file newest first and forgets the matching
// schema_migrations rows.
func migrateDown(ctx context.Context, db *sql.DB, dir string) error {
	ups, err := MigrationFiles(dir)
	if err != nil {
		return err
	}
	for i := len(ups) - 1; i >= 0; i-- {
		raw, err := os.ReadFile(downFileFor(ups[i]))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(raw)); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, filepath.Base(ups[i])); err != nil {
			return err
		}
	}
	return nil
}

func columnExists(t *testing.T, ctx context.Context, db *sql.DB, table, column string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func explain(ctx context.Context, db *sql.DB, query string) error {
	rows, err := db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestPostgres(t).DB()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ups, err := MigrationFiles(testMigrationsDir)
	require.NoError(t, err)

	require.NoError(t, migrateDown(ctx, db, testMigrationsDir))
	assert.False(t, columnExists(t, ctx, db, "notes", "id"), "notes should be gone after down")

	pending, err := PendingMigrations(ctx, db, testMigrationsDir)
	require.NoError(t, err)
	assert.Len(t, pending, len(ups))

	applied, err := ApplyMigrations(ctx, db, testMigrationsDir)
	require.NoError(t, err, "second up pass")
	assert.Equal(t, pending, applied)

	again, err := ApplyMigrations(ctx, db, testMigrationsDir)
	require.NoError(t, err)
	assert.Empty(t, again, "a migrated database has nothing left to apply")

	for _, col := range []struct{ table, column string }{
		{"notes", "fts"},
		{"notes", "collaborators"},
		{"notes", "search_text"},
		{"sessions", "revoked_at"},
	} {
		assert.True(t, columnExists(t, ctx, db, col.table, col.column), "missing %s.%s", col.table, col.column)
	}

	for _, query := range []string{
		`SELECT id FROM notes WHERE owner_id = 'alice' OR collaborators ? 'alice'`,
		`SELECT id FROM notes WHERE content @> '{"type":"doc"}'::jsonb`,
		`SELECT id FROM notes WHERE fts @@ plainto_tsquery('simple', 'plan')`,
	} {
		assert.NoError(t, explain(ctx, db, query), query)
	}
}

func TestNotesRejectBlankTitles(t *testing.T) {
	db := openTestPostgres(t).DB()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash) VALUES ('alice', 'alice@example.com', 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, owner_id)
		VALUES ('note_blank', '   ', '{"type":"doc","content":[]}'::jsonb, 'alice')`)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "expected a postgres error, got %v", err)
	assert.Equal(t, checkViolation, pgErr.Code)

	_, err = db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, owner_id)
		VALUES ('note_ok', 'Plan', '{"type":"doc","content":[]}'::jsonb, 'alice')`)
	assert.NoError(t, err)
}
