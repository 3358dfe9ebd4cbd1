package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkvault/api/internal/content"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email=$1`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id=$1`, userID).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

const noteColumns = `id, title, content, html_snapshot, version, owner_id, collaborators, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		note             Note
		contentRaw       []byte
		collaboratorsRaw []byte
	)
	if err := row.Scan(
		&note.ID,
		&note.Title,
		&contentRaw,
		&note.HTMLSnapshot,
		&note.Version,
		&note.OwnerID,
		&collaboratorsRaw,
		&note.CreatedAt,
		&note.UpdatedAt,
	); err != nil {
		return Note{}, err
	}
	doc, err := content.Parse(contentRaw)
	if err != nil {
		return Note{}, fmt.Errorf("decode content of note %s: %w", note.ID, err)
	}
	note.Content = doc
	note.Collaborators = []string{}
	if len(collaboratorsRaw) > 0 {
		if err := json.Unmarshal(collaboratorsRaw, &note.Collaborators); err != nil {
			return Note{}, fmt.Errorf("decode collaborators of note %s: %w", note.ID, err)
		}
	}
	return note, nil
}

func encodeNoteFields(doc content.Document, collaborators []string) (contentJSON, collaboratorsJSON []byte, err error) {
	contentJSON, err = json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode content: %w", err)
	}
	if collaborators == nil {
		collaborators = []string{}
	}
	collaboratorsJSON, err = json.Marshal(collaborators)
	if err != nil {
		return nil, nil, fmt.Errorf("encode collaborators: %w", err)
	}
	return contentJSON, collaboratorsJSON, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	contentJSON, collaboratorsJSON, err := encodeNoteFields(note.Content, note.Collaborators)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, html_snapshot, search_text, version, owner_id, collaborators, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, note.ID, note.Title, contentJSON, note.HTMLSnapshot, content.PlainText(note.Content), note.Version,
		note.OwnerID, collaboratorsJSON, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, noteID))
}

// ListNotesForPrincipal returns notes the principal owns or collaborates on,
// most recently updated first.
func (s *PostgresStore) ListNotesForPrincipal(ctx context.Context, principalID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE owner_id = $1 OR collaborators ? $1
		ORDER BY updated_at DESC, id DESC
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := []Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, note)
	}
	return items, rows.Err()
}

// UpdateNoteIfVersion replaces the note only if its stored version equals
// expected. The row stays locked from the comparison until the write commits.
func (s *PostgresStore) UpdateNoteIfVersion(ctx context.Context, noteID string, expected int64, update NoteUpdate) (Note, error) {
	contentJSON, collaboratorsJSON, err := encodeNoteFields(update.Content, update.Collaborators)
	if err != nil {
		return Note{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanNote(tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1 FOR UPDATE`, noteID))
	if err != nil {
		return Note{}, err
	}
	if current.Version != expected {
		return Note{}, &ConflictError{Expected: expected, Current: current}
	}

	updated, err := scanNote(tx.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$2, content=$3, html_snapshot=$4, search_text=$5, collaborators=$6,
			version=version+1, updated_at=$7
		WHERE id=$1
		RETURNING `+noteColumns,
		noteID, update.Title, contentJSON, update.HTMLSnapshot, content.PlainText(update.Content),
		collaboratorsJSON, update.UpdatedAt,
	))
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit update tx: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, principal_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO UPDATE SET principal_id=EXCLUDED.principal_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, session.TokenHash, session.PrincipalID, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LookupSession returns ErrSessionNotFound for unknown or revoked tokens.
// Expiry is left to the caller.
func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, principal_id, issued_at, expires_at
		FROM sessions
		WHERE token_hash=$1 AND revoked_at IS NULL
	`, tokenHash).Scan(&session.TokenHash, &session.PrincipalID, &session.IssuedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions drops sessions that expired before cutoff.
func (s *PostgresStore) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
