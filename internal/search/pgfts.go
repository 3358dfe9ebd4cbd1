package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgftsWhere = `fts @@ plainto_tsquery('simple', $1) AND (owner_id = $2 OR collaborators ? $2)`

// Search matches the generated tsvector over title and body text, restricted
// to notes the principal can read, ranked by ts_rank.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit, offset := clampPage(q.Limit, q.Offset)
	args := []any{q.Text, q.PrincipalID}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE `+pgftsWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title,
			ts_headline('simple', coalesce(search_text, ''), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			updated_at
		FROM notes
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC, updated_at DESC, id DESC
		LIMIT %d OFFSET %d`, pgftsWhere, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.NoteID, &r.Title, &r.Snippet, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every note for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, search_text, owner_id, collaborators, updated_at
		FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var (
			rec              NoteRecord
			owner            string
			collaboratorsRaw []byte
			updatedAt        sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Body, &owner, &collaboratorsRaw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		var collaborators []string
		_ = json.Unmarshal(collaboratorsRaw, &collaborators)
		rec.Members = append([]string{owner}, collaborators...)
		if updatedAt.Valid {
			rec.UpdatedAt = updatedAt.Time.Unix()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return records, nil
}
