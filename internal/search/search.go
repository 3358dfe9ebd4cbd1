package search

import (
	"context"
	"time"

	"inkvault/api/internal/content"
	"inkvault/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	NoteID    string    `json:"noteId"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Query describes a search request. Only notes PrincipalID owns or
// collaborates on are eligible.
type Query struct {
	Text        string
	PrincipalID string
	Limit       int
	Offset      int
}

// Response is returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push notes into a search index.
type Indexer interface {
	IndexNote(rec NoteRecord) error
	IndexNotes(recs []NoteRecord) error
	DeleteNote(id string) error
}

// Index is a backend that both searches and accepts writes, such as Meilisearch.
type Index interface {
	Searcher
	Indexer
}

// NoteRecord is the data we index for a note. Members lists the owner and
// collaborators and is the filter applied at query time.
type NoteRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Members   []string `json:"members"`
	UpdatedAt int64    `json:"updatedAt"`
}

// RecordFromNote builds the index record for a stored note.
func RecordFromNote(note store.Note) NoteRecord {
	members := make([]string, 0, len(note.Collaborators)+1)
	members = append(members, note.OwnerID)
	members = append(members, note.Collaborators...)
	return NoteRecord{
		ID:        note.ID,
		Title:     note.Title,
		Body:      content.PlainText(note.Content),
		Members:   members,
		UpdatedAt: note.UpdatedAt.Unix(),
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
