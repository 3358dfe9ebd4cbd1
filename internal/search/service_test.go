package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inkvault/api/internal/content"
	"inkvault/api/internal/store"
)

type fakeIndex struct {
	mu         sync.Mutex
	healthy    bool
	results    []Result
	err        error
	docs       map[string]NoteRecord
	writes     int
	firstDelay time.Duration
	bulk       []NoteRecord
	lastQuery  Query
}

func newFakeIndex(healthy bool) *fakeIndex {
	return &fakeIndex{healthy: healthy, docs: map[string]NoteRecord{}}
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

// IndexNote is last-write-wins; the very first write is held for firstDelay.
func (f *fakeIndex) IndexNote(rec NoteRecord) error {
	f.mu.Lock()
	var delay time.Duration
	if f.writes == 0 {
		delay = f.firstDelay
	}
	f.writes++
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[rec.ID] = rec
	return nil
}

func (f *fakeIndex) IndexNotes(recs []NoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, recs...)
	return nil
}

func (f *fakeIndex) DeleteNote(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) doc(id string) (NoteRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.docs[id]
	return rec, ok
}

type fakeSearcher struct {
	results []Result
	called  bool
}

func (f *fakeSearcher) Healthy() bool { return true }

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.called = true
	return f.results, len(f.results), nil
}

type fakeLoader []NoteRecord

func (f fakeLoader) LoadAllRecords(context.Context) ([]NoteRecord, error) { return f, nil }

func TestSearchPrefersHealthyIndex(t *testing.T) {
	index := newFakeIndex(true)
	index.results = []Result{{NoteID: "n1", Title: "Plan"}}
	fallback := &fakeSearcher{results: []Result{{NoteID: "n2"}}}
	svc := NewService(index, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: " plan ", PrincipalID: "alice", Limit: 500})
	if resp.Total != 1 || resp.Results[0].NoteID != "n1" || resp.Query != "plan" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if fallback.called {
		t.Fatal("fallback should not be queried when the index answers")
	}
	if index.lastQuery.Limit != 100 {
		t.Fatalf("expected limit clamp to 100, got %d", index.lastQuery.Limit)
	}
}

func TestSearchFallsBackOnIndexError(t *testing.T) {
	index := newFakeIndex(true)
	index.err = errors.New("boom")
	fallback := &fakeSearcher{results: []Result{{NoteID: "n2"}}}
	svc := NewService(index, fallback, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "plan", PrincipalID: "alice"})
	if !fallback.called || resp.Total != 1 || resp.Results[0].NoteID != "n2" {
		t.Fatalf("expected fallback results, got %+v", resp)
	}
}

func TestSearchWithoutBackendsIsEmpty(t *testing.T) {
	svc := NewService(nil, nil, zerolog.Nop())
	resp := svc.Search(context.Background(), Query{Text: "plan", PrincipalID: "alice"})
	if resp.Results == nil || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
	if got := svc.Search(context.Background(), Query{Text: "  ", PrincipalID: "alice"}); got.Total != 0 {
		t.Fatalf("expected blank query to be empty, got %+v", got)
	}
}

func TestDeleteIsNotOvertakenBySlowIndexWrite(t *testing.T) {
	index := newFakeIndex(true)
	index.firstDelay = 50 * time.Millisecond
	svc := NewService(index, nil, zerolog.Nop())
	defer svc.Close()

	svc.IndexNote(NoteRecord{ID: "note_1", Title: "secret", Members: []string{"alice", "bob"}})
	svc.DeleteNote("note_1")
	svc.Flush()

	if rec, ok := index.doc("note_1"); ok {
		t.Fatalf("deleted note still indexed: %+v", rec)
	}
}

func TestLaterIndexWriteWins(t *testing.T) {
	index := newFakeIndex(true)
	index.firstDelay = 50 * time.Millisecond
	svc := NewService(index, nil, zerolog.Nop())
	defer svc.Close()

	svc.IndexNote(NoteRecord{ID: "note_1", Members: []string{"alice", "bob"}})
	svc.IndexNote(NoteRecord{ID: "note_1", Members: []string{"alice"}})
	svc.Flush()

	rec, ok := index.doc("note_1")
	if !ok || len(rec.Members) != 1 || rec.Members[0] != "alice" {
		t.Fatalf("expected members [alice], got %+v (indexed=%v)", rec, ok)
	}
}

func TestCloseDrainsQueuedWrites(t *testing.T) {
	index := newFakeIndex(true)
	index.firstDelay = 20 * time.Millisecond
	svc := NewService(index, nil, zerolog.Nop())

	svc.IndexNote(NoteRecord{ID: "n1"})
	svc.IndexNote(NoteRecord{ID: "n2"})
	svc.Close()
	svc.Close()

	for _, id := range []string{"n1", "n2"} {
		if _, ok := index.doc(id); !ok {
			t.Fatalf("expected %s to be indexed before Close returned", id)
		}
	}
}

func TestUnhealthyIndexSkipsWrites(t *testing.T) {
	index := newFakeIndex(false)
	svc := NewService(index, nil, zerolog.Nop())
	defer svc.Close()

	svc.IndexNote(NoteRecord{ID: "n1"})
	svc.Flush()
	svc.ReindexAll(context.Background(), fakeLoader{{ID: "n1"}})

	if _, ok := index.doc("n1"); ok {
		t.Fatal("unhealthy index should not receive writes")
	}
	if len(index.bulk) != 0 {
		t.Fatal("unhealthy index should not be reindexed")
	}
}

func TestWritesWithoutIndexAreDropped(t *testing.T) {
	svc := NewService(nil, &fakeSearcher{}, zerolog.Nop())
	svc.IndexNote(NoteRecord{ID: "n1"})
	svc.DeleteNote("n1")
	svc.Flush()
	svc.Close()
}

func TestReindexAll(t *testing.T) {
	index := newFakeIndex(true)
	svc := NewService(index, nil, zerolog.Nop())
	svc.ReindexAll(context.Background(), fakeLoader{{ID: "n1"}, {ID: "n2"}})
	if len(index.bulk) != 2 {
		t.Fatalf("expected 2 records reindexed, got %d", len(index.bulk))
	}
}

func TestRecordFromNote(t *testing.T) {
	note := store.Note{
		ID:            "n1",
		Title:         "Plan",
		Content:       content.Doc(content.Para(content.Txt("ship it"))),
		OwnerID:       "alice",
		Collaborators: []string{"bob"},
		UpdatedAt:     time.Unix(1700000000, 0),
	}
	rec := RecordFromNote(note)
	if rec.Body != "ship it" || len(rec.Members) != 2 || rec.Members[0] != "alice" || rec.UpdatedAt != 1700000000 {
		t.Fatalf("unexpected record %+v", rec)
	}
}
