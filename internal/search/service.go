package search

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const indexQueueSize = 256

// indexOp is one queued index write. A nil rec deletes id.
type indexOp struct {
	id  string
	rec *NoteRecord
}

// Service is the facade that tries the index first and falls back to PG FTS.
// Index writes are applied by a single worker in submission order, so a
// delete is never overtaken by an earlier write for the same note.
type Service struct {
	index    Index
	fallback Searcher
	logger   zerolog.Logger

	ops     chan indexOp
	pending sync.WaitGroup
	stop    sync.Once
	done    chan struct{}
}

// NewService creates a search service. Either backend may be nil.
func NewService(index Index, fallback Searcher, logger zerolog.Logger) *Service {
	s := &Service{
		index:    index,
		fallback: fallback,
		logger:   logger.With().Str("component", "search").Logger(),
		done:     make(chan struct{}),
	}
	if index == nil {
		close(s.done)
		return s
	}
	s.ops = make(chan indexOp, indexQueueSize)
	go s.run()
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to PG FTS. Backend
// failures degrade to an empty result.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	q.Limit, q.Offset = clampPage(q.Limit, q.Offset)
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if q.Text == "" || q.PrincipalID == "" {
		return empty
	}

	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("index search failed, falling back to pgfts")
	}

	if s.fallback == nil {
		return empty
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("pgfts search failed")
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote queues rec for indexing and returns immediately.
func (s *Service) IndexNote(rec NoteRecord) {
	s.enqueue(indexOp{id: rec.ID, rec: &rec})
}

// DeleteNote queues the removal of a note from the index.
func (s *Service) DeleteNote(id string) {
	s.enqueue(indexOp{id: id})
}

func (s *Service) enqueue(op indexOp) {
	if s.ops == nil {
		return
	}
	s.pending.Add(1)
	s.ops <- op
}

func (s *Service) run() {
	defer close(s.done)
	for op := range s.ops {
		s.apply(op)
		s.pending.Done()
	}
}

func (s *Service) apply(op indexOp) {
	if !s.indexReady() {
		return
	}
	if op.rec == nil {
		if err := s.index.DeleteNote(op.id); err != nil {
			s.logger.Error().Err(err).Str("note_id", op.id).Msg("delete note from index")
		}
		return
	}
	if err := s.index.IndexNote(*op.rec); err != nil {
		s.logger.Error().Err(err).Str("note_id", op.id).Msg("index note")
	}
}

// Flush blocks until every queued index write has been applied.
func (s *Service) Flush() {
	s.pending.Wait()
}

// Close drains the queue and stops the worker. IndexNote and DeleteNote must
// not be called afterwards.
func (s *Service) Close() {
	s.stop.Do(func() {
		if s.ops != nil {
			close(s.ops)
		}
	})
	<-s.done
}

// RecordLoader lists every note for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]NoteRecord, error)
}

// ReindexAll pushes every note from loader into the index.
func (s *Service) ReindexAll(ctx context.Context, loader RecordLoader) {
	if !s.indexReady() || loader == nil {
		return
	}
	records, err := loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reindex load failed")
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.index.IndexNotes(records); err != nil {
		s.logger.Error().Err(err).Int("count", len(records)).Msg("reindex notes")
		return
	}
	s.logger.Info().Int("count", len(records)).Msg("reindexed notes")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
