package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inkvault/api/internal/authpw"
	"inkvault/api/internal/export"
	"inkvault/api/internal/history"
	"inkvault/api/internal/metrics"
	"inkvault/api/internal/search"
	"inkvault/api/internal/store"
)

// DataStore is the user and note storage the service runs on. UpdateNoteIfVersion
// must be atomic per note and return *store.ConflictError on a stale version.
type DataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertNote(context.Context, store.Note) error
	GetNote(context.Context, string) (store.Note, error)
	ListNotesForPrincipal(context.Context, string) ([]store.Note, error)
	UpdateNoteIfVersion(context.Context, string, int64, store.NoteUpdate) (store.Note, error)
	DeleteNote(context.Context, string) error
	Ping(ctx context.Context) error
}

// SessionStore maps token hashes to sessions. Unknown or revoked hashes
// return store.ErrSessionNotFound.
type SessionStore interface {
	SaveSession(context.Context, store.Session) error
	LookupSession(context.Context, string) (store.Session, error)
	RevokeSession(context.Context, string) error
}

type historyService interface {
	Record(noteID, author string, snap history.Snapshot) (history.Entry, error)
	Versions(noteID string, limit int) ([]history.Entry, error)
	Get(noteID, hash string) (history.Snapshot, history.Entry, error)
	Remove(noteID string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexNote(search.NoteRecord)
	DeleteNote(id string)
	Flush()
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type notifier interface {
	IsConfigured() bool
	SendCollaboratorInvite(to, inviter, noteTitle, noteID string) error
}

// Dependencies wires a Service. Store and Sessions are required; every other
// field may be left nil to disable the feature.
type Dependencies struct {
	Store      DataStore
	Sessions   SessionStore
	History    historyService
	Search     searchService
	Export     exporter
	Email      notifier
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	SessionTTL time.Duration
	BcryptCost int
}

type Service struct {
	store      DataStore
	sessions   SessionStore
	passwords  *authpw.Service
	history    historyService
	search     searchService
	export     exporter
	email      notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	sessionTTL time.Duration
	now        func() time.Time

	background sync.WaitGroup
}

func New(deps Dependencies) *Service {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:      deps.Store,
		sessions:   deps.Sessions,
		passwords:  authpw.NewService(deps.Store, deps.BcryptCost),
		history:    deps.History,
		search:     deps.Search,
		export:     deps.Export,
		email:      deps.Email,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		sessionTTL: ttl,
		now:        time.Now,
	}
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store when it can report its health.
// ok is false when the store has no health check.
func (s *Service) PingSessions(ctx context.Context) (ok bool, err error) {
	pinger, ok := s.sessions.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

// Wait blocks until background notifications have been sent and queued
// search index writes have been applied.
func (s *Service) Wait() {
	s.background.Wait()
	if s.search != nil {
		s.search.Flush()
	}
}

func (s *Service) runBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}
