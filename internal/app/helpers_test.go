package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"inkvault/api/internal/content"
	"inkvault/api/internal/export"
	"inkvault/api/internal/history"
	"inkvault/api/internal/metrics"
	"inkvault/api/internal/response"
	"inkvault/api/internal/search"
	"inkvault/api/internal/session"
	"inkvault/api/internal/store"
)

const testPassword = "correct horse battery"

type sentInvite struct {
	To, Inviter, Title, NoteID string
}

type fakeNotifier struct {
	mu         sync.Mutex
	configured bool
	sent       []sentInvite
}

func (f *fakeNotifier) IsConfigured() bool { return f.configured }

func (f *fakeNotifier) SendCollaboratorInvite(to, inviter, noteTitle, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentInvite{To: to, Inviter: inviter, Title: noteTitle, NoteID: noteID})
	return nil
}

type fakeSearch struct {
	mu        sync.Mutex
	indexed   []search.NoteRecord
	deleted   []string
	lastQuery search.Query
	response  search.Response
	flushed   int
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return f.response
}

func (f *fakeSearch) IndexNote(rec search.NoteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, rec)
}

func (f *fakeSearch) DeleteNote(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

// racingStore lets a test slip a write in just before the service's own
// compare-and-swap runs.
type racingStore struct {
	*store.MemoryStore
	race func()
}

func (r *racingStore) UpdateNoteIfVersion(ctx context.Context, noteID string, expected int64, update store.NoteUpdate) (store.Note, error) {
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return r.MemoryStore.UpdateNoteIfVersion(ctx, noteID, expected, update)
}

type testApp struct {
	svc      *Service
	server   *HTTPServer
	handler  http.Handler
	store    *store.MemoryStore
	sessions *session.MemoryStore
	email    *fakeNotifier
	search   *fakeSearch
	metrics  *metrics.Metrics
}

func newTestApp(t *testing.T, opts ...func(*Dependencies)) *testApp {
	t.Helper()
	app := &testApp{
		store:    store.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		email:    &fakeNotifier{configured: true},
		search:   &fakeSearch{response: search.Response{Results: []search.Result{}}},
		metrics:  metrics.New(),
	}
	deps := Dependencies{
		Store:      app.store,
		Sessions:   app.sessions,
		History:    history.New(t.TempDir()),
		Search:     app.search,
		Export:     export.NewService(nil),
		Email:      app.email,
		Metrics:    app.metrics,
		Logger:     zerolog.Nop(),
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	app.svc = New(deps)
	app.server = NewHTTPServer(app.svc, HTTPConfig{
		CORSOrigin:   "*",
		ErrorDocsURL: "https://docs.example.com/errors",
		Metrics:      app.metrics,
		Logger:       zerolog.Nop(),
	})
	app.handler = app.server.Handler()
	t.Cleanup(app.svc.Wait)
	return app
}

// signUp registers email and returns the new principal id.
func (a *testApp) signUp(t *testing.T, email string) string {
	t.Helper()
	if err := a.svc.Register(context.Background(), email, testPassword); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	user, err := a.store.GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	return user.ID
}

func (a *testApp) token(t *testing.T, email string) string {
	t.Helper()
	session, err := a.svc.Login(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return session.Token
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data      json.RawMessage     `json:"data"`
	Meta      *response.Meta      `json:"meta"`
	Errors    []response.APIError `json:"errors"`
	RequestID string              `json:"requestId"`
	Timestamp time.Time           `json:"timestamp"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse envelope: %v body=%s", err, rr.Body.String())
	}
	if env.RequestID == "" {
		t.Fatalf("envelope without requestId: %s", rr.Body.String())
	}
	if env.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("requestId %q does not match header %q", env.RequestID, rr.Header().Get("X-Request-ID"))
	}
	if env.Timestamp.IsZero() {
		t.Fatalf("envelope without timestamp: %s", rr.Body.String())
	}
	return env
}

func requireErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if len(env.Errors) == 0 {
		t.Fatalf("expected errors, got %s", rr.Body.String())
	}
	if env.Errors[0].Code != code {
		t.Fatalf("expected code %s, got %s", code, env.Errors[0].Code)
	}
	return env
}

func requireDomainCode(t *testing.T, err error, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, domainErr.Code, domainErr)
	}
	return domainErr
}

func draft(text string) content.Document {
	return content.Doc(content.Para(content.Txt(text)))
}

const draftJSON = `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"draft"}]}]}`
