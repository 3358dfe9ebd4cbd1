package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps users and notes in process. The map lock is held only to
// find a note's slot; the compare-and-increment runs under that slot's own
// lock, so updates to different notes never wait on each other.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User
	emails map[string]string
	notes  map[string]*noteSlot
}

type noteSlot struct {
	mu      sync.Mutex
	note    Note
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  map[string]User{},
		emails: map[string]string{},
		notes:  map[string]*noteSlot{},
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := s.emails[email]; exists {
		return ErrDuplicateEmail
	}
	s.users[user.ID] = user
	s.emails[email] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return s.users[id], nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *MemoryStore) InsertNote(_ context.Context, note Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = &noteSlot{note: note.clone()}
	return nil
}

func (s *MemoryStore) slot(noteID string) *noteSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes[noteID]
}

func (s *MemoryStore) GetNote(_ context.Context, noteID string) (Note, error) {
	slot := s.slot(noteID)
	if slot == nil {
		return Note{}, sql.ErrNoRows
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.deleted {
		return Note{}, sql.ErrNoRows
	}
	return slot.note.clone(), nil
}

func (s *MemoryStore) ListNotesForPrincipal(_ context.Context, principalID string) ([]Note, error) {
	s.mu.RLock()
	slots := make([]*noteSlot, 0, len(s.notes))
	for _, slot := range s.notes {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	items := []Note{}
	for _, slot := range slots {
		slot.mu.Lock()
		if !slot.deleted && slot.note.HasMember(principalID) {
			items = append(items, slot.note.clone())
		}
		slot.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) UpdateNoteIfVersion(_ context.Context, noteID string, expected int64, update NoteUpdate) (Note, error) {
	slot := s.slot(noteID)
	if slot == nil {
		return Note{}, sql.ErrNoRows
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.deleted {
		return Note{}, sql.ErrNoRows
	}
	if slot.note.Version != expected {
		return Note{}, &ConflictError{Expected: expected, Current: slot.note.clone()}
	}

	next := slot.note
	next.Title = update.Title
	next.Content = update.Content
	next.HTMLSnapshot = update.HTMLSnapshot
	next.Collaborators = append([]string{}, update.Collaborators...)
	next.Version++
	next.UpdatedAt = update.UpdatedAt
	slot.note = next
	return next.clone(), nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, noteID string) error {
	slot := s.slot(noteID)
	if slot == nil {
		return sql.ErrNoRows
	}
	slot.mu.Lock()
	if slot.deleted {
		slot.mu.Unlock()
		return sql.ErrNoRows
	}
	slot.deleted = true
	slot.mu.Unlock()

	s.mu.Lock()
	if s.notes[noteID] == slot {
		delete(s.notes, noteID)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
