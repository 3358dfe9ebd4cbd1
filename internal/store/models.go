package store

import (
	"time"

	"inkvault/api/internal/content"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Note is a stored note. HTMLSnapshot is derived from Content and is replaced
// whenever Content is. Collaborators never contains OwnerID and is kept sorted.
type Note struct {
	ID            string
	Title         string
	Content       content.Document
	HTMLSnapshot  string
	Version       int64
	OwnerID       string
	Collaborators []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NoteUpdate is the full replacement applied by UpdateNoteIfVersion.
type NoteUpdate struct {
	Title         string
	Content       content.Document
	HTMLSnapshot  string
	Collaborators []string
	UpdatedAt     time.Time
}

// Session maps the hash of an opaque bearer token to a principal.
type Session struct {
	TokenHash   string
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (n Note) clone() Note {
	out := n
	out.Collaborators = append([]string{}, n.Collaborators...)
	return out
}

// HasMember reports whether principal owns or collaborates on the note.
func (n Note) HasMember(principal string) bool {
	if principal == "" {
		return false
	}
	if n.OwnerID == principal {
		return true
	}
	for _, id := range n.Collaborators {
		if id == principal {
			return true
		}
	}
	return false
}
