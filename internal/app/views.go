package app

import (
	"time"

	"inkvault/api/internal/content"
	"inkvault/api/internal/history"
	"inkvault/api/internal/store"
)

// NoteView is the wire form of a note.
type NoteView struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Content       content.Document `json:"content"`
	HTMLSnapshot  string           `json:"htmlSnapshot"`
	Version       int64            `json:"version"`
	OwnerID       string           `json:"ownerId"`
	Collaborators []string         `json:"collaborators"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func noteView(note store.Note) NoteView {
	collaborators := append([]string{}, note.Collaborators...)
	return NoteView{
		ID:            note.ID,
		Title:         note.Title,
		Content:       note.Content,
		HTMLSnapshot:  note.HTMLSnapshot,
		Version:       note.Version,
		OwnerID:       note.OwnerID,
		Collaborators: collaborators,
		CreatedAt:     note.CreatedAt.UTC(),
		UpdatedAt:     note.UpdatedAt.UTC(),
	}
}

func noteViews(notes []store.Note) []NoteView {
	out := make([]NoteView, 0, len(notes))
	for _, note := range notes {
		out = append(out, noteView(note))
	}
	return out
}

type sessionView struct {
	PrincipalID string    `json:"principalId"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type loginView struct {
	Token       string    `json:"token"`
	PrincipalID string    `json:"principalId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type versionView struct {
	Entry    history.Entry    `json:"entry"`
	Snapshot history.Snapshot `json:"snapshot"`
}

type exportView struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  []byte `json:"content"`
}
