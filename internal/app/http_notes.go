package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"inkvault/api/internal/content"
	"inkvault/api/internal/response"
)

const (
	defaultPerPage  = 20
	maxPerPage      = 100
	defaultVersions = 50
)

type noteBody struct {
	Title         string          `json:"title"`
	Content       json.RawMessage `json:"content"`
	Version       *int64          `json:"version"`
	Collaborators *[]string       `json:"collaborators"`
}

// handleNotes serves /api/v1/notes and everything below it. parts excludes
// the leading "notes" segment.
func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			notes, err := s.service.ListNotes(r.Context(), session.PrincipalID)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writer.JSON(w, r, http.StatusOK, notes, &response.Meta{Total: len(notes)})
		case http.MethodPost:
			s.handleCreateNote(w, r, session)
		default:
			allowMethod(w, r, http.MethodGet, http.MethodPost)
			s.methodNotAllowed(w, r)
		}
		return

	case len(parts) == 1 && parts[0] == "search":
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleSearch(w, r, session)
		return

	case len(parts) == 1:
		s.handleNote(w, r, session, parts[0])
		return

	case len(parts) == 2 && parts[1] == "versions":
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		limit := defaultVersions
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		entries, err := s.service.NoteVersions(r.Context(), session.PrincipalID, parts[0], limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, entries, &response.Meta{Total: len(entries)})
		return

	case len(parts) == 3 && parts[1] == "versions":
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		entry, snap, err := s.service.NoteVersion(r.Context(), session.PrincipalID, parts[0], parts[2])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, versionView{Entry: entry, Snapshot: snap}, nil)
		return

	case len(parts) == 2 && parts[1] == "export":
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		result, err := s.service.ExportNote(r.Context(), session.PrincipalID, parts[0], r.URL.Query().Get("format"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, exportView{
			Filename: result.Filename,
			MimeType: result.MimeType,
			Content:  result.Data,
		}, nil)
		return
	}

	s.writeError(w, r, errNotFound)
}

func (s *HTTPServer) handleNote(w http.ResponseWriter, r *http.Request, session Session, noteID string) {
	switch r.Method {
	case http.MethodGet:
		note, err := s.service.GetNote(r.Context(), session.PrincipalID, noteID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, note, nil)

	case http.MethodPut:
		var body noteBody
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		if body.Version == nil {
			s.writeError(w, r, validationError("version", "Version is required"))
			return
		}
		doc, contentErr := parseContent(body.Content)
		note, err := s.service.UpdateNote(r.Context(), session.PrincipalID, noteID, UpdateNoteInput{
			ExpectedVersion: *body.Version,
			Title:           body.Title,
			Content:         doc,
			Collaborators:   body.Collaborators,
			contentErr:      contentErr,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, note, nil)

	case http.MethodDelete:
		if err := s.service.DeleteNote(r.Context(), session.PrincipalID, noteID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writer.NoContent(w)

	default:
		allowMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		s.methodNotAllowed(w, r)
	}
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request, session Session) {
	var body noteBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := parseContent(body.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	input := CreateNoteInput{Title: body.Title, Content: doc}
	if body.Collaborators != nil {
		input.Collaborators = *body.Collaborators
	}
	note, err := s.service.CreateNote(r.Context(), session.PrincipalID, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/notes/"+note.ID)
	s.writer.JSON(w, r, http.StatusCreated, note, nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	page := positiveInt(query.Get("page"), 1)
	perPage := positiveInt(query.Get("perPage"), defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	result := s.service.SearchNotes(r.Context(), session.PrincipalID, query.Get("q"), perPage, (page-1)*perPage)
	s.writer.JSON(w, r, http.StatusOK, result.Results, &response.Meta{
		Total:   result.Total,
		Page:    page,
		PerPage: perPage,
	})
}

func parseContent(raw json.RawMessage) (content.Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return content.Document{}, validationError("content", "Content is required")
	}
	doc, err := content.Parse(raw)
	if err != nil {
		return content.Document{}, contentError(err)
	}
	return doc, nil
}

func positiveInt(raw string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
