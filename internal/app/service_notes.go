package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"inkvault/api/internal/content"
	"inkvault/api/internal/export"
	"inkvault/api/internal/history"
	"inkvault/api/internal/rbac"
	"inkvault/api/internal/search"
	"inkvault/api/internal/store"
	"inkvault/api/internal/util"
)

const maxTitleLength = 300

// CreateNoteInput describes a new note. Collaborators are normalised like on
// update and must all be registered users.
type CreateNoteInput struct {
	Title         string
	Content       content.Document
	Collaborators []string
}

// UpdateNoteInput replaces a note's title and content. A nil Collaborators
// keeps the stored set; a non-nil empty slice clears it.
type UpdateNoteInput struct {
	ExpectedVersion int64
	Title           string
	Content         content.Document
	Collaborators   *[]string

	// contentErr is a decode failure of the request's content; it is reported
	// only once the version check has passed.
	contentErr error
}

func (s *Service) CreateNote(ctx context.Context, principalID string, input CreateNoteInput) (NoteView, error) {
	title, err := validateNoteFields(input.Title, input.Content)
	if err != nil {
		return NoteView{}, err
	}
	collaborators := normalizeCollaborators(input.Collaborators, principalID)
	added, err := s.newCollaborators(ctx, nil, collaborators)
	if err != nil {
		return NoteView{}, err
	}

	now := s.now().UTC()
	note := store.Note{
		ID:            util.NewID("note"),
		Title:         title,
		Content:       input.Content,
		HTMLSnapshot:  content.Render(input.Content),
		Version:       1,
		OwnerID:       principalID,
		Collaborators: collaborators,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return NoteView{}, fmt.Errorf("insert note: %w", err)
	}

	s.afterWrite(note, principalID, "create")
	if len(added) > 0 {
		s.notifyCollaborators(ctx, principalID, note, added)
	}
	return noteView(note), nil
}

func (s *Service) GetNote(ctx context.Context, principalID, noteID string) (NoteView, error) {
	note, err := s.authorize(ctx, principalID, noteID, rbac.ActionRead)
	if err != nil {
		return NoteView{}, err
	}
	return noteView(note), nil
}

// ListNotes returns every note the principal owns or collaborates on, most
// recently updated first.
func (s *Service) ListNotes(ctx context.Context, principalID string) ([]NoteView, error) {
	notes, err := s.store.ListNotesForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return noteViews(notes), nil
}

// UpdateNote applies input if the stored version still equals
// input.ExpectedVersion. Otherwise it fails with VERSION_CONFLICT carrying the
// current note. The store never merges and the service never retries.
func (s *Service) UpdateNote(ctx context.Context, principalID, noteID string, input UpdateNoteInput) (NoteView, error) {
	current, err := s.authorize(ctx, principalID, noteID, rbac.ActionWrite)
	if err != nil {
		return NoteView{}, err
	}
	if input.ExpectedVersion != current.Version {
		s.metrics.VersionConflict()
		return NoteView{}, versionConflict(noteView(current))
	}
	if input.contentErr != nil {
		return NoteView{}, input.contentErr
	}

	title, err := validateNoteFields(input.Title, input.Content)
	if err != nil {
		return NoteView{}, err
	}

	collaborators := current.Collaborators
	var added []store.User
	if input.Collaborators != nil {
		collaborators = normalizeCollaborators(*input.Collaborators, current.OwnerID)
		added, err = s.newCollaborators(ctx, current.Collaborators, collaborators)
		if err != nil {
			return NoteView{}, err
		}
	}

	updated, err := s.store.UpdateNoteIfVersion(ctx, noteID, input.ExpectedVersion, store.NoteUpdate{
		Title:         title,
		Content:       input.Content,
		HTMLSnapshot:  content.Render(input.Content),
		Collaborators: collaborators,
		UpdatedAt:     s.now().UTC(),
	})
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.metrics.VersionConflict()
		if !conflict.Current.HasMember(principalID) {
			return NoteView{}, errForbidden
		}
		return NoteView{}, versionConflict(noteView(conflict.Current))
	case errors.Is(err, sql.ErrNoRows):
		return NoteView{}, errNotFound
	case err != nil:
		return NoteView{}, fmt.Errorf("update note: %w", err)
	}

	s.afterWrite(updated, principalID, "update")
	if len(added) > 0 {
		s.notifyCollaborators(ctx, principalID, updated, added)
	}
	return noteView(updated), nil
}

// DeleteNote removes a note for good. Only the owner may delete.
func (s *Service) DeleteNote(ctx context.Context, principalID, noteID string) error {
	if _, err := s.authorize(ctx, principalID, noteID, rbac.ActionDelete); err != nil {
		return err
	}
	err := s.store.DeleteNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	s.metrics.Mutation("delete")
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	if s.history != nil {
		if err := s.history.Remove(noteID); err != nil {
			s.logger.Warn().Err(err).Str("note_id", noteID).Msg("remove history failed")
		}
	}
	return nil
}

// NoteVersions lists recorded versions, newest first.
func (s *Service) NoteVersions(ctx context.Context, principalID, noteID string, limit int) ([]history.Entry, error) {
	if _, err := s.authorize(ctx, principalID, noteID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Entry{}, nil
	}
	entries, err := s.history.Versions(noteID, limit)
	if errors.Is(err, history.ErrNotFound) {
		return []history.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return entries, nil
}

func (s *Service) NoteVersion(ctx context.Context, principalID, noteID, hash string) (history.Entry, history.Snapshot, error) {
	if _, err := s.authorize(ctx, principalID, noteID, rbac.ActionRead); err != nil {
		return history.Entry{}, history.Snapshot{}, err
	}
	if s.history == nil {
		return history.Entry{}, history.Snapshot{}, errNotFound
	}
	snap, entry, err := s.history.Get(noteID, hash)
	if errors.Is(err, history.ErrNotFound) {
		return history.Entry{}, history.Snapshot{}, errNotFound
	}
	if err != nil {
		return history.Entry{}, history.Snapshot{}, fmt.Errorf("read version: %w", err)
	}
	return entry, snap, nil
}

func (s *Service) ExportNote(ctx context.Context, principalID, noteID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, validationError("format", "format must be html or pdf")
	}
	note, err := s.authorize(ctx, principalID, noteID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, errExportUnavailable
	}

	author := note.OwnerID
	if owner, err := s.store.GetUserByID(ctx, note.OwnerID); err == nil {
		author = owner.Email
	}
	result, err := s.export.Export(ctx, export.Request{
		Title:     note.Title,
		Content:   note.Content,
		Author:    author,
		Version:   note.Version,
		UpdatedAt: note.UpdatedAt,
		Format:    format,
	})
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, errExportUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("export note: %w", err)
	}
	return result, nil
}

// SearchNotes runs a full-text query restricted to notes the principal can
// read. Every hit is re-checked against the store, so an index that lags
// behind a delete or a collaborator change never leaks a note.
func (s *Service) SearchNotes(ctx context.Context, principalID, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(text)}
	}
	resp := s.search.Search(ctx, search.Query{
		Text:        text,
		PrincipalID: principalID,
		Limit:       limit,
		Offset:      offset,
	})

	visible := make([]search.Result, 0, len(resp.Results))
	for _, hit := range resp.Results {
		note, err := s.authorize(ctx, principalID, hit.NoteID, rbac.ActionRead)
		if err != nil {
			var domainErr *DomainError
			if !errors.As(err, &domainErr) {
				s.logger.Warn().Err(err).Str("note_id", hit.NoteID).Msg("search hit check failed")
			}
			resp.Total--
			continue
		}
		hit.Title = note.Title
		visible = append(visible, hit)
	}
	resp.Results = visible
	if resp.Total < len(visible) {
		resp.Total = len(visible)
	}
	return resp
}

// authorize loads a note and checks that principalID may perform action on it.
func (s *Service) authorize(ctx context.Context, principalID, noteID string, action rbac.Action) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, errNotFound
	}
	if err != nil {
		return store.Note{}, fmt.Errorf("get note: %w", err)
	}
	role := rbac.RoleFor(principalID, note.OwnerID, note.Collaborators)
	if !rbac.Can(role, action) {
		return store.Note{}, errForbidden
	}
	return note, nil
}

func validateNoteFields(title string, doc content.Document) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationError("title", "Title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", validationError("title", fmt.Sprintf("Title must be at most %d characters", maxTitleLength))
	}
	if err := content.Validate(doc); err != nil {
		return "", contentError(err)
	}
	return title, nil
}

// normalizeCollaborators trims, de-duplicates and sorts ids and drops the owner.
func normalizeCollaborators(ids []string, ownerID string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == ownerID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// newCollaborators returns the users in next that are not in previous. Each
// of them must be a registered user.
func (s *Service) newCollaborators(ctx context.Context, previous, next []string) ([]store.User, error) {
	existing := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		existing[id] = struct{}{}
	}
	var added []store.User
	for _, id := range next {
		if _, ok := existing[id]; ok {
			continue
		}
		user, err := s.store.GetUserByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationError("collaborators", fmt.Sprintf("Unknown collaborator %q", id))
		}
		if err != nil {
			return nil, fmt.Errorf("lookup collaborator: %w", err)
		}
		added = append(added, user)
	}
	return added, nil
}

// afterWrite runs the side effects of a committed create or update. None of
// them can fail the write.
func (s *Service) afterWrite(note store.Note, principalID, op string) {
	s.metrics.Mutation(op)
	if s.search != nil {
		s.search.IndexNote(search.RecordFromNote(note))
	}
	if s.history != nil {
		_, err := s.history.Record(note.ID, principalID, history.Snapshot{
			Title:         note.Title,
			Version:       note.Version,
			Content:       note.Content,
			Collaborators: note.Collaborators,
		})
		switch {
		case errors.Is(err, history.ErrRemoved):
			s.logger.Debug().Str("note_id", note.ID).Int64("version", note.Version).Msg("note deleted before history was recorded")
		case err != nil:
			s.logger.Warn().Err(err).Str("note_id", note.ID).Int64("version", note.Version).Msg("record history failed")
		}
	}
}

func (s *Service) notifyCollaborators(ctx context.Context, principalID string, note store.Note, added []store.User) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	inviter := principalID
	if user, err := s.store.GetUserByID(ctx, principalID); err == nil {
		inviter = user.Email
	}
	s.runBackground(func() {
		for _, user := range added {
			if err := s.email.SendCollaboratorInvite(user.Email, inviter, note.Title, note.ID); err != nil {
				s.logger.Warn().Err(err).Str("note_id", note.ID).Str("collaborator_id", user.ID).Msg("send invite failed")
			}
		}
	})
}
