// Package history keeps a git repository per note and commits one snapshot for
// every accepted version, so earlier versions can be listed and read back.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"inkvault/api/internal/content"
)

const snapshotFile = "note.json"

var (
	ErrNotFound = errors.New("history not found")
	// ErrRemoved is returned by Record once the note's history was removed.
	ErrRemoved   = errors.New("history removed")
	validNoteID  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	errInvalidID = errors.New("invalid note id")
)

// Snapshot is the committed state of one note version.
type Snapshot struct {
	Title         string           `json:"title"`
	Version       int64            `json:"version"`
	Content       content.Document `json:"content"`
	Collaborators []string         `json:"collaborators"`
}

// Entry describes one committed version.
type Entry struct {
	Hash        string    `json:"hash"`
	Version     int64     `json:"version"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	CommittedAt time.Time `json:"committedAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	// removed holds deleted note ids; guarded by lockMu.
	removed map[string]struct{}
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		removed: make(map[string]struct{}),
	}
}

// Record commits snap as the next entry of the note's history, creating the
// repository on first use. It fails with ErrRemoved after Remove.
func (s *Service) Record(noteID, author string, snap Snapshot) (Entry, error) {
	if !validNoteID.MatchString(noteID) {
		return Entry{}, errInvalidID
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()
	if s.isRemoved(noteID) {
		return Entry{}, ErrRemoved
	}

	repo, err := s.openOrInit(noteID)
	if err != nil {
		return Entry{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Entry{}, fmt.Errorf("open worktree: %w", err)
	}

	if snap.Collaborators == nil {
		snap.Collaborators = []string{}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Entry{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(fmt.Sprintf("version %d", snap.Version), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.inkvault.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Entry{}, fmt.Errorf("read commit object: %w", err)
	}
	return toEntry(commitObj, snap), nil
}

// Versions lists the note's history newest first. limit <= 0 means all.
func (s *Service) Versions(noteID string, limit int) ([]Entry, error) {
	repo, unlock, err := s.open(noteID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := []Entry{}
	err = iter.ForEach(func(commitObj *object.Commit) error {
		snap, err := readSnapshot(commitObj)
		if err != nil {
			return err
		}
		items = append(items, toEntry(commitObj, snap))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Get returns the snapshot committed under hash, which may be abbreviated.
func (s *Service) Get(noteID, hash string) (Snapshot, Entry, error) {
	repo, unlock, err := s.open(noteID)
	if err != nil {
		return Snapshot{}, Entry{}, err
	}
	defer unlock()

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, Entry{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, Entry{}, ErrNotFound
	}
	snap, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, Entry{}, err
	}
	return snap, toEntry(commitObj, snap), nil
}

// Remove deletes the note's repository for good: later Record calls for the
// same id are refused. Removing a missing repository is not an error.
func (s *Service) Remove(noteID string) error {
	if !validNoteID.MatchString(noteID) {
		return errInvalidID
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()

	s.lockMu.Lock()
	s.removed[noteID] = struct{}{}
	s.lockMu.Unlock()

	if err := os.RemoveAll(s.repoPath(noteID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) isRemoved(noteID string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	_, ok := s.removed[noteID]
	return ok
}

func (s *Service) open(noteID string) (*git.Repository, func(), error) {
	if !validNoteID.MatchString(noteID) {
		return nil, nil, ErrNotFound
	}
	lock := s.noteLock(noteID)
	lock.Lock()
	repo, err := git.PlainOpen(s.repoPath(noteID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		lock.Unlock()
		return nil, nil, ErrNotFound
	}
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (s *Service) openOrInit(noteID string) (*git.Repository, error) {
	path := s.repoPath(noteID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(noteID string) string {
	return filepath.Join(s.baseDir, noteID)
}

func (s *Service) noteLock(noteID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[noteID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[noteID] = lock
	return lock
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func toEntry(commitObj *object.Commit, snap Snapshot) Entry {
	return Entry{
		Hash:        commitObj.Hash.String(),
		Version:     snap.Version,
		Title:       snap.Title,
		Author:      commitObj.Author.Name,
		CommittedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	if len(hash) < 4 {
		return plumbing.ZeroHash, ErrNotFound
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, ErrNotFound
	}
	return *resolved, nil
}
