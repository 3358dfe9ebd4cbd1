package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"inkvault/api/internal/content"
)

func snapshot(version int64, text string) Snapshot {
	return Snapshot{
		Title:   fmt.Sprintf("Plan v%d", version),
		Version: version,
		Content: content.Doc(content.Para(content.Txt(text))),
	}
}

func TestNoteHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Record("note_1", "alice", snapshot(1, "draft"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "note_1", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, err := svc.Record("note_1", "bob", snapshot(2, "final"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == second.Hash {
		t.Fatal("expected distinct commits")
	}

	versions, err := svc.Versions("note_1", 0)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 2 || versions[1].Version != 1 {
		t.Fatalf("unexpected versions: %+v", versions)
	}
	if versions[0].Author != "bob" || versions[0].Title != "Plan v2" {
		t.Fatalf("unexpected newest entry: %+v", versions[0])
	}

	limited, err := svc.Versions("note_1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Versions(limit=1) = %v, %v", limited, err)
	}

	snap, entry, err := svc.Get("note_1", first.Hash[:8])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Hash != first.Hash || snap.Version != 1 {
		t.Fatalf("unexpected snapshot: %+v %+v", snap, entry)
	}
	if !content.Equal(snap.Content, content.Doc(content.Para(content.Txt("draft")))) {
		t.Fatalf("unexpected content: %+v", snap.Content)
	}

	if err := svc.Remove("note_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := svc.Versions("note_1", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Versions() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestIdenticalSnapshotsStillCommit(t *testing.T) {
	svc := New(t.TempDir())
	snap := snapshot(1, "same")
	if _, err := svc.Record("n", "alice", snap); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := svc.Record("n", "alice", snap); err != nil {
		t.Fatalf("Record() identical error = %v", err)
	}
	versions, err := svc.Versions("n", 0)
	if err != nil || len(versions) != 2 {
		t.Fatalf("Versions() = %v, %v", versions, err)
	}
}

func TestGetUnknownHash(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("n", "alice", snapshot(1, "x")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, _, err := svc.Get("n", "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Get("missing", "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on missing repo error = %v, want ErrNotFound", err)
	}
}

func TestRejectsPathLikeIDs(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("../escape", "alice", snapshot(1, "x")); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestConcurrentRecordsOnSameNote(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(version int64) {
			defer wg.Done()
			if _, err := svc.Record("busy", "alice", snapshot(version, "x")); err != nil {
				t.Errorf("Record(%d) error = %v", version, err)
			}
		}(int64(i))
	}
	wg.Wait()

	versions, err := svc.Versions("busy", 0)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 8 {
		t.Fatalf("expected 8 commits, got %d", len(versions))
	}
}

func TestRecordAfterRemoveIsRefused(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, err := svc.Record("note_1", "alice", snapshot(1, "draft")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Remove("note_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := svc.Record("note_1", "alice", snapshot(2, "late")); !errors.Is(err, ErrRemoved) {
		t.Fatalf("Record() after Remove error = %v, want ErrRemoved", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "note_1")); !os.IsNotExist(err) {
		t.Fatalf("expected no repo after Remove, stat error = %v", err)
	}
}

func TestRemoveRacingRecordsLeavesNoRepo(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(version int64) {
			defer wg.Done()
			if _, err := svc.Record("doomed", "alice", snapshot(version, "x")); err != nil && !errors.Is(err, ErrRemoved) {
				t.Errorf("Record(%d) error = %v", version, err)
			}
		}(int64(i))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Remove("doomed"); err != nil {
			t.Errorf("Remove() error = %v", err)
		}
	}()
	wg.Wait()

	if _, err := os.Stat(filepath.Join(tempDir, "doomed")); !os.IsNotExist(err) {
		t.Fatalf("expected no repo after Remove, stat error = %v", err)
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Ada Lovelace!"); got != "Ada.Lovelace" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
