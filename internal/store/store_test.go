package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
)

// setupTestDB opens a fresh database with the schema applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func remoteNote(id, title string) *note.Note {
	return &note.Note{ID: id, Owner: "42", Title: title, UpdatedAt: time.Now()}
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

// TestInitSchema_Idempotent tests that schema initialization can run on every start
func TestInitSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Fatalf("Second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"notes", "pending_deletions"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestSaveAndGet(t *testing.T) {
	db := setupTestDB(t)

	n := note.NewLocal("Buy milk", "2 litres")
	n.Label = "errands"
	n.Due = note.OnDate(2025, time.November, 24)

	if err := db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := db.Get(n.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Title != "Buy milk" || got.Content != "2 litres" || got.Label != "errands" {
		t.Errorf("Get() = %+v, fields do not match", got)
	}
	if got.Owner != note.LocalOwner {
		t.Errorf("Owner = %q, want local", got.Owner)
	}
	if !got.Dirty {
		t.Error("Dirty = false, want true")
	}
	if got.Due == nil || !got.Due.AllDay || got.Due.Date() != "2025-11-24" {
		t.Errorf("Due = %+v, want all-day 2025-11-24", got.Due)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGet_CorruptTimestamp(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Save(remoteNote("r1", "a"), false); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := db.conn.Exec(`UPDATE notes SET updated_at = 'yesterday' WHERE id = 'r1'`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Get("r1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want a parse failure", err)
	}
	if !IsStorageError(err) || !strings.Contains(err.Error(), "updated_at") {
		t.Errorf("Get() error = %v, want storage error naming updated_at", err)
	}
	if _, err := db.GetAll(); err == nil {
		t.Error("GetAll() should fail on a corrupt row")
	}
}

func TestSave_Upsert(t *testing.T) {
	db := setupTestDB(t)

	n := remoteNote("100", "v1")
	if err := db.Save(n, false); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	n.Title = "v2"
	if err := db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	all, err := db.GetAll()
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 note, got %d", len(all))
	}
	if all[0].Title != "v2" || !all[0].Dirty {
		t.Errorf("GetAll()[0] = %+v, want title v2 and dirty", all[0])
	}
}

func TestSave_Invalid(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Save(&note.Note{Owner: note.LocalOwner}, true); err == nil {
		t.Error("Save() with no id should fail")
	}
}

func TestSave_TimedAndTextDue(t *testing.T) {
	db := setupTestDB(t)

	at := time.Date(2025, time.December, 11, 18, 15, 0, 0, time.UTC)
	timed := remoteNote("1", "timed")
	timed.Due = &note.Due{At: at}
	text := remoteNote("2", "text")
	text.Due = &note.Due{Text: "every monday", Recurring: true}

	for _, n := range []*note.Note{timed, text} {
		if err := db.Save(n, false); err != nil {
			t.Fatalf("Save(%s) failed: %v", n.ID, err)
		}
	}

	got, _ := db.Get("1")
	if got.Due == nil || got.Due.AllDay || !got.Due.At.Equal(at) {
		t.Errorf("timed Due = %+v, want %v", got.Due, at)
	}

	got, _ = db.Get("2")
	if got.Due == nil || got.Due.HasDate() || got.Due.Text != "every monday" || !got.Due.Recurring {
		t.Errorf("text Due = %+v", got.Due)
	}
}

func TestGetAll_InsertionOrder(t *testing.T) {
	db := setupTestDB(t)

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := db.Save(remoteNote(id, id), false); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	// Re-saving must not move a row.
	if err := db.Save(remoteNote("c", "again"), true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	all, err := db.GetAll()
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	for i, id := range ids {
		if all[i].ID != id {
			t.Errorf("GetAll()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}
}

func TestDeleteAndClear(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Delete("missing"); err != nil {
		t.Errorf("Delete() of missing note failed: %v", err)
	}

	for _, id := range []string{"1", "2"} {
		if err := db.Save(remoteNote(id, id), false); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	if err := db.AddPendingDeletion("9"); err != nil {
		t.Fatalf("AddPendingDeletion() failed: %v", err)
	}

	if err := db.Delete("1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := db.Get("1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("note 1 still present after Delete()")
	}

	if err := db.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	all, _ := db.GetAll()
	if len(all) != 0 {
		t.Errorf("expected empty store after Clear(), got %d", len(all))
	}
	ids, _ := db.GetPendingDeletions()
	if len(ids) != 1 {
		t.Errorf("Clear() touched the ledger: %v", ids)
	}
}

func TestPendingDeletions(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"1", "2", "1"} {
		if err := db.AddPendingDeletion(id); err != nil {
			t.Fatalf("AddPendingDeletion(%s) failed: %v", id, err)
		}
	}

	ids, err := db.GetPendingDeletions()
	if err != nil {
		t.Fatalf("GetPendingDeletions() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("GetPendingDeletions() = %v, want [1 2]", ids)
	}

	if err := db.RemovePendingDeletion("1"); err != nil {
		t.Fatalf("RemovePendingDeletion() failed: %v", err)
	}
	if err := db.RemovePendingDeletion("missing"); err != nil {
		t.Errorf("RemovePendingDeletion() of missing id failed: %v", err)
	}

	ids, _ = db.GetPendingDeletions()
	if len(ids) != 1 || ids[0] != "2" {
		t.Errorf("GetPendingDeletions() = %v, want [2]", ids)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)

	s, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats() on empty store failed: %v", err)
	}
	if s != (Stats{}) {
		t.Errorf("Stats() = %+v, want zero", s)
	}

	_ = db.Save(note.NewLocal("a", ""), true)
	_ = db.Save(remoteNote("1", "b"), true)
	_ = db.Save(remoteNote("2", "c"), false)
	_ = db.AddPendingDeletion("3")

	s, err = db.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := Stats{Total: 3, Dirty: 2, Local: 1, PendingDeletions: 1}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
}

func TestStorageError(t *testing.T) {
	db := setupTestDB(t)
	db.conn.Close()

	_, err := db.Stats()
	if err == nil {
		t.Fatal("Stats() on closed db should fail")
	}
	if !IsStorageError(err) {
		t.Errorf("error %v is not a StorageError", err)
	}
}
