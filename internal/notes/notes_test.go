package notes

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/remote/remotetest"
	"github.com/tickit-notes/tickit/internal/store"
	notesync "github.com/tickit-notes/tickit/internal/sync"
)

var quiet = log.New(io.Discard, "", 0)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newProvider(t *testing.T, session *auth.Session) *auth.Provider {
	t.Helper()
	p := auth.NewProvider(auth.NewMemoryStore(session), quiet)
	if err := p.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return p
}

// passRunner runs a sync pass inline on every trigger.
type passRunner struct {
	syncer notesync.Syncer
	facade *Store
	runs   int
}

func (r *passRunner) Trigger() {
	r.runs++
	r.facade.PassStarted()
	result, err := r.syncer.Run(context.Background())
	r.facade.PassFinished(result, err)
}

// countingTrigger records trigger requests.
type countingTrigger struct {
	mu    sync.Mutex
	count int
}

func (c *countingTrigger) Trigger() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingTrigger) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// recorder is a Listener that keeps every event as a string.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnNoteAdded(n *note.Note)   { r.add("added " + n.Title) }
func (r *recorder) OnNoteUpdated(n *note.Note) { r.add("updated " + n.Title) }
func (r *recorder) OnNoteDeleted(id string)    { r.add("deleted " + id) }
func (r *recorder) OnNotesReplaced(notes []*note.Note) {
	r.add(fmt.Sprintf("replaced %d", len(notes)))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Offline add, then sign in: the note is created remotely once and the
// facade ends up with the remote id.
func TestStore_OfflineAddThenSignIn(t *testing.T) {
	db := setupTestDB(t)
	provider := newProvider(t, nil)
	gw := remotetest.New()

	runner := &passRunner{syncer: notesync.New(db, gw, provider, quiet)}
	facade := New(db, provider, runner, quiet)
	runner.facade = facade
	provider.Subscribe(func(s auth.Status) {
		if s == auth.StatusAuthenticated {
			runner.Trigger()
		}
	})

	if err := facade.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := facade.Add(context.Background(), &note.Note{Title: "Buy milk"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	list := facade.List()
	if len(list) != 1 || !list[0].IsLocal() || list[0].IsSynced() {
		t.Fatalf("List() = %+v, want one unsynced local note", list)
	}
	if runner.runs != 0 {
		t.Errorf("pass ran %d times while signed out", runner.runs)
	}

	if err := provider.SignIn(&auth.Session{User: auth.User{ID: remotetest.Owner}, AccessToken: "token"}); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}

	if got := gw.Count(remotetest.OpCreate); got != 1 {
		t.Fatalf("create called %d times, want 1", got)
	}
	if title := gw.Calls()[0].Title; title != "Buy milk" {
		t.Errorf("created title = %q, want Buy milk", title)
	}

	list = facade.List()
	if len(list) != 1 {
		t.Fatalf("List() has %d notes, want 1", len(list))
	}
	if list[0].ID != "999" || !list[0].IsSynced() {
		t.Errorf("List()[0] = %+v, want synced note 999", list[0])
	}
	if facade.IsSyncing() {
		t.Error("IsSyncing() still true after pass")
	}
}

func TestStore_Load(t *testing.T) {
	db := setupTestDB(t)
	n := note.NewLocal("persisted", "")
	if err := db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	trigger := &countingTrigger{}
	facade := New(db, newProvider(t, &auth.Session{AccessToken: "token"}), trigger, quiet)
	if !facade.IsLoading() {
		t.Error("IsLoading() = false before Load()")
	}
	if err := facade.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if facade.IsLoading() {
		t.Error("IsLoading() = true after Load()")
	}
	if list := facade.List(); len(list) != 1 || list[0].ID != n.ID {
		t.Errorf("List() = %v, want the stored note", list)
	}
	if trigger.Count() != 1 {
		t.Errorf("Load() triggered %d passes, want 1", trigger.Count())
	}
}

func TestStore_AddValidates(t *testing.T) {
	facade := New(setupTestDB(t), newProvider(t, nil), nil, quiet)

	_, err := facade.Add(context.Background(), &note.Note{Title: strings.Repeat("x", 501)})
	if err == nil {
		t.Fatal("Add() with oversized title should fail")
	}
	if len(facade.List()) != 0 {
		t.Error("rejected note visible in List()")
	}
}

func TestStore_UpdateMergesPatch(t *testing.T) {
	db := setupTestDB(t)
	trigger := &countingTrigger{}
	facade := New(db, newProvider(t, &auth.Session{AccessToken: "token"}), trigger, quiet)
	ctx := context.Background()

	added, err := facade.Add(ctx, &note.Note{Title: "draft", Content: "body", Label: "work"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	before := added.UpdatedAt

	time.Sleep(time.Millisecond)
	updated, err := facade.Update(ctx, added.ID, note.Patch{Title: note.String("final")})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Title != "final" || updated.Content != "body" || updated.Label != "work" {
		t.Errorf("Update() = %+v, unpatched fields lost", updated)
	}
	if !updated.UpdatedAt.After(before) {
		t.Error("UpdatedAt not bumped")
	}

	stored, err := db.Get(added.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Title != "final" || !stored.Dirty {
		t.Errorf("stored = %+v, want dirty final", stored)
	}
	if got, _ := facade.Get(added.ID); got.Title != "final" {
		t.Errorf("memory has %q, want final", got.Title)
	}
	if trigger.Count() != 2 {
		t.Errorf("triggered %d passes, want 2", trigger.Count())
	}
}

func TestStore_UnknownIDIsNoop(t *testing.T) {
	trigger := &countingTrigger{}
	facade := New(setupTestDB(t), newProvider(t, &auth.Session{AccessToken: "token"}), trigger, quiet)
	ctx := context.Background()

	n, err := facade.Update(ctx, "missing", note.Patch{Title: note.String("x")})
	if err != nil || n != nil {
		t.Errorf("Update(missing) = %v, %v; want nil, nil", n, err)
	}
	if err := facade.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
	if trigger.Count() != 0 {
		t.Errorf("no-ops triggered %d passes", trigger.Count())
	}
}

func TestStore_Delete(t *testing.T) {
	db := setupTestDB(t)
	facade := New(db, newProvider(t, nil), nil, quiet)
	ctx := context.Background()

	remoteNote := &note.Note{ID: "r1", Owner: "42", Title: "synced", UpdatedAt: time.Now()}
	if err := db.Save(remoteNote, false); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := facade.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	local, err := facade.Add(ctx, &note.Note{Title: "local"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	for _, id := range []string{"r1", local.ID} {
		if err := facade.Delete(ctx, id); err != nil {
			t.Fatalf("Delete(%s) failed: %v", id, err)
		}
	}

	if list := facade.List(); len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}
	pending, err := db.GetPendingDeletions()
	if err != nil {
		t.Fatalf("GetPendingDeletions() failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "r1" {
		t.Errorf("pending deletions = %v, want only r1", pending)
	}
}

func TestStore_Listeners(t *testing.T) {
	db := setupTestDB(t)
	facade := New(db, newProvider(t, nil), nil, quiet)
	rec := &recorder{}
	facade.AddListener(rec)
	ctx := context.Background()

	if err := facade.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	n, err := facade.Add(ctx, &note.Note{Title: "a"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := facade.Update(ctx, n.ID, note.Patch{Title: note.String("b")}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if err := facade.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	facade.PassFinished(&notesync.Result{}, nil)
	facade.PassFinished(&notesync.Result{Skipped: true}, nil)

	want := []string{"replaced 0", "added a", "updated b", "deleted " + n.ID, "replaced 0"}
	if got := rec.Events(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestReduce(t *testing.T) {
	a := &note.Note{ID: "a", Title: "a"}
	b := &note.Note{ID: "b", Title: "b"}
	base := State{Notes: []*note.Note{a, b}}

	tests := []struct {
		name   string
		action Action
		want   []string
	}{
		{"add appends", AddNote{Note: &note.Note{ID: "c", Title: "c"}}, []string{"a", "b", "c"}},
		{"add replaces same id", AddNote{Note: &note.Note{ID: "a", Title: "a2"}}, []string{"a2", "b"}},
		{"update replaces", UpdateNote{Note: &note.Note{ID: "b", Title: "b2"}}, []string{"a", "b2"}},
		{"delete removes", DeleteNote{ID: "a"}, []string{"b"}},
		{"delete unknown", DeleteNote{ID: "zzz"}, []string{"a", "b"}},
		{"set notes", SetNotes{Notes: []*note.Note{b}}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(base, tt.action)
			var titles []string
			for _, n := range got.Notes {
				titles = append(titles, n.Title)
			}
			if fmt.Sprint(titles) != fmt.Sprint(tt.want) {
				t.Errorf("titles = %v, want %v", titles, tt.want)
			}
			if len(base.Notes) != 2 || base.Notes[0].Title != "a" || base.Notes[1].Title != "b" {
				t.Error("Reduce() mutated its input")
			}
		})
	}

	if s := Reduce(base, SetSyncing{Syncing: true}); !s.Syncing || len(s.Notes) != 2 {
		t.Errorf("SetSyncing produced %+v", s)
	}
}
