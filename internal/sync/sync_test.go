package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/remote"
	"github.com/tickit-notes/tickit/internal/remote/remotetest"
	"github.com/tickit-notes/tickit/internal/store"
)

var errOffline = fmt.Errorf("dial tcp: %w", remote.ErrNetwork)

type harness struct {
	db     *store.DB
	gw     *remotetest.Gateway
	creds  *auth.Provider
	syncer Syncer
}

// setupTest wires a syncer to a temporary database and an in-memory remote.
func setupTest(t *testing.T, authenticated bool) *harness {
	t.Helper()

	database, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	var session *auth.Session
	if authenticated {
		session = &auth.Session{User: auth.User{ID: remotetest.Owner}, AccessToken: "token"}
	}
	quiet := log.New(io.Discard, "", 0)
	creds := auth.NewProvider(auth.NewMemoryStore(session), quiet)
	if err := creds.Load(); err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}

	gw := remotetest.New()
	return &harness{
		db:     database,
		gw:     gw,
		creds:  creds,
		syncer: New(database, gw, creds, quiet),
	}
}

func (h *harness) run(t *testing.T) *Result {
	t.Helper()
	result, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return result
}

// addLocal saves a note the remote has never seen.
func (h *harness) addLocal(t *testing.T, title string) *note.Note {
	t.Helper()
	n := note.NewLocal(title, "")
	if err := h.db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return n
}

// addRemote puts a note on both sides, clean.
func (h *harness) addRemote(t *testing.T, id, title string) *note.Note {
	t.Helper()
	n := &note.Note{ID: id, Owner: remotetest.Owner, Title: title, UpdatedAt: time.Now()}
	h.gw.Seed(n)
	if err := h.db.Save(n, false); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return n
}

// edit saves a local modification of id.
func (h *harness) edit(t *testing.T, id, title string) {
	t.Helper()
	n, err := h.db.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	n.Title = title
	if err := h.db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
}

func (h *harness) get(t *testing.T, id string) *note.Note {
	t.Helper()
	n, err := h.db.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return n
}

func ids(notes []*note.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestRun_SkipsWhenUnauthenticated(t *testing.T) {
	h := setupTest(t, false)
	h.addLocal(t, "offline")

	result := h.run(t)
	if !result.Skipped {
		t.Error("Result.Skipped = false, want true")
	}
	if calls := h.gw.Calls(); len(calls) != 0 {
		t.Errorf("gateway called while unauthenticated: %v", calls)
	}
}

// A second pass with no mutation in between changes nothing and only lists.
func TestRun_Idempotent(t *testing.T) {
	h := setupTest(t, true)
	h.addRemote(t, "r1", "one")
	h.gw.Seed(&note.Note{ID: "r2", Title: "two", UpdatedAt: time.Now()})
	h.addLocal(t, "three")

	first := h.run(t)
	h.gw.ResetCalls()
	second := h.run(t)

	if calls := h.gw.Calls(); len(calls) != 1 || calls[0].Op != remotetest.OpList {
		t.Errorf("second pass calls = %v, want a single list", calls)
	}
	if second.Created+second.Updated+second.DeletionsFlushed != 0 {
		t.Errorf("second pass pushed: %+v", second)
	}

	a, b := ids(first.Notes), ids(second.Notes)
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Errorf("record set changed: %v -> %v", a, b)
	}
	if len(b) != 3 {
		t.Errorf("got %d notes, want 3", len(b))
	}
}

// A note deleted locally must not come back from a listing that still has it.
func TestRun_NoResurrection(t *testing.T) {
	t.Run("delete fails, list still has it", func(t *testing.T) {
		h := setupTest(t, true)
		h.addRemote(t, "r1", "doomed")
		if _, err := h.db.Tombstone("r1"); err != nil {
			t.Fatalf("Tombstone() failed: %v", err)
		}
		h.gw.FailFor("r1", errOffline)

		result := h.run(t)
		if result.DeletionsFailed != 1 {
			t.Errorf("DeletionsFailed = %d, want 1", result.DeletionsFailed)
		}
		if _, err := h.db.Get("r1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("r1 resurrected: err = %v", err)
		}
		pending, _ := h.db.GetPendingDeletions()
		if len(pending) != 1 {
			t.Errorf("pending deletions = %v, want r1 still queued", pending)
		}

		h.gw.FailFor("r1", nil)
		result = h.run(t)
		if result.DeletionsFlushed != 1 || h.gw.Get("r1") != nil {
			t.Errorf("retry did not delete r1: %+v", result)
		}
	})

	t.Run("delete flushed, list is stale", func(t *testing.T) {
		h := setupTest(t, true)
		stale := h.addRemote(t, "r1", "doomed")
		if _, err := h.db.Tombstone("r1"); err != nil {
			t.Fatalf("Tombstone() failed: %v", err)
		}
		h.gw.ListAlso(stale)

		result := h.run(t)
		if result.DeletionsFlushed != 1 {
			t.Errorf("DeletionsFlushed = %d, want 1", result.DeletionsFlushed)
		}
		for _, n := range result.Notes {
			if n.ID == "r1" {
				t.Fatal("r1 resurrected by stale listing")
			}
		}
		if _, err := h.db.Get("r1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(r1) err = %v, want ErrNotFound", err)
		}
		if result.Pulled != 0 {
			t.Errorf("Pulled = %d, want 0", result.Pulled)
		}
	})

	t.Run("already gone remotely", func(t *testing.T) {
		h := setupTest(t, true)
		if err := h.db.AddPendingDeletion("ghost"); err != nil {
			t.Fatalf("AddPendingDeletion() failed: %v", err)
		}
		result := h.run(t)
		if result.DeletionsFlushed != 1 || result.DeletionsFailed != 0 {
			t.Errorf("not-found delete should count as flushed: %+v", result)
		}
	})
}

// A local note is replaced by exactly one note carrying the remote id.
func TestRun_LocalToRemoteIdentity(t *testing.T) {
	h := setupTest(t, true)
	local := h.addLocal(t, "Buy milk")

	result := h.run(t)
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1", result.Created)
	}

	all, err := h.db.GetAll()
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d notes, want 1: %v", len(all), ids(all))
	}
	got := all[0]
	if got.ID != fmt.Sprint(remotetest.FirstID) || got.Owner != remotetest.Owner || !got.IsSynced() {
		t.Errorf("note = %+v, want synced remote note 999", got)
	}
	if _, err := h.db.Get(local.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("local id %s still present", local.ID)
	}
}

// One failing note does not stop the others.
func TestRun_PartialFailure(t *testing.T) {
	h := setupTest(t, true)
	for _, id := range []string{"r1", "r2", "r3"} {
		h.addRemote(t, id, "old")
		h.edit(t, id, "new "+id)
	}
	h.gw.FailFor("r2", errOffline)

	result := h.run(t)
	if result.Updated != 2 || result.PushFailed != 1 {
		t.Errorf("Updated = %d, PushFailed = %d; want 2, 1", result.Updated, result.PushFailed)
	}

	tests := []struct {
		id     string
		synced bool
	}{
		{"r1", true},
		{"r2", false},
		{"r3", true},
	}
	for _, tt := range tests {
		n := h.get(t, tt.id)
		if n.IsSynced() != tt.synced {
			t.Errorf("%s: IsSynced() = %v, want %v", tt.id, n.IsSynced(), tt.synced)
		}
		if n.Title != "new "+tt.id {
			t.Errorf("%s: Title = %q, local edit lost", tt.id, n.Title)
		}
	}
}

// The first update throws and the second succeeds.
func TestRun_FirstUpdateFails(t *testing.T) {
	h := setupTest(t, true)
	h.addRemote(t, "a", "a")
	h.addRemote(t, "b", "b")
	h.edit(t, "a", "a2")
	h.edit(t, "b", "b2")
	h.gw.FailNext(remotetest.OpUpdate, errOffline)

	h.run(t)

	if h.get(t, "a").IsSynced() {
		t.Error("first record should still be pending")
	}
	if !h.get(t, "b").IsSynced() {
		t.Error("second record should be synced")
	}
}

// An all-day due date keeps its calendar date through push and pull.
func TestRun_DueDateRoundTrip(t *testing.T) {
	h := setupTest(t, true)
	n := note.NewLocal("dentist", "")
	n.Due = note.OnDate(2025, time.November, 24)
	if err := h.db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	result := h.run(t)
	if len(result.Notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(result.Notes))
	}
	due := result.Notes[0].Due
	if due == nil || !due.AllDay || due.Date() != "2025-11-24" {
		t.Errorf("Due = %+v, want all-day 2025-11-24", due)
	}
}

func TestRun_AuthFailureInvalidates(t *testing.T) {
	h := setupTest(t, true)
	h.addRemote(t, "r1", "kept")
	h.gw.FailNext(remotetest.OpList, fmt.Errorf("list: %w", remote.ErrAuth))

	result, err := h.syncer.Run(context.Background())
	if !errors.Is(err, remote.ErrAuth) {
		t.Fatalf("Run() error = %v, want ErrAuth", err)
	}
	if result == nil || result.Notes != nil {
		t.Errorf("aborted pass should carry no notes: %+v", result)
	}
	if h.creds.Status() != auth.StatusUnauthenticated {
		t.Errorf("credential status = %s, want unauthenticated", h.creds.Status())
	}

	again := h.run(t)
	if !again.Skipped {
		t.Error("pass after invalidation should be skipped")
	}
}

func TestRun_ListFailureLeavesStore(t *testing.T) {
	h := setupTest(t, true)
	h.addRemote(t, "r1", "kept")
	h.gw.FailNext(remotetest.OpList, errOffline)

	if _, err := h.syncer.Run(context.Background()); !errors.Is(err, remote.ErrNetwork) {
		t.Fatalf("Run() error = %v, want ErrNetwork", err)
	}
	if h.get(t, "r1").Title != "kept" {
		t.Error("store modified by failed pull")
	}
	if h.creds.Status() != auth.StatusAuthenticated {
		t.Error("network failure must not invalidate the credential")
	}
}

// An update of a note the remote no longer has re-creates it.
func TestRun_UpdateNotFoundDemotes(t *testing.T) {
	h := setupTest(t, true)
	n := &note.Note{ID: "gone", Owner: remotetest.Owner, Title: "keep me", UpdatedAt: time.Now()}
	if err := h.db.Save(n, true); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	result := h.run(t)
	if result.Demoted != 1 {
		t.Errorf("Demoted = %d, want 1", result.Demoted)
	}
	if got := h.get(t, "gone"); !got.IsLocal() || !got.Dirty {
		t.Errorf("note = %+v, want local and dirty", got)
	}

	result = h.run(t)
	if result.Created != 1 || len(result.Notes) != 1 || result.Notes[0].Title != "keep me" {
		t.Errorf("second pass did not re-create: %+v", result)
	}
}

// A note deleted while its create is in flight is deleted remotely too.
func TestRun_DeletedDuringCreate(t *testing.T) {
	h := setupTest(t, true)
	local := h.addLocal(t, "short-lived")
	h.gw.OnCall(remotetest.OpCreate, func(remotetest.Call) {
		if _, err := h.db.Tombstone(local.ID); err != nil {
			t.Errorf("Tombstone() failed: %v", err)
		}
	})

	result := h.run(t)
	if len(result.Notes) != 0 {
		t.Errorf("orphan visible after pull: %v", ids(result.Notes))
	}
	pending, _ := h.db.GetPendingDeletions()
	if len(pending) != 1 || pending[0] != fmt.Sprint(remotetest.FirstID) {
		t.Errorf("pending deletions = %v, want the orphan queued", pending)
	}

	h.gw.OnCall(remotetest.OpCreate, nil)
	h.run(t)
	if remaining := h.gw.Notes(); len(remaining) != 0 {
		t.Errorf("remote still has %v", ids(remaining))
	}
}

// An edit made while the create is in flight survives under the new id.
func TestRun_EditedDuringCreate(t *testing.T) {
	h := setupTest(t, true)
	local := h.addLocal(t, "draft")
	h.gw.OnCall(remotetest.OpCreate, func(remotetest.Call) {
		n, err := h.db.Get(local.ID)
		if err != nil {
			t.Errorf("Get() failed: %v", err)
			return
		}
		n.Title = "final"
		if err := h.db.Save(n, true); err != nil {
			t.Errorf("Save() failed: %v", err)
		}
	})

	h.run(t)
	id := fmt.Sprint(remotetest.FirstID)
	got := h.get(t, id)
	if got.Title != "final" || !got.Dirty {
		t.Errorf("note = %+v, want edited and dirty", got)
	}

	h.gw.OnCall(remotetest.OpCreate, nil)
	result := h.run(t)
	if result.Updated != 1 || h.gw.Get(id).Title != "final" {
		t.Errorf("edit not pushed: %+v", result)
	}
	if !h.get(t, id).IsSynced() {
		t.Error("note should be synced after second pass")
	}
}

func TestRun_StorageErrorAborts(t *testing.T) {
	h := setupTest(t, true)
	h.db.RawDB().Close()

	_, err := h.syncer.Run(context.Background())
	if !store.IsStorageError(err) {
		t.Fatalf("Run() error = %v, want a storage error", err)
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("gateway called after storage failure")
	}
}

func TestRun_Cancelled(t *testing.T) {
	h := setupTest(t, true)
	h.addLocal(t, "pending")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.syncer.Run(ctx); err == nil {
		t.Fatal("Run() with cancelled context should fail")
	}
	all, _ := h.db.GetAll()
	if len(all) != 1 || !all[0].IsLocal() {
		t.Errorf("cancelled pass changed the store: %v", ids(all))
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errOffline, false},
		{"remote status", fmt.Errorf("failed to update remote note: %w", &remote.RemoteError{Status: 500}), false},
		{"auth", fmt.Errorf("failed to create remote note: %w", remote.ErrAuth), true},
		{"storage", fmt.Errorf("failed to promote note x: %w", &store.StorageError{Op: "update note", Err: errors.New("disk full")}), true},
		{"canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("pass: %w", context.DeadlineExceeded), true},
		{"other", errors.New("bad payload"), false},
	}
	for _, tt := range tests {
		if got := fatal(tt.err); got != tt.want {
			t.Errorf("%s: fatal(%v) = %v, want %v", tt.name, tt.err, got, tt.want)
		}
	}
}
