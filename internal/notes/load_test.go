package notes

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/daemon"
	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/remote/remotetest"
	"github.com/tickit-notes/tickit/internal/store"
	notesync "github.com/tickit-notes/tickit/internal/sync"
)

// findByTitle returns the stored id of the note titled title, or "".
func findByTitle(t *testing.T, db *store.DB, title string) string {
	t.Helper()
	all, err := db.GetAll()
	if err != nil {
		t.Errorf("GetAll() failed: %v", err)
		return ""
	}
	for _, n := range all {
		if n.Title == title {
			return n.ID
		}
	}
	return ""
}

// TestConcurrentWritersDuringSync runs several writers against the facade
// while the scheduler pushes and pulls, then checks that local and remote
// converge with no duplicates, no lost edits and no resurrected deletes.
func TestConcurrentWritersDuringSync(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	const (
		numWriters      = 8
		notesPerWriter  = 15
		updateEvery     = 3 // every 3rd note gets an edit
		deleteEvery     = 5 // every 5th note is deleted
		expectedContent = "edited"
	)

	db := setupTestDB(t)
	gw := remotetest.New()
	creds := newProvider(t, &auth.Session{User: auth.User{ID: remotetest.Owner}, AccessToken: "tok"})

	scheduler := daemon.NewScheduler(notesync.New(db, gw, creds, quiet), &daemon.Config{
		Interval: time.Minute,
		Logger:   quiet,
	})
	defer scheduler.Close()

	facade := New(db, creds, scheduler, quiet)
	scheduler.AddObserver(facade)
	ctx := context.Background()
	if err := facade.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	edited := make(map[string]bool)
	deleted := make(map[string]bool)

	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < notesPerWriter; i++ {
				title := fmt.Sprintf("w%d-n%d", w, i)
				if _, err := facade.Add(ctx, &note.Note{Title: title}); err != nil {
					t.Errorf("Add(%s) failed: %v", title, err)
					return
				}

				switch {
				case i%deleteEvery == 0:
					// A pass may promote the id between lookup and delete;
					// retry until the title is gone from the database.
					for id := findByTitle(t, db, title); id != ""; id = findByTitle(t, db, title) {
						if err := facade.Delete(ctx, id); err != nil {
							t.Errorf("Delete(%s) failed: %v", title, err)
							return
						}
					}
					mu.Lock()
					deleted[title] = true
					mu.Unlock()

				case i%updateEvery == 0:
					for {
						id := findByTitle(t, db, title)
						if id == "" {
							t.Errorf("note %s vanished before its edit", title)
							return
						}
						updated, err := facade.Update(ctx, id, note.Patch{Content: note.String(expectedContent)})
						if err != nil {
							t.Errorf("Update(%s) failed: %v", title, err)
							return
						}
						if updated != nil {
							break
						}
					}
					mu.Lock()
					edited[title] = true
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := scheduler.Wait(waitCtx); err != nil {
		t.Fatalf("scheduler did not settle: %v", err)
	}
	if _, err := scheduler.RunOnce(waitCtx); err != nil {
		t.Fatalf("final pass failed: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Dirty != 0 || stats.Local != 0 || stats.PendingDeletions != 0 {
		t.Errorf("store not converged: %+v", stats)
	}

	remoteByTitle := make(map[string]*note.Note)
	for _, n := range gw.Notes() {
		if prev, dup := remoteByTitle[n.Title]; dup {
			t.Errorf("duplicate remote note %q: %s and %s", n.Title, prev.ID, n.ID)
		}
		remoteByTitle[n.Title] = n
	}

	local := facade.List()
	if len(local) != len(remoteByTitle) {
		t.Errorf("facade has %d notes, remote has %d", len(local), len(remoteByTitle))
	}
	for _, n := range local {
		r, ok := remoteByTitle[n.Title]
		if !ok || r.ID != n.ID {
			t.Errorf("local note %s (%s) does not match remote", n.ID, n.Title)
		}
	}

	for w := 0; w < numWriters; w++ {
		for i := 0; i < notesPerWriter; i++ {
			title := fmt.Sprintf("w%d-n%d", w, i)
			r, present := remoteByTitle[title]
			switch {
			case deleted[title]:
				if present {
					t.Errorf("deleted note %s came back as %s", title, r.ID)
				}
			case !present:
				t.Errorf("note %s missing remotely", title)
			case edited[title] && r.Content != expectedContent:
				t.Errorf("edit to %s lost: content %q", title, r.Content)
			}
		}
	}
}
