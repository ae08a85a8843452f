// Package notes is the application-facing note store. It keeps an in-memory
// copy of every note, writes through to the local database, and asks for a
// sync pass after each change.
//
// Every mutation is visible through List before any network activity starts.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/store"
	notesync "github.com/tickit-notes/tickit/internal/sync"
)

// Trigger requests a sync pass. Implementations must not block on the pass.
type Trigger interface {
	Trigger()
}

// Listener is told about every change to the in-memory list.
// Callbacks run synchronously after the change and must not call back into
// the Store's mutating methods.
type Listener interface {
	OnNoteAdded(n *note.Note)
	OnNoteUpdated(n *note.Note)
	OnNoteDeleted(id string)
	OnNotesReplaced(notes []*note.Note)
}

// Store is the note facade.
type Store struct {
	mu    sync.RWMutex
	state State

	// writeMu orders a database write with the state change that follows it,
	// so a reload after a sync pass cannot interleave with a mutation.
	writeMu sync.Mutex

	db      *store.DB
	creds   auth.Credentials
	trigger Trigger

	listenersMu sync.RWMutex
	listeners   []Listener

	logger *log.Logger
}

// New creates a facade over db. trigger may be nil, in which case mutations
// never request a sync pass.
//
// If logger is nil, a default logger writing to stderr is used.
func New(db *store.DB, creds auth.Credentials, trigger Trigger, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[notes] ", log.LstdFlags)
	}
	return &Store{
		state:   State{Loading: true},
		db:      db,
		creds:   creds,
		trigger: trigger,
		logger:  logger,
	}
}

// AddListener registers l for change notifications.
func (s *Store) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// List returns a copy of the current notes.
func (s *Store) List() []*note.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.state.Notes)
}

// Get returns a copy of the note with id from memory.
func (s *Store) Get(id string) (*note.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.state.Notes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return nil, false
}

// IsLoading reports whether the initial read from the database is pending.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// IsSyncing reports whether a sync pass is running.
func (s *Store) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Syncing
}

// Load reads all notes from the database into memory and requests a pass.
func (s *Store) Load(ctx context.Context) error {
	s.dispatch(SetLoading{Loading: true})

	s.writeMu.Lock()
	all, err := s.db.GetAllContext(ctx)
	if err == nil {
		s.dispatch(SetNotes{Notes: all})
	}
	s.writeMu.Unlock()

	s.dispatch(SetLoading{Loading: false})
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}

	s.notify(func(l Listener) { l.OnNotesReplaced(cloneAll(all)) })
	s.requestSync()
	return nil
}

// Add stores a new note. A missing id gets a fresh one and a missing owner
// makes the note local. The stored note is returned.
func (s *Store) Add(ctx context.Context, n *note.Note) (*note.Note, error) {
	if n == nil {
		return nil, errors.New("note is nil")
	}
	added := n.Clone()
	added.SetDefaults()
	added.Dirty = true
	if err := added.Validate(); err != nil {
		return nil, fmt.Errorf("invalid note: %w", err)
	}

	s.writeMu.Lock()
	if err := s.db.SaveContext(ctx, added, true); err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	s.dispatch(AddNote{Note: added})
	s.writeMu.Unlock()

	s.logger.Printf("Added note %s", added.ID)
	s.notify(func(l Listener) { l.OnNoteAdded(added.Clone()) })
	s.requestSync()
	return added.Clone(), nil
}

// Update merges patch over the stored note with id and returns the result.
// An unknown id is not an error: Update returns nil, nil.
func (s *Store) Update(ctx context.Context, id string, patch note.Patch) (*note.Note, error) {
	s.writeMu.Lock()
	// The database, not memory, decides whether id exists: a sync pass may
	// have retired it since the caller last listed.
	n, err := s.db.GetContext(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeMu.Unlock()
		s.logger.Printf("Ignoring update of unknown note %s", id)
		return nil, nil
	}
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to read note: %w", err)
	}

	patch.Apply(n)
	n.Dirty = true
	if err := n.Validate(); err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("invalid note: %w", err)
	}
	if err := s.db.SaveContext(ctx, n, true); err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	s.dispatch(UpdateNote{Note: n})
	s.writeMu.Unlock()

	s.logger.Printf("Updated note %s", id)
	s.notify(func(l Listener) { l.OnNoteUpdated(n.Clone()) })
	s.requestSync()
	return n.Clone(), nil
}

// Delete removes the note with id. A note the remote knows is queued for
// remote deletion in the same write. An unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	removed, err := s.db.TombstoneContext(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("failed to delete note: %w", err)
	}
	s.dispatch(DeleteNote{ID: id})
	s.writeMu.Unlock()

	if removed == nil {
		s.logger.Printf("Ignoring delete of unknown note %s", id)
		return nil
	}

	s.logger.Printf("Deleted note %s", id)
	s.notify(func(l Listener) { l.OnNoteDeleted(id) })
	s.requestSync()
	return nil
}

// PassStarted marks a sync pass as running.
func (s *Store) PassStarted() {
	s.dispatch(SetSyncing{Syncing: true})
}

// PassFinished reloads the notes from the database after a pass.
func (s *Store) PassFinished(result *notesync.Result, err error) {
	defer s.dispatch(SetSyncing{Syncing: false})

	if result != nil && result.Skipped {
		return
	}

	s.writeMu.Lock()
	all, loadErr := s.db.GetAll()
	if loadErr == nil {
		s.dispatch(SetNotes{Notes: all})
	}
	s.writeMu.Unlock()

	if loadErr != nil {
		s.logger.Printf("WARNING: Failed to reload notes after sync: %v", loadErr)
		return
	}
	if err != nil {
		s.logger.Printf("Sync pass failed: %v", err)
	}
	s.notify(func(l Listener) { l.OnNotesReplaced(cloneAll(all)) })
}

func (s *Store) dispatch(action Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, action)
	s.mu.Unlock()
}

func (s *Store) notify(fn func(Listener)) {
	s.listenersMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (s *Store) requestSync() {
	if s.trigger == nil || s.creds == nil {
		return
	}
	if s.creds.Status() != auth.StatusAuthenticated {
		return
	}
	s.trigger.Trigger()
}
