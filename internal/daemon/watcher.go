package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates the file was created or replaced.
	OpCreate EventOp = iota
	// OpModify indicates the file was written in place.
	OpModify
	// OpDelete indicates the file was removed.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SessionEvent reports a change to the watched session file.
type SessionEvent struct {
	// Path is the session file path.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// SessionWatcher watches the session file, so a login or logout in another
// process reaches a running daemon.
//
// It watches the containing directory rather than the file: sessions are
// saved by writing a temp file and renaming it over the old one, which
// replaces the inode a file watch would be attached to.
type SessionWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan SessionEvent
	errors  chan error
	done    chan struct{}
	wg      gosync.WaitGroup
	mu      gosync.Mutex
	running bool
}

// NewSessionWatcher creates a watcher for the session file at path.
// The watcher must be started with Start() before it will emit events.
func NewSessionWatcher(path string) (*SessionWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve session path: %w", err)
	}

	return &SessionWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan SessionEvent, 10),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The session directory is created if missing.
func (sw *SessionWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(sw.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch session directory %s: %w", dir, err)
	}

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()
	return nil
}

// Stop stops watching and releases resources. It blocks until the event
// goroutine has exited, then closes the Events and Errors channels.
func (sw *SessionWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return sw.watcher.Close()
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	sw.wg.Wait()

	close(sw.events)
	close(sw.errors)
	return nil
}

// Events returns the channel of session file changes.
func (sw *SessionWatcher) Events() <-chan SessionEvent {
	return sw.events
}

// Errors returns the channel of watcher errors.
func (sw *SessionWatcher) Errors() <-chan error {
	return sw.errors
}

// IsRunning returns true if the watcher is currently running.
func (sw *SessionWatcher) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

func (sw *SessionWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if se, ok := sw.convertEvent(event); ok {
				select {
				case sw.events <- se:
				case <-sw.done:
					return
				}
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent keeps events for the session file and drops the rest,
// including the temp file a save goes through.
func (sw *SessionWatcher) convertEvent(event fsnotify.Event) (SessionEvent, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != sw.path {
		return SessionEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return SessionEvent{}, false
	}
	return SessionEvent{Path: sw.path, Op: op}, true
}
