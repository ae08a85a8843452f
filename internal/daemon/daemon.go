package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
)

// Config holds configuration for the daemon and its scheduler.
type Config struct {
	// Interval is how often to run a pass without being asked
	Interval time.Duration

	// PassTimeout bounds a single pass, including waiting for the lock
	PassTimeout time.Duration

	// LockPath is the lock file shared with other processes. Empty disables
	// cross-process locking.
	LockPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:    time.Minute,
		PassTimeout: 2 * time.Minute,
		Logger:      log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Credentials is the part of the credential provider the daemon drives.
type Credentials interface {
	Subscribe(fn func(auth.Status)) func()
	Load() error
}

// Daemon runs the scheduler on a timer and on credential changes.
type Daemon struct {
	scheduler   *Scheduler
	creds       Credentials
	sessionPath string
	config      *Config

	watcher     *SessionWatcher
	unsubscribe func()

	ctx      context.Context
	cancel   context.CancelFunc
	wg       gosync.WaitGroup
	stopOnce gosync.Once
}

// New creates a daemon. sessionPath is the session file to watch; empty
// disables watching.
//
// Use Start() to begin syncing.
func New(scheduler *Scheduler, creds Credentials, sessionPath string, config *Config) (*Daemon, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials cannot be nil")
	}
	if config == nil {
		config = scheduler.config
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		scheduler:   scheduler,
		creds:       creds,
		sessionPath: sessionPath,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Subscribe to credential changes and sync on sign-in
// 2. Start watching the session file
// 3. Run an initial pass
// 4. Run a pass every Interval
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.unsubscribe = d.creds.Subscribe(func(s auth.Status) {
		if s == auth.StatusAuthenticated {
			d.config.Logger.Println("Signed in, requesting sync")
			d.scheduler.Trigger()
		}
	})

	if d.sessionPath != "" {
		watcher, err := NewSessionWatcher(d.sessionPath)
		if err != nil {
			d.unsubscribe()
			return err
		}
		if err := watcher.Start(); err != nil {
			_ = watcher.Stop()
			d.unsubscribe()
			return err
		}
		d.watcher = watcher
		d.config.Logger.Printf("Watching: %s", d.sessionPath)

		d.wg.Add(1)
		go d.watchSession()
	}

	d.scheduler.Trigger()

	d.wg.Add(1)
	go d.tick()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A running pass is cancelled.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}

		d.wg.Wait()

		if d.unsubscribe != nil {
			d.unsubscribe()
		}
		d.scheduler.Close()

		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// tick triggers a pass every Interval.
func (d *Daemon) tick() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.scheduler.Trigger()
		}
	}
}

// watchSession reloads credentials when the session file changes. A reload
// that signs the user in triggers a pass through the subscription.
func (d *Daemon) watchSession() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("Session file event: %s", event.Op)
			if err := d.creds.Load(); err != nil {
				d.config.Logger.Printf("Error reloading session: %v", err)
			}

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
