package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/config"
	"github.com/tickit-notes/tickit/internal/daemon"
	"github.com/tickit-notes/tickit/internal/logging"
	"github.com/tickit-notes/tickit/internal/notes"
	"github.com/tickit-notes/tickit/internal/remote"
	"github.com/tickit-notes/tickit/internal/store"
	"github.com/tickit-notes/tickit/internal/sync"
)

// settleTimeout bounds how long a command waits for the pass its change
// triggered.
const settleTimeout = 30 * time.Second

// openMode says whether a command may start sync passes.
type openMode int

const (
	// manualSync never starts a pass on its own; the command runs passes
	// explicitly, if at all.
	manualSync openMode = iota
	// autoSync triggers a pass on load and after every change.
	autoSync
)

// app is the wired object graph shared by every command.
type app struct {
	cfg  *config.Config
	sink *logging.Sink

	db        *store.DB
	creds     *auth.Provider
	session   *auth.FileStore // nil when the token comes from the environment
	client    *remote.Client
	scheduler *daemon.Scheduler
	notes     *notes.Store
}

// openApp loads configuration, opens the database and loads the note list.
// In autoSync mode a signed-in user gets a pass started right away.
func openApp(ctx context.Context, mode openMode) (*app, error) {
	cfg, err := config.Load(config.Options{ConfigFile: configFile})
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}

	sink := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Verbose:    cfg.Verbose,
	})
	a := &app{cfg: cfg, sink: sink}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a.db, err = store.Open(cfg.DBPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.db.InitSchemaContext(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var sessions auth.SessionStore
	if cfg.Token != "" {
		sessions = auth.NewMemoryStore(&auth.Session{AccessToken: cfg.Token})
	} else {
		a.session = auth.NewFileStore(cfg.SessionPath())
		sessions = a.session
	}
	a.creds = auth.NewProvider(sessions, sink.Logger("auth"))
	if err := a.creds.Load(); err != nil {
		// A broken session file means signed out, not a dead CLI.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	remoteCfg := &remote.Config{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		PageSize: cfg.API.PageSize,
	}
	if s := a.creds.Session(); s != nil {
		remoteCfg.Owner = s.User.ID
	}
	a.client, err = remote.NewClient(a.creds, remoteCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	syncer := sync.New(a.db, a.client, a.creds, sink.Logger("sync"))
	a.scheduler = daemon.NewScheduler(syncer, a.daemonConfig())

	var trigger notes.Trigger
	if mode == autoSync {
		trigger = a.scheduler
	}
	a.notes = notes.New(a.db, a.creds, trigger, sink.Logger("notes"))
	a.scheduler.AddObserver(a.notes)
	if err := a.notes.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) daemonConfig() *daemon.Config {
	return &daemon.Config{
		Interval:    a.cfg.Sync.Interval,
		PassTimeout: a.cfg.Sync.PassTimeout,
		LockPath:    a.cfg.LockPath(),
		Logger:      a.sink.Logger("daemon"),
	}
}

// sessionPath is the file the daemon watches, or "" when there is none.
func (a *app) sessionPath() string {
	if a.session == nil {
		return ""
	}
	return a.session.Path()
}

// settle waits for any pass a mutation triggered, so the change reaches the
// remote before the process exits. Failures are left for the next run.
func (a *app) settle(ctx context.Context) {
	if a.creds.Status() != auth.StatusAuthenticated {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := a.scheduler.Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync did not finish: %v\n", err)
		return
	}
	if last := a.scheduler.Last(); last.Err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync failed, will retry next time: %v\n", last.Err)
	}
}

// logger returns a component logger from the shared sink.
func (a *app) logger(component string) *log.Logger {
	return a.sink.Logger(component)
}

// resolveID accepts a full id or an unambiguous prefix of one.
func (a *app) resolveID(arg string) (string, error) {
	if _, ok := a.notes.Get(arg); ok {
		return arg, nil
	}
	var matches []string
	for _, n := range a.notes.List() {
		if strings.HasPrefix(n.ID, arg) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no note matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d notes match)", arg, len(matches))
	}
}

// Close stops the scheduler and releases the database.
func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.sink.Close()
}

// mustOpen is openApp for commands that cannot continue without it.
func mustOpen(ctx context.Context, mode openMode) *app {
	a, err := openApp(ctx, mode)
	if err != nil {
		exitf("opening tickit: %v", err)
	}
	return a
}
