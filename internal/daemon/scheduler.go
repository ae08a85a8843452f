package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/tickit-notes/tickit/internal/lockfile"
	"github.com/tickit-notes/tickit/internal/sync"
)

// ErrClosed is returned for passes requested after Close.
var ErrClosed = errors.New("daemon: scheduler closed")

// PassRecord is the outcome of one pass.
type PassRecord struct {
	Result     *sync.Result
	Err        error
	FinishedAt time.Time
}

// Observer is notified around every sync pass the scheduler runs.
type Observer interface {
	PassStarted()
	PassFinished(result *sync.Result, err error)
}

// Scheduler runs sync passes on request. Requests coalesce: at most one
// pass runs at a time and at most one more is queued behind it, however
// many times Trigger is called meanwhile.
type Scheduler struct {
	syncer sync.Syncer
	config *Config
	lock   *lockfile.Lock

	mu      gosync.Mutex
	running bool
	queued  bool
	closed  bool
	idle    chan struct{} // closed while no pass is running or queued

	last   PassRecord
	passes int

	observersMu gosync.RWMutex
	observers   []Observer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for syncer. If config.LockPath is set,
// every pass also holds that lock file so passes from other processes never
// overlap with this one.
func NewScheduler(syncer sync.Syncer, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	idle := make(chan struct{})
	close(idle)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		syncer: syncer,
		config: config,
		idle:   idle,
		ctx:    ctx,
		cancel: cancel,
	}
	if config.LockPath != "" {
		s.lock = lockfile.New(config.LockPath)
	}
	return s
}

// AddObserver registers o for pass notifications.
func (s *Scheduler) AddObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// Trigger requests a pass and returns immediately.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.running {
		s.queued = true
		return
	}
	s.running = true
	s.idle = make(chan struct{})
	go s.loop()
}

// Wait blocks until no pass is running or queued, or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce requests a pass and waits for it. The pass it waits for starts
// after RunOnce was called.
func (s *Scheduler) RunOnce(ctx context.Context) (*sync.Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	s.Trigger()
	if err := s.Wait(ctx); err != nil {
		return nil, err
	}
	last := s.Last()
	return last.Result, last.Err
}

// Last returns the outcome of the most recent pass. FinishedAt is zero if
// no pass has run.
func (s *Scheduler) Last() PassRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Passes returns the number of passes run so far.
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Close cancels a running pass, drops a queued one and waits for the
// scheduler to go idle. Later triggers are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.queued = false
	idle := s.idle
	s.mu.Unlock()

	s.cancel()
	<-idle
}

func (s *Scheduler) loop() {
	for {
		s.runPass()

		s.mu.Lock()
		if s.queued && !s.closed {
			s.queued = false
			s.mu.Unlock()
			continue
		}
		s.running = false
		close(s.idle)
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) runPass() {
	ctx := s.ctx
	if s.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PassTimeout)
		defer cancel()
	}

	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			err = fmt.Errorf("failed to acquire sync lock %s: %w", s.lock.Path(), err)
			s.config.Logger.Printf("Skipping pass: %v", err)
			s.record(nil, err)
			return
		}
		defer func() {
			if unlockErr := s.lock.Unlock(); unlockErr != nil {
				s.config.Logger.Printf("Error releasing sync lock: %v", unlockErr)
			}
		}()
	}

	s.each(func(o Observer) { o.PassStarted() })
	result, err := s.syncer.Run(ctx)
	if err != nil {
		s.config.Logger.Printf("Sync pass failed: %v", err)
	}
	s.record(result, err)
	s.each(func(o Observer) { o.PassFinished(result, err) })
}

func (s *Scheduler) record(result *sync.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = PassRecord{Result: result, Err: err, FinishedAt: time.Now()}
	s.passes++
}

func (s *Scheduler) each(fn func(Observer)) {
	s.observersMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observersMu.RUnlock()
	for _, o := range observers {
		fn(o)
	}
}
