//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// Two schedulers sharing a lock file never run passes at the same time.
func TestScheduler_LockFileExcludes(t *testing.T) {
	syncer := &fakeSyncer{gate: make(chan struct{})}
	config := testConfig()
	config.LockPath = filepath.Join(t.TempDir(), "sync.lock")

	a := NewScheduler(syncer, config)
	b := NewScheduler(syncer, config)
	defer a.Close()
	defer b.Close()

	a.Trigger()
	waitFor(t, "first pass", func() bool { return syncer.Runs() == 1 })
	b.Trigger()

	time.Sleep(100 * time.Millisecond)
	if syncer.Runs() != 1 {
		t.Fatal("second scheduler ran while the lock was held")
	}

	close(syncer.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if syncer.Runs() != 2 || syncer.MaxActive() != 1 {
		t.Errorf("runs = %d, max active = %d; want 2, 1", syncer.Runs(), syncer.MaxActive())
	}
}
