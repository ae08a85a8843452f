// Package daemon keeps the local note store in sync in the background.
//
// The daemon:
// 1. Runs a sync pass on start and on a fixed interval
// 2. Runs a pass as soon as the user signs in
// 3. Reloads credentials when the session file changes on disk
// 4. Handles graceful shutdown
//
// # Scheduling
//
// Every pass goes through a Scheduler. Callers never run the syncer
// directly:
//
//	scheduler := daemon.NewScheduler(syncer, config)
//	scheduler.AddObserver(facade)
//
//	facade.Add(ctx, n)        // calls scheduler.Trigger()
//	scheduler.Wait(ctx)       // CLI: finish the pass before exiting
//
// Trigger never blocks. While a pass runs, any number of further triggers
// collapse into a single queued pass, which starts when the current one
// ends. That queued pass re-reads everything it pushes, so no request is
// lost by coalescing.
//
// With Config.LockPath set, each pass also holds an flock on that file, so
// a "tickit sync" run and a background daemon never push the same note at
// the same time.
//
// # Daemon
//
//	d, err := daemon.New(scheduler, provider, sessionPath, config)
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
package daemon
