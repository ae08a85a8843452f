package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/daemon"
	"github.com/tickit-notes/tickit/internal/dashboard"
	"github.com/tickit-notes/tickit/internal/remote"
	"github.com/tickit-notes/tickit/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass",
	Long: `Run one sync pass against Todoist:
  1. Send queued deletions
  2. Upload local notes and pending edits
  3. Replace the local copy with the remote list

Notes that fail to upload stay pending and are retried on the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, manualSync)
		defer a.Close()

		if a.creds.Status() != auth.StatusAuthenticated {
			fmt.Printf("%s Not signed in; nothing to sync\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'tickit login' first\n")
			return
		}

		fmt.Printf("%s Syncing with Todoist...\n", ui.RenderAccent("🔄"))
		result, err := a.scheduler.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, remote.ErrAuth) {
				exitf("during sync: token rejected, run 'tickit login' again")
			}
			exitf("during sync: %v", err)
		}
		if result.Skipped {
			fmt.Printf("%s Skipped: signed out during the pass\n", ui.RenderWarn("⚠"))
			return
		}

		mark := ui.RenderPass("✓")
		if result.Failed() > 0 {
			mark = ui.RenderWarn("⚠")
		}
		fmt.Printf("%s Sync complete in %v\n", mark, result.Duration.Round(time.Millisecond))
		fmt.Printf("   Deleted: %d\n", result.DeletionsFlushed)
		fmt.Printf("   Created: %d\n", result.Created)
		fmt.Printf("   Updated: %d\n", result.Updated)
		if result.Demoted > 0 {
			fmt.Printf("   Re-queued as new: %d\n", result.Demoted)
		}
		fmt.Printf("   Pulled: %d\n", result.Pulled)
		if result.Failed() > 0 {
			fmt.Printf("   Failed: %s\n", ui.RenderWarn(fmt.Sprint(result.Failed())))
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		stats, err := a.db.Stats()
		if err != nil {
			exitf("reading stats: %v", err)
		}

		fmt.Printf("\n%s tickit status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s\n", a.cfg.DBPath())
		if a.cfg.File != "" {
			fmt.Printf("Config: %s\n", a.cfg.File)
		}

		switch a.creds.Status() {
		case auth.StatusAuthenticated:
			who := "token from environment"
			if s := a.creds.Session(); s != nil && s.User.ID != "" {
				who = s.User.ID
				if s.User.Email != "" {
					who = s.User.Email
				}
			}
			fmt.Printf("Account: %s %s\n", ui.RenderPass("●"), who)
		default:
			fmt.Printf("Account: %s signed out\n", ui.RenderMuted("○"))
		}

		fmt.Printf("Notes: %d\n", stats.Total)
		fmt.Printf("   Synced: %d\n", stats.Total-stats.Dirty)
		fmt.Printf("   Pending upload: %d (%d never uploaded)\n", stats.Dirty, stats.Local)
		fmt.Printf("   Pending deletions: %d\n", stats.PendingDeletions)
		fmt.Println()
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync continuously (foreground)",
	Long: `Run sync passes in the foreground until interrupted.

A pass runs at startup, every sync.interval, and whenever you sign in (the
session file is watched). Passes from other tickit processes are serialised
through a lock file in the data directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpen(ctx, manualSync)
		defer a.Close()

		d, err := daemon.New(a.scheduler, a.creds, a.sessionPath(), a.daemonConfig())
		if err != nil {
			exitf("creating daemon: %v", err)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Interval: %v\n", a.cfg.Sync.Interval)
		fmt.Printf("   Database: %s\n", a.cfg.DBPath())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			exitf("daemon stopped: %v", err)
		}
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Start the local dashboard server",
	Long: `Serve a REST API and a WebSocket feed of note and sync events on
127.0.0.1. The sync daemon runs alongside unless --no-sync is given.

WebSocket messages include:
- note_update: Note created, updated, or deleted
- sync_started / sync_complete: A sync pass began or finished
- stats: Note counts

REST endpoints:
  GET    /api/notes
  POST   /api/notes
  PATCH  /api/notes/{id}
  DELETE /api/notes/{id}
  POST   /api/sync`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		noSync, _ := cmd.Flags().GetBool("no-sync")
		a := mustOpen(ctx, dashboardMode(noSync))
		defer a.Close()

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := newDashboard(a, port, noSync)
		if err := server.Start(); err != nil {
			exitf("failed to start dashboard: %v", err)
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())
		fmt.Printf("REST API: http://%s/api/notes\n", server.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		if noSync {
			<-ctx.Done()
		} else {
			d, err := daemon.New(a.scheduler, a.creds, a.sessionPath(), a.daemonConfig())
			if err != nil {
				_ = server.Stop()
				exitf("creating daemon: %v", err)
			}
			if err := d.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: daemon stopped: %v\n", err)
			}
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			exitf("during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

// dashboardMode keeps a --no-sync dashboard from starting passes on load or
// after REST changes.
func dashboardMode(noSync bool) openMode {
	if noSync {
		return manualSync
	}
	return autoSync
}

// newDashboard wires the server, REST API and event handler to a. With
// noSync the /api/sync endpoint answers 503.
func newDashboard(a *app, port int, noSync bool) *dashboard.Server {
	logger := a.logger("dashboard")
	var trigger dashboard.SyncTrigger
	if !noSync {
		trigger = a.scheduler
	}
	api := dashboard.NewAPI(a.notes, trigger, logger)
	server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger}, api)
	handler := dashboard.NewHandler(server, a.db, logger)
	a.notes.AddListener(handler)
	a.scheduler.AddObserver(handler)
	return server
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "port to listen on (default dashboard.port)")
	dashboardCmd.Flags().Bool("no-sync", false, "serve without running the sync daemon")

	rootCmd.AddCommand(syncCmd, statusCmd, daemonCmd, dashboardCmd)
}

// Compile-time check that the scheduler can drive the dashboard's sync
// endpoint.
var _ dashboard.SyncTrigger = (*daemon.Scheduler)(nil)
