package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/remote"
	"github.com/tickit-notes/tickit/internal/store"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *store.DB
	gw     remote.Gateway
	creds  auth.Credentials
	logger *log.Logger
}

// New creates a new Syncer instance.
//
// The database must have its schema created before passing to this function.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	database, err := store.Open(filepath.Join(dataDir, "tickit.db"))
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	client, err := remote.NewClient(provider, remote.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(database, client, provider, nil)
func New(database *store.DB, gw remote.Gateway, creds auth.Credentials, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     database,
		gw:     gw,
		creds:  creds,
		logger: logger,
	}
}

// Run implements Syncer.Run.
func (s *syncer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if status := s.creds.Status(); status != auth.StatusAuthenticated {
		s.logger.Printf("Skipping sync pass: %s", status)
		result.Skipped = true
		return result, nil
	}

	s.logger.Printf("Starting sync pass")

	flushed, err := s.flushDeletions(ctx, result)
	if err != nil {
		return s.abort(result, start, err)
	}
	if err := s.push(ctx, result); err != nil {
		return s.abort(result, start, err)
	}
	if err := s.pull(ctx, result, flushed); err != nil {
		return s.abort(result, start, err)
	}

	result.Duration = time.Since(start)
	s.logger.Printf("Sync pass complete: deleted=%d (failed=%d), created=%d, updated=%d, demoted=%d (failed=%d), pulled=%d in %v",
		result.DeletionsFlushed, result.DeletionsFailed,
		result.Created, result.Updated, result.Demoted, result.PushFailed,
		result.Pulled, result.Duration.Round(time.Millisecond))
	return result, nil
}

// abort ends a pass early. A rejected credential is invalidated so callers
// see the unauthenticated state before the error.
func (s *syncer) abort(result *Result, start time.Time, err error) (*Result, error) {
	result.Duration = time.Since(start)
	if errors.Is(err, remote.ErrAuth) {
		s.creds.Invalidate()
	}
	s.logger.Printf("Sync pass aborted: %v", err)
	return result, err
}

// fatal reports whether err must stop the pass rather than leave one note
// pending. Network failures and unexpected remote statuses are retried by the
// next pass.
func fatal(err error) bool {
	if remote.IsRetryable(err) {
		return false
	}
	return errors.Is(err, remote.ErrAuth) ||
		store.IsStorageError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// flushDeletions sends every queued remote deletion and returns the ids the
// remote no longer has. Individual failures are logged and the id stays
// queued.
func (s *syncer) flushDeletions(ctx context.Context, result *Result) (map[string]bool, error) {
	ids, err := s.db.GetPendingDeletionsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending deletions: %w", err)
	}

	flushed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.gw.Delete(ctx, id)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			if fatal(err) {
				return nil, fmt.Errorf("failed to delete remote note %s: %w", id, err)
			}
			s.logger.Printf("WARNING: Failed to delete remote note %s: %v", id, err)
			result.DeletionsFailed++
			continue
		}

		// The remote has forgotten id; finishing the bookkeeping must not be
		// cut short by cancellation.
		if err := s.db.RemovePendingDeletionContext(context.WithoutCancel(ctx), id); err != nil {
			return nil, fmt.Errorf("failed to clear pending deletion %s: %w", id, err)
		}
		flushed[id] = true
		result.DeletionsFlushed++
	}
	return flushed, nil
}

// push sends notes the remote has never seen and dirty remote notes.
// The pending set is read now, not when the pass was requested.
func (s *syncer) push(ctx context.Context, result *Result) error {
	pending, err := s.db.PendingPushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending pushes: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.Note.IsLocal() {
			err = s.create(ctx, p, result)
		} else {
			err = s.update(ctx, p, result)
		}
		if err == nil {
			continue
		}
		if fatal(err) {
			return err
		}
		s.logger.Printf("WARNING: Failed to push note %s: %v", p.Note.ID, err)
		result.PushFailed++
	}
	return nil
}

func (s *syncer) create(ctx context.Context, p store.Pending, result *Result) error {
	created, err := s.gw.Create(ctx, p.Note)
	if err != nil {
		return fmt.Errorf("failed to create remote note: %w", err)
	}

	local := context.WithoutCancel(ctx)
	outcome, err := s.db.PromoteContext(local, p.Note.ID, p.Rev, created)
	if err != nil {
		return fmt.Errorf("failed to promote note %s: %w", p.Note.ID, err)
	}

	switch outcome {
	case store.PromoteOrphaned:
		// Deleted locally while the create was in flight.
		if err := s.db.AddPendingDeletionContext(local, created.ID); err != nil {
			return fmt.Errorf("failed to queue orphaned note %s: %w", created.ID, err)
		}
		s.logger.Printf("Note %s was deleted during create; queued %s for deletion", p.Note.ID, created.ID)
	case store.PromoteRebased:
		s.logger.Printf("Created note %s -> %s (edited during push, still pending)", p.Note.ID, created.ID)
	default:
		s.logger.Printf("Created note %s -> %s", p.Note.ID, created.ID)
	}
	result.Created++
	return nil
}

func (s *syncer) update(ctx context.Context, p store.Pending, result *Result) error {
	updated, err := s.gw.Update(ctx, p.Note.ID, p.Note)
	if errors.Is(err, remote.ErrNotFound) {
		// Gone remotely. Keep the content by creating it again next pass.
		if err := s.db.DemoteContext(context.WithoutCancel(ctx), p.Note.ID); err != nil {
			return fmt.Errorf("failed to demote note %s: %w", p.Note.ID, err)
		}
		s.logger.Printf("Note %s no longer exists remotely; will re-create", p.Note.ID)
		result.Demoted++
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update remote note: %w", err)
	}

	applied, err := s.db.AcknowledgeContext(context.WithoutCancel(ctx), p.Note.ID, p.Rev, updated)
	if err != nil {
		return fmt.Errorf("failed to acknowledge note %s: %w", p.Note.ID, err)
	}
	if !applied {
		s.logger.Printf("Updated note %s (changed during push, still pending)", p.Note.ID)
	}
	result.Updated++
	return nil
}

// pull replaces the store's synced rows with the remote set. Ids deleted
// earlier in the pass are dropped from the listing, which may still carry
// them.
func (s *syncer) pull(ctx context.Context, result *Result, flushed map[string]bool) error {
	listed, err := s.gw.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list remote notes: %w", err)
	}

	notes := listed[:0:0]
	for _, n := range listed {
		if flushed[n.ID] {
			s.logger.Printf("Ignoring deleted note %s in remote listing", n.ID)
			continue
		}
		notes = append(notes, n)
	}

	inserted, err := s.db.ReplaceAllContext(ctx, notes)
	if err != nil {
		return fmt.Errorf("failed to replace notes: %w", err)
	}
	result.Pulled = inserted

	all, err := s.db.GetAllContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to read notes: %w", err)
	}
	result.Notes = all
	return nil
}
