// Package sync reconciles the local note store with the remote service.
package sync

import (
	"context"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
)

// Syncer runs sync passes between the local store and a remote gateway.
//
// A pass has three stages, always in this order:
//
//  1. Flush the pending-deletion ledger. Ids the remote no longer has count
//     as deleted.
//  2. Push local mutations. Notes the remote has never seen are created and
//     their local ids retired; dirty remote notes are overwritten.
//  3. Pull the complete remote set and make the store match it, keeping any
//     row still dirty locally.
//
// The syncer is resilient - a single note failing to push or delete does not
// stop the pass. The failure is logged, the note stays pending, and the next
// pass retries it.
type Syncer interface {
	// Run performs one sync pass.
	//
	// If the credential is not authenticated, Run does nothing and returns
	// a Result with Skipped set and a nil error.
	//
	// Run returns an error, and leaves the rest of the pass undone, when:
	//   - the remote rejects the credential (the credential is invalidated)
	//   - the remote list cannot be fetched (the store is left untouched)
	//   - the local store fails
	//   - ctx is cancelled
	//
	// The returned Result is never nil and holds the counters reached so far.
	//
	// Example:
	//   result, err := syncer.Run(ctx)
	//   if err == nil && !result.Skipped {
	//       fmt.Printf("pulled %d notes\n", result.Pulled)
	//   }
	Run(ctx context.Context) (*Result, error)
}

// Result summarizes a sync pass.
type Result struct {
	// Skipped is set when the pass did not run for lack of credentials.
	Skipped bool `json:"skipped"`

	DeletionsFlushed int `json:"deletions_flushed"`
	DeletionsFailed  int `json:"deletions_failed"`

	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Demoted    int `json:"demoted"`
	PushFailed int `json:"push_failed"`

	// Pulled is the number of remote notes written to the store.
	Pulled int `json:"pulled"`

	// Notes is the store content after the pull. Nil unless the pass completed.
	Notes []*note.Note `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Failed returns the number of notes left pending by per-note failures.
func (r *Result) Failed() int {
	return r.DeletionsFailed + r.PushFailed
}
