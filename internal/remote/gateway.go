// Package remote maps notes onto the Todoist task API.
package remote

import (
	"context"

	"github.com/tickit-notes/tickit/internal/note"
)

// Gateway is the remote half of the sync pair.
//
// Implementations touch no local state. Every method may fail with ErrAuth
// (wrapped), ErrNetwork (wrapped) or a *RemoteError.
type Gateway interface {
	// List fetches the complete authoritative set for the current credential.
	List(ctx context.Context) ([]*note.Note, error)

	// Create submits a local-only note and returns it with its remote id and owner.
	Create(ctx context.Context, n *note.Note) (*note.Note, error)

	// Update overwrites the remote task id with n. Last write wins; there is
	// no version check.
	Update(ctx context.Context, id string, n *note.Note) (*note.Note, error)

	// Delete removes the remote task. Fails with ErrNotFound if it is already
	// gone, which callers treat as success.
	Delete(ctx context.Context, id string) error
}
