// Package sync provides the reconciliation pass between the local note store
// and the remote task service.
//
// # Overview
//
// Notes are written locally first and marked dirty. A pass later makes the
// remote agree with those writes and then makes the store agree with the
// remote:
//
//	store (dirty rows, pending deletions)
//	     │
//	     ├── 1. flush deletions ──→ Gateway.Delete
//	     ├── 2. push           ──→ Gateway.Create / Gateway.Update
//	     └── 3. pull           ←── Gateway.List
//	                                    │
//	                              store.ReplaceAll
//
// Deletions go first so a listing can never bring back a note the user has
// deleted. Pull goes last so the store reflects the pushes of the same pass.
//
// # Identity
//
// A note created offline has owner "local" and a random id. After its create
// succeeds the row is promoted: the local id is retired and the note is kept
// under the id the remote assigned. Exactly one of the two ids exists at any
// time.
//
// # Concurrent edits
//
// Every store write bumps the row's revision. Push reads the revision along
// with the note and the store only marks the row clean if the revision is
// unchanged when the remote answers. An edit made while a push is in flight
// therefore stays dirty and goes out in the next pass.
//
// # Error Handling
//
//   - A note that fails to push or delete is logged and left pending
//   - A rejected credential aborts the pass and invalidates the credential
//   - A failed listing aborts the pass before the store is touched
//   - Storage errors abort the pass and are returned to the caller
//
// # Usage
//
//	syncer := sync.New(database, client, provider, nil)
//	result, err := syncer.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	if result.Skipped {
//	    fmt.Println("not signed in")
//	}
//
// Passes must not overlap. The daemon package's Scheduler serializes them
// within a process and across processes.
package sync
