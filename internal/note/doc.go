// Package note defines the Note entity shared by the local store, the remote
// gateway and the sync engine.
//
// # Ownership
//
// Every note carries an ownership scope. A note created on this device starts
// with Owner == LocalOwner and a random UUID. Once the remote service accepts
// it, the row is replaced by one carrying the remote id and the remote user id
// as owner. The old id is never reused.
//
//	n := note.NewLocal("Buy milk", "")
//	n.IsLocal()  // true
//	n.IsSynced() // false
//
// # Due dates
//
// The remote service accepts a date, a date-time or a free-form string. Due
// holds whichever the user gave:
//
//	due, _ := note.ParseDue("2025-11-24", time.Now())        // all-day
//	due, _ = note.ParseDue("2025-11-24T09:30:00Z", time.Now()) // instant
//	due, _ = note.ParseDue("next friday", time.Now())          // parsed, text kept
//	due, _ = note.ParseDue("every monday", time.Now())         // recurring
//
// # Partial updates
//
// Patch carries only the fields being changed:
//
//	note.Patch{Title: note.String("Buy oat milk")}.Apply(n)
package note
