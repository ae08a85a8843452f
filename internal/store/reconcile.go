package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
)

// The operations in this file are the sync engine's side of the store. Each
// runs in one transaction so an optimistic write from the facade can land
// before or after it, never in the middle.

// Pending is a note that must be pushed, with the revision it was read at.
type Pending struct {
	Note *note.Note
	Rev  int64
}

// PromoteOutcome says what Promote did with a created note.
type PromoteOutcome int

const (
	// PromoteApplied means the local row was replaced by the clean remote row.
	PromoteApplied PromoteOutcome = iota
	// PromoteRebased means the row was edited during the create; the remote id
	// was adopted but the local content stays dirty for the next push.
	PromoteRebased
	// PromoteOrphaned means the row was deleted during the create. The caller
	// owns the remote copy and should queue it for deletion.
	PromoteOrphaned
)

// String returns a human-readable representation of the outcome.
func (o PromoteOutcome) String() string {
	switch o {
	case PromoteApplied:
		return "applied"
	case PromoteRebased:
		return "rebased"
	case PromoteOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// putQuery writes a row with an explicit dirty flag and revision.
const putQuery = `
	INSERT INTO notes (
		id, owner, title, content, label,
		due_at, due_all_day, due_text, due_recurring,
		dirty, rev, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner = excluded.owner,
		title = excluded.title,
		content = excluded.content,
		label = excluded.label,
		due_at = excluded.due_at,
		due_all_day = excluded.due_all_day,
		due_text = excluded.due_text,
		due_recurring = excluded.due_recurring,
		dirty = excluded.dirty,
		rev = excluded.rev,
		updated_at = excluded.updated_at
`

func put(ctx context.Context, tx *sql.Tx, n *note.Note, dirty bool, rev int64) error {
	args := append(noteArgs(n), boolToInt(dirty), rev, timestamp(n.UpdatedAt))
	_, err := tx.ExecContext(ctx, putQuery, args...)
	return err
}

func getWithRev(ctx context.Context, tx *sql.Tx, id string) (*note.Note, int64, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+noteColumns+`, rev FROM notes WHERE id = ?`, id)
	var rev int64
	n, err := scanNote(revScanner{row: row, rev: &rev})
	if err != nil {
		return nil, 0, err
	}
	return n, rev, nil
}

// revScanner appends the rev column to a note scan.
type revScanner struct {
	row *sql.Row
	rev *int64
}

func (s revScanner) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.rev)...)
}

// PendingPush returns the notes that need a create (owner "local") or an
// update (dirty and remotely owned), in insertion order.
func (db *DB) PendingPush() ([]Pending, error) {
	return db.PendingPushContext(context.Background())
}

// PendingPushContext lists notes to push with context support.
func (db *DB) PendingPushContext(ctx context.Context) ([]Pending, error) {
	query := `SELECT ` + noteColumns + `, rev FROM notes WHERE dirty = 1 OR owner = 'local' ORDER BY rowid`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("query pending pushes", err)
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var rev int64
		n, err := scanNote(rowsRevScanner{rows: rows, rev: &rev})
		if err != nil {
			return nil, wrap("scan pending push", err)
		}
		pending = append(pending, Pending{Note: n, Rev: rev})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate pending pushes", err)
	}
	return pending, nil
}

type rowsRevScanner struct {
	rows *sql.Rows
	rev  *int64
}

func (s rowsRevScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.rev)...)
}

// Promote retires a local id after its create push succeeded.
//
// rev is the revision the note had when it was read for pushing. If the row
// still has it, the row is replaced by remote, clean. If it was edited since,
// the edit is kept under the remote id and left dirty. If it was deleted, the
// store is untouched and PromoteOrphaned is returned.
func (db *DB) Promote(oldID string, rev int64, remote *note.Note) (PromoteOutcome, error) {
	return db.PromoteContext(context.Background(), oldID, rev, remote)
}

// PromoteContext performs Promote with context support.
func (db *DB) PromoteContext(ctx context.Context, oldID string, rev int64, remote *note.Note) (PromoteOutcome, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("begin transaction", err)
	}
	defer tx.Rollback()

	local, curRev, err := getWithRev(ctx, tx, oldID)
	if errors.Is(err, sql.ErrNoRows) {
		return PromoteOrphaned, nil
	}
	if err != nil {
		return 0, wrap(fmt.Sprintf("read note %s", oldID), err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, oldID); err != nil {
		return 0, wrap(fmt.Sprintf("retire local id %s", oldID), err)
	}

	outcome := PromoteApplied
	if curRev == rev {
		err = put(ctx, tx, remote, false, curRev)
	} else {
		outcome = PromoteRebased
		rebased := local.Clone()
		rebased.ID = remote.ID
		rebased.Owner = remote.Owner
		err = put(ctx, tx, rebased, true, curRev)
	}
	if err != nil {
		return 0, wrap(fmt.Sprintf("insert note %s", remote.ID), err)
	}

	if err := tx.Commit(); err != nil {
		return 0, wrap("commit transaction", err)
	}
	return outcome, nil
}

// Acknowledge marks id clean with the remote's copy, unless the row was
// edited or deleted after it was read at rev. Reports whether it applied.
func (db *DB) Acknowledge(id string, rev int64, remote *note.Note) (bool, error) {
	return db.AcknowledgeContext(context.Background(), id, rev, remote)
}

// AcknowledgeContext performs Acknowledge with context support.
func (db *DB) AcknowledgeContext(ctx context.Context, id string, rev int64, remote *note.Note) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, wrap("begin transaction", err)
	}
	defer tx.Rollback()

	_, curRev, err := getWithRev(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap(fmt.Sprintf("read note %s", id), err)
	}
	if curRev != rev {
		return false, nil
	}

	acked := remote.Clone()
	acked.ID = id
	if err := put(ctx, tx, acked, false, curRev); err != nil {
		return false, wrap(fmt.Sprintf("acknowledge note %s", id), err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrap("commit transaction", err)
	}
	return true, nil
}

// Demote turns a note whose remote copy vanished back into a local one, so
// the next push re-creates it instead of losing the content.
func (db *DB) Demote(id string) error {
	return db.DemoteContext(context.Background(), id)
}

// DemoteContext performs Demote with context support.
func (db *DB) DemoteContext(ctx context.Context, id string) error {
	query := `UPDATE notes SET owner = 'local', dirty = 1, rev = rev + 1 WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return wrap(fmt.Sprintf("demote note %s", id), err)
	}
	return nil
}

// Tombstone deletes a note and, if the remote knows it, queues its id for
// remote deletion in the same transaction. Returns the removed note, or nil
// if there was none.
func (db *DB) Tombstone(id string) (*note.Note, error) {
	return db.TombstoneContext(context.Background(), id)
}

// TombstoneContext performs Tombstone with context support.
func (db *DB) TombstoneContext(ctx context.Context, id string) (*note.Note, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	defer tx.Rollback()

	existing, _, err := getWithRev(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(fmt.Sprintf("read note %s", id), err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return nil, wrap(fmt.Sprintf("delete note %s", id), err)
	}
	if !existing.IsLocal() {
		query := `INSERT OR IGNORE INTO pending_deletions (id, queued_at) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, query, id, timestamp(time.Now())); err != nil {
			return nil, wrap(fmt.Sprintf("queue deletion of %s", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrap("commit transaction", err)
	}
	return existing, nil
}

// ReplaceAll makes the store match the remote's authoritative list.
//
// Clean rows are dropped and the remote notes inserted clean, in one
// transaction. Rows still dirty locally are kept as they are, and ids waiting
// in the deletion ledger are not brought back. Returns the number of remote
// notes inserted.
func (db *DB) ReplaceAll(notes []*note.Note) (int, error) {
	return db.ReplaceAllContext(context.Background(), notes)
}

// ReplaceAllContext performs ReplaceAll with context support.
func (db *DB) ReplaceAllContext(ctx context.Context, notes []*note.Note) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE dirty = 0 AND owner != 'local'`); err != nil {
		return 0, wrap("clear synced notes", err)
	}

	tombstoned := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, `SELECT id FROM pending_deletions`)
	if err != nil {
		return 0, wrap("query pending deletions", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, wrap("scan pending deletion", err)
		}
		tombstoned[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrap("iterate pending deletions", err)
	}

	insert := `
	INSERT INTO notes (
		id, owner, title, content, label,
		due_at, due_all_day, due_text, due_recurring,
		dirty, rev, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
	ON CONFLICT(id) DO NOTHING
	`

	inserted := 0
	for _, n := range notes {
		if tombstoned[n.ID] {
			continue
		}
		args := append(noteArgs(n), timestamp(n.UpdatedAt))
		res, err := tx.ExecContext(ctx, insert, args...)
		if err != nil {
			return 0, wrap(fmt.Sprintf("insert note %s", n.ID), err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrap("commit transaction", err)
	}
	return inserted, nil
}
