package store

import (
	"context"
	"fmt"
	"time"
)

// AddPendingDeletion records that id must still be deleted remotely.
// Adding an id that is already queued is a no-op.
func (db *DB) AddPendingDeletion(id string) error {
	return db.AddPendingDeletionContext(context.Background(), id)
}

// AddPendingDeletionContext queues a remote deletion with context support.
func (db *DB) AddPendingDeletionContext(ctx context.Context, id string) error {
	query := `INSERT OR IGNORE INTO pending_deletions (id, queued_at) VALUES (?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, id, timestamp(time.Now())); err != nil {
		return wrap(fmt.Sprintf("queue deletion of %s", id), err)
	}
	return nil
}

// RemovePendingDeletion drops id from the ledger. Returns nil if absent.
func (db *DB) RemovePendingDeletion(id string) error {
	return db.RemovePendingDeletionContext(context.Background(), id)
}

// RemovePendingDeletionContext drops a ledger entry with context support.
func (db *DB) RemovePendingDeletionContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM pending_deletions WHERE id = ?`, id); err != nil {
		return wrap(fmt.Sprintf("remove pending deletion %s", id), err)
	}
	return nil
}

// GetPendingDeletions returns the queued ids, oldest first.
func (db *DB) GetPendingDeletions() ([]string, error) {
	return db.GetPendingDeletionsContext(context.Background())
}

// GetPendingDeletionsContext lists the ledger with context support.
func (db *DB) GetPendingDeletionsContext(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM pending_deletions ORDER BY rowid`)
	if err != nil {
		return nil, wrap("query pending deletions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("scan pending deletion", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate pending deletions", err)
	}
	return ids, nil
}
