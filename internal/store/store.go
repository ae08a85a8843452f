// Package store provides the embedded SQLite database that holds notes and the
// pending-deletion ledger on this device.
//
// The database is the local half of the sync pair:
//   - Database file: <data_dir>/tickit.db
//   - WAL mode: readers never block the sync engine's writes
//   - Immediate transactions: read-then-write steps cannot deadlock on upgrade
//   - Tables: notes, pending_deletions
//
// Every write marks whether it is an unconfirmed local mutation (dirty) and
// bumps a per-row revision, which lets the sync engine tell whether a row was
// edited while a push for it was in flight.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tickit-notes/tickit/internal/note"
)

// DB wraps the SQLite connection with note-specific operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The caller MUST call Close() when done to ensure the WAL is checkpointed.
//
// Example:
//
//	db, err := store.Open(filepath.Join(dataDir, "tickit.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, wrap("create database directory", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, wrap("open database", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, wrap("ping database", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, wrap("enable WAL mode", err)
	}

	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return wrap("close database", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Safe to call on every start.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL DEFAULT 'local',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		label TEXT,
		due_at TEXT,               -- YYYY-MM-DD when all-day, RFC3339 otherwise
		due_all_day INTEGER NOT NULL DEFAULT 0,
		due_text TEXT,
		due_recurring INTEGER NOT NULL DEFAULT 0,
		dirty INTEGER NOT NULL DEFAULT 0,
		rev INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_deletions (
		id TEXT PRIMARY KEY,
		queued_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_dirty ON notes(dirty);
	CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return wrap("initialize schema", err)
	}

	return nil
}

const noteColumns = `id, owner, title, content, label, due_at, due_all_day, due_text, due_recurring, dirty, updated_at`

// GetAll returns every stored note in insertion order.
func (db *DB) GetAll() ([]*note.Note, error) {
	return db.GetAllContext(context.Background())
}

// GetAllContext returns every stored note with context support.
func (db *DB) GetAllContext(ctx context.Context) ([]*note.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY rowid`)
	if err != nil {
		return nil, wrap("query notes", err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, wrap("scan notes", err)
	}
	return notes, nil
}

// Get returns the note with the given id, or ErrNotFound.
func (db *DB) Get(id string) (*note.Note, error) {
	return db.GetContext(context.Background(), id)
}

// GetContext returns a single note with context support.
func (db *DB) GetContext(ctx context.Context, id string) (*note.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(fmt.Sprintf("get note %s", id), err)
	}
	return n, nil
}

// Save inserts or updates a note by id.
//
// dirty marks the write as an unconfirmed local mutation. Every save bumps
// the row's revision.
func (db *DB) Save(n *note.Note, dirty bool) error {
	return db.SaveContext(context.Background(), n, dirty)
}

// SaveContext upserts a note with context support.
func (db *DB) SaveContext(ctx context.Context, n *note.Note, dirty bool) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid note: %w", err)
	}

	query := `
	INSERT INTO notes (
		id, owner, title, content, label,
		due_at, due_all_day, due_text, due_recurring,
		dirty, rev, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
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
		rev = notes.rev + 1,
		updated_at = excluded.updated_at
	`

	args := append(noteArgs(n), boolToInt(dirty), timestamp(n.UpdatedAt))
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return wrap(fmt.Sprintf("save note %s", n.ID), err)
	}
	return nil
}

// Delete removes a note. Returns nil if the note doesn't exist.
func (db *DB) Delete(id string) error {
	return db.DeleteContext(context.Background(), id)
}

// DeleteContext removes a note with context support.
func (db *DB) DeleteContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return wrap(fmt.Sprintf("delete note %s", id), err)
	}
	return nil
}

// Clear removes every note. The pending-deletion ledger is left alone.
func (db *DB) Clear() error {
	return db.ClearContext(context.Background())
}

// ClearContext removes every note with context support.
func (db *DB) ClearContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return wrap("clear notes", err)
	}
	return nil
}

// Stats summarizes the local state.
type Stats struct {
	Total            int `json:"total"`
	Dirty            int `json:"dirty"`
	Local            int `json:"local"`
	PendingDeletions int `json:"pending_deletions"`
}

// Stats returns note and ledger counts.
func (db *DB) Stats() (Stats, error) {
	return db.StatsContext(context.Background())
}

// StatsContext returns counts with context support.
func (db *DB) StatsContext(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(dirty), 0),
			COALESCE(SUM(CASE WHEN owner = 'local' THEN 1 ELSE 0 END), 0)
		FROM notes
	`).Scan(&s.Total, &s.Dirty, &s.Local)
	if err != nil {
		return Stats{}, wrap("count notes", err)
	}

	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_deletions`).Scan(&s.PendingDeletions); err != nil {
		return Stats{}, wrap("count pending deletions", err)
	}
	return s, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*note.Note, error) {
	var (
		n         note.Note
		label     sql.NullString
		dueAt     sql.NullString
		allDay    int
		dueText   sql.NullString
		recurring int
		dirty     int
		updatedAt string
	)
	if err := row.Scan(&n.ID, &n.Owner, &n.Title, &n.Content, &label,
		&dueAt, &allDay, &dueText, &recurring, &dirty, &updatedAt); err != nil {
		return nil, err
	}

	n.Label = label.String
	n.Dirty = dirty != 0
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("note %s: invalid updated_at %q: %w", n.ID, updatedAt, err)
	}
	n.UpdatedAt = ts

	due, err := columnsToDue(dueAt, allDay != 0, dueText, recurring != 0)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", n.ID, err)
	}
	n.Due = due

	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]*note.Note, error) {
	var notes []*note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// noteArgs returns the content columns in the order used by the insert statements.
func noteArgs(n *note.Note) []any {
	dueAt, allDay, dueText, recurring := dueToColumns(n.Due)
	return []any{
		n.ID,
		n.Owner,
		n.Title,
		n.Content,
		stringToNull(n.Label),
		dueAt,
		boolToInt(allDay),
		dueText,
		boolToInt(recurring),
	}
}

func dueToColumns(d *note.Due) (sql.NullString, bool, sql.NullString, bool) {
	if d == nil {
		return sql.NullString{}, false, sql.NullString{}, false
	}
	var at sql.NullString
	if d.HasDate() {
		if d.AllDay {
			at = sql.NullString{String: d.Date(), Valid: true}
		} else {
			at = sql.NullString{String: d.At.UTC().Format(time.RFC3339Nano), Valid: true}
		}
	}
	return at, d.AllDay, stringToNull(d.Text), d.Recurring
}

func columnsToDue(at sql.NullString, allDay bool, text sql.NullString, recurring bool) (*note.Due, error) {
	if !at.Valid && !text.Valid {
		return nil, nil
	}
	d := &note.Due{AllDay: allDay, Text: text.String, Recurring: recurring}
	if at.Valid {
		layout := time.RFC3339Nano
		if allDay {
			layout = note.DateLayout
		}
		t, err := time.Parse(layout, at.String)
		if err != nil {
			return nil, fmt.Errorf("invalid due %q: %w", at.String, err)
		}
		d.At = t
	}
	return d, nil
}

func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
