// Package migrate moves notes in and out of tickit as portable files.
//
// Exports are JSON Lines, YAML or TOML. Imported records always become new
// local notes; the next sync pass creates them remotely.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tickit-notes/tickit/internal/note"
)

// Format is an export file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jsonl", "ndjson", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want jsonl, yaml or toml)", s)
	}
}

// FormatFor picks the format from path's extension.
func FormatFor(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Record is a note as it appears in an export file.
type Record struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Title     string    `json:"title" yaml:"title" toml:"title"`
	Content   string    `json:"content,omitempty" yaml:"content,omitempty" toml:"content,omitempty"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Due       string    `json:"due,omitempty" yaml:"due,omitempty" toml:"due,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// file is the document root for YAML and TOML.
type file struct {
	Notes []Record `yaml:"notes" toml:"notes"`
}

// ToRecord converts a note for export.
func ToRecord(n *note.Note) Record {
	return Record{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Label:     n.Label,
		Due:       dueString(n.Due),
		UpdatedAt: n.UpdatedAt.UTC(),
	}
}

// dueString keeps recurring phrases as text so the remote can interpret them.
func dueString(d *note.Due) string {
	switch {
	case d == nil:
		return ""
	case d.Recurring && d.Text != "":
		return d.Text
	case !d.HasDate():
		return d.Text
	case d.AllDay:
		return d.Date()
	default:
		return d.At.Format(time.RFC3339)
	}
}

// ToNote converts an imported record into a new local note. The record's id
// is not reused.
func (r Record) ToNote(now time.Time) (*note.Note, error) {
	n := &note.Note{
		Title:   r.Title,
		Content: r.Content,
		Label:   strings.TrimSpace(r.Label),
	}
	if r.Due != "" {
		due, err := note.ParseDue(r.Due, now)
		if err != nil {
			return nil, err
		}
		n.Due = due
	}
	return n, nil
}

// ExportOptions contains configuration for an export.
type ExportOptions struct {
	To     string // Output file path
	Format Format // Defaults to the format implied by To
}

// Export writes notes to opts.To, replacing it atomically. It returns the
// number of records written.
func Export(notes []*note.Note, opts ExportOptions) (int, error) {
	if opts.To == "" {
		return 0, fmt.Errorf("no output path")
	}
	format := opts.Format
	if format == "" {
		f, err := FormatFor(opts.To)
		if err != nil {
			return 0, err
		}
		format = f
	}

	var buf bytes.Buffer
	if err := Encode(&buf, notes, format); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.To), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmpPath := opts.To + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, opts.To); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return len(notes), nil
}

// Encode writes notes to w in format.
func Encode(w io.Writer, notes []*note.Note, format Format) error {
	records := make([]Record, len(notes))
	for i, n := range notes {
		records[i] = ToRecord(n)
	}

	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode note %s: %w", r.ID, err)
			}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(file{Notes: records}); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(file{Notes: records}); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// FromJSONL reads one record per line. Blank lines are skipped.
func FromJSONL(path string) ([]Record, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	return records, nil
}

// FromYAML reads a YAML export.
func FromYAML(path string) ([]Record, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return doc.Notes, nil
}

// FromTOML reads a TOML export.
func FromTOML(path string) ([]Record, error) {
	var doc file
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML file: %w", err)
	}
	return doc.Notes, nil
}

// Read reads path in the given format, or the one its extension implies.
func Read(path string, format Format) ([]Record, error) {
	if format == "" {
		f, err := FormatFor(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	switch format {
	case FormatJSONL:
		return FromJSONL(path)
	case FormatYAML:
		return FromYAML(path)
	case FormatTOML:
		return FromTOML(path)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Adder creates notes. The note facade implements it.
type Adder interface {
	Add(ctx context.Context, n *note.Note) (*note.Note, error)
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	From   string // Input file path
	Format Format // Defaults to the format implied by From
	DryRun bool   // Validate without adding
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Imported int
	Skipped  int // empty records
	Errors   []string
}

// Import adds every record in opts.From as a new local note. Invalid records
// are reported in the result and do not stop the import.
func Import(ctx context.Context, adder Adder, opts ImportOptions) (*ImportResult, error) {
	if _, err := os.Stat(opts.From); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	records, err := Read(opts.From, opts.Format)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Read: len(records)}
	now := time.Now()
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			result.Skipped++
			continue
		}

		n, err := r.ToNote(now)
		if err == nil {
			n.SetDefaults()
			err = n.Validate()
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			continue
		}

		if !opts.DryRun {
			if _, err := adder.Add(ctx, n); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return result, err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, err))
				continue
			}
		}
		result.Imported++
	}
	return result, nil
}
