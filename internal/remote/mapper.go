package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
)

// untitled is sent when a note has no title; the remote rejects empty content.
const untitled = "No title"

// clearDue is the due_string that removes a task's due date.
const clearDue = "no date"

// task is the remote task shape, restricted to the fields notes use.
type task struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	Due         *taskDue `json:"due"`
	UpdatedAt   string   `json:"updated_at"`
}

type taskDue struct {
	Date        string  `json:"date"`
	Timezone    *string `json:"timezone"`
	String      string  `json:"string"`
	Lang        string  `json:"lang"`
	IsRecurring bool    `json:"is_recurring"`
}

type taskPage struct {
	Results    []task  `json:"results"`
	NextCursor *string `json:"next_cursor"`
}

// taskRequest is the body for create and update.
type taskRequest struct {
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	DueString   string   `json:"due_string,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	DueDatetime string   `json:"due_datetime,omitempty"`
}

type userResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// toNote maps a remote task to a clean, remotely-owned note.
func toNote(t *task, fallbackOwner string) (*note.Note, error) {
	n := &note.Note{
		ID:      t.ID,
		Owner:   t.UserID,
		Title:   t.Content,
		Content: t.Description,
	}
	if n.Owner == "" {
		n.Owner = fallbackOwner
	}
	if len(t.Labels) > 0 {
		n.Label = t.Labels[0]
	}
	if t.UpdatedAt != "" {
		ts, err := time.Parse(time.RFC3339, t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("task %s: invalid updated_at %q: %w", t.ID, t.UpdatedAt, err)
		}
		n.UpdatedAt = ts
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}

	if t.Due != nil {
		due, err := toDue(t.Due)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		n.Due = due
	}
	return n, nil
}

// toDue parses due.date, which is one of:
//
//	2025-12-11            all-day
//	2025-12-11T18:15:00Z  fixed instant
//	2025-12-11T18:15:00   floating, read in the local zone
func toDue(d *taskDue) (*note.Due, error) {
	due := &note.Due{Text: d.String, Recurring: d.IsRecurring}
	date := strings.TrimSpace(d.Date)

	switch {
	case date == "":
		if due.Text == "" {
			return nil, nil
		}
	case len(date) == len(note.DateLayout):
		t, err := time.Parse(note.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid due date %q: %w", date, err)
		}
		due.At, due.AllDay = t, true
	default:
		t, err := time.Parse(time.RFC3339, date)
		if err != nil {
			t, err = time.ParseInLocation("2006-01-02T15:04:05", date, time.Local)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid due datetime %q: %w", date, err)
		}
		due.At = t
	}
	return due, nil
}

// toRequest maps a note to a create or update body.
func toRequest(n *note.Note, update bool) taskRequest {
	req := taskRequest{
		Content:     n.Title,
		Description: n.Content,
		Labels:      []string{},
	}
	if strings.TrimSpace(req.Content) == "" {
		req.Content = untitled
	}
	if n.Label != "" {
		req.Labels = []string{n.Label}
	}

	d := n.Due
	switch {
	case d == nil || (!d.HasDate() && d.Text == ""):
		if update {
			req.DueString = clearDue
		}
	case d.Recurring && d.Text != "":
		// A concrete date would drop the recurrence.
		req.DueString = d.Text
	case d.HasDate() && d.AllDay:
		req.DueDate = d.Date()
	case d.HasDate():
		req.DueDatetime = d.At.UTC().Format(time.RFC3339)
	default:
		req.DueString = d.Text
	}
	return req
}
