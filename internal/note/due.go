package note

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateLayout is the wire and display layout for all-day dates.
const DateLayout = "2006-01-02"

// Due is a note's due date. The remote service carries a date, a date-time
// and a natural-language string; Due keeps enough of each to round-trip.
//
// All-day dates are stored at UTC midnight so the calendar date never drifts
// with the local zone.
type Due struct {
	At        time.Time `json:"at,omitempty"`
	AllDay    bool      `json:"all_day,omitempty"`
	Text      string    `json:"text,omitempty"`
	Recurring bool      `json:"recurring,omitempty"`
}

// OnDate returns an all-day due date.
func OnDate(year int, month time.Month, day int) *Due {
	return &Due{At: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), AllDay: true}
}

// HasDate reports whether the due carries a concrete date.
func (d *Due) HasDate() bool {
	return d != nil && !d.At.IsZero()
}

// Date returns the calendar date, or "" for a text-only due.
func (d *Due) Date() string {
	if !d.HasDate() {
		return ""
	}
	if d.AllDay {
		return d.At.UTC().Format(DateLayout)
	}
	return d.At.Local().Format(DateLayout)
}

func (d *Due) String() string {
	if d == nil {
		return ""
	}
	var s string
	switch {
	case !d.HasDate():
		return d.Text
	case d.AllDay:
		s = d.Date()
	default:
		s = d.At.Local().Format("2006-01-02 15:04")
	}
	if d.Recurring && d.Text != "" {
		s += " (" + d.Text + ")"
	}
	return s
}

var (
	dueParser = func() *when.Parser {
		w := when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)
		return w
	}()

	clockPattern = regexp.MustCompile(`(?i)\d{1,2}:\d{2}|\d{1,2}\s*(am|pm|a\.m\.|p\.m\.)|\b(noon|midnight|morning|afternoon|evening|tonight)\b`)
)

// ParseDue turns user input into a Due. Empty input yields nil.
//
// ISO dates and date-times are recognised first. Anything else goes through
// the natural-language parser; phrases it cannot place are kept as text for
// the remote service to interpret.
func ParseDue(input string, now time.Time) (*Due, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	if t, err := time.Parse(DateLayout, input); err == nil {
		return &Due{At: t, AllDay: true}, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return &Due{At: t}, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return &Due{At: t}, nil
		}
	}

	recurring := strings.HasPrefix(strings.ToLower(input), "every ")

	r, err := dueParser.Parse(input, now)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due %q: %w", input, err)
	}
	if r == nil {
		return &Due{Text: input, Recurring: recurring}, nil
	}

	due := &Due{Text: input, Recurring: recurring}
	if clockPattern.MatchString(input) {
		due.At = r.Time
	} else {
		due.AllDay = true
		due.At = time.Date(r.Time.Year(), r.Time.Month(), r.Time.Day(), 0, 0, 0, 0, time.UTC)
	}
	return due, nil
}
