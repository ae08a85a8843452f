package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tickit-notes/tickit/internal/note"
)

// Sync markers shown in front of each note.
const (
	MarkSynced  = "✓"
	MarkPending = "●"
	MarkLocal   = "○"
)

// ShortIDLen is how much of a local uuid is shown in lists.
const ShortIDLen = 8

const maxTitleWidth = 60

// Mark returns the styled sync marker for n.
func Mark(n *note.Note) string {
	switch {
	case n.IsSynced():
		return RenderPass(MarkSynced)
	case n.IsLocal():
		return RenderMuted(MarkLocal)
	default:
		return RenderWarn(MarkPending)
	}
}

// ShortID trims local uuids. Remote ids are short already.
func ShortID(id string) string {
	if len(id) > ShortIDLen && strings.Count(id, "-") == 4 {
		return id[:ShortIDLen]
	}
	return id
}

// RenderNotes writes one aligned line per note.
func RenderNotes(w io.Writer, notes []*note.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(w, RenderMuted("No notes"))
		return
	}

	idWidth, titleWidth := 0, 0
	for _, n := range notes {
		idWidth = max(idWidth, lipgloss.Width(ShortID(n.ID)))
		titleWidth = max(titleWidth, lipgloss.Width(displayTitle(n)))
	}
	titleWidth = min(titleWidth, maxTitleWidth)

	for _, n := range notes {
		line := []string{
			Mark(n),
			RenderMuted(pad(ShortID(n.ID), idWidth)),
			pad(truncate(displayTitle(n), titleWidth), titleWidth),
		}
		if n.Label != "" {
			line = append(line, RenderAccent("#"+n.Label))
		}
		if due := n.Due.String(); due != "" {
			line = append(line, RenderWarn("due "+due))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, " "), " "))
	}
}

// RenderNote writes the full note.
func RenderNote(w io.Writer, n *note.Note) {
	fmt.Fprintf(w, "%s %s\n", Mark(n), RenderBold(displayTitle(n)))
	fmt.Fprintf(w, "   ID: %s\n", n.ID)
	fmt.Fprintf(w, "   Owner: %s\n", n.Owner)
	if n.Label != "" {
		fmt.Fprintf(w, "   Label: %s\n", n.Label)
	}
	if due := n.Due.String(); due != "" {
		fmt.Fprintf(w, "   Due: %s\n", due)
	}
	fmt.Fprintf(w, "   Updated: %s\n", n.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if n.Content != "" {
		fmt.Fprintf(w, "\n%s\n", n.Content)
	}
}

func displayTitle(n *note.Note) string {
	if n.Title != "" {
		return n.Title
	}
	return "(untitled)"
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
