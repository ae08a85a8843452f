package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "notes",
	Short:   "Create a note",
	Long: `Create a note. It is saved locally first and uploaded on the next sync.

The due date accepts ISO dates ("2025-11-24"), date-times ("2025-11-24 15:00")
and phrases like "tomorrow 5pm" or "every monday".`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, autoSync)
		defer a.Close()

		content, _ := cmd.Flags().GetString("content")
		label, _ := cmd.Flags().GetString("label")
		dueText, _ := cmd.Flags().GetString("due")

		n := &note.Note{Title: strings.Join(args, " "), Content: content, Label: label}
		due, err := note.ParseDue(dueText, time.Now())
		if err != nil {
			exitf("parsing due date: %v", err)
		}
		n.Due = due

		added, err := a.notes.Add(ctx, n)
		if err != nil {
			exitf("adding note: %v", err)
		}
		a.settle(ctx)

		if current, ok := a.notes.Get(added.ID); ok {
			added = current
		} else if promoted := findPromoted(a.notes.List(), added); promoted != nil {
			added = promoted
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(added.ID)), added.Title)
	},
}

// findPromoted finds the remote copy of a note whose local id was replaced
// during the sync pass.
func findPromoted(all []*note.Note, local *note.Note) *note.Note {
	for _, n := range all {
		if !n.IsLocal() && n.Title == local.Title && n.Content == local.Content {
			return n
		}
	}
	return nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "notes",
	Short:   "List notes",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		label, _ := cmd.Flags().GetString("label")
		asJSON, _ := cmd.Flags().GetBool("json")

		var out []*note.Note
		for _, n := range a.notes.List() {
			if label != "" && !strings.EqualFold(n.Label, label) {
				continue
			}
			out = append(out, n)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		})

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				exitf("encoding notes: %v", err)
			}
			return
		}
		ui.RenderNotes(os.Stdout, out)
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "notes",
	Short:   "Show a note",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		id, err := a.resolveID(args[0])
		if err != nil {
			exitf("%v", err)
		}
		n, _ := a.notes.Get(id)
		ui.RenderNote(os.Stdout, n)
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "notes",
	Short:   "Change a note",
	Long: `Change the fields given as flags. Other fields are left as they are.

Pass --due "" to remove the due date.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, autoSync)
		defer a.Close()

		id, err := a.resolveID(args[0])
		if err != nil {
			exitf("%v", err)
		}

		var patch note.Patch
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			patch.Title = note.String(v)
		}
		if flags.Changed("content") {
			v, _ := flags.GetString("content")
			patch.Content = note.String(v)
		}
		if flags.Changed("label") {
			v, _ := flags.GetString("label")
			patch.Label = note.String(v)
		}
		if flags.Changed("due") {
			v, _ := flags.GetString("due")
			due, err := note.ParseDue(v, time.Now())
			if err != nil {
				exitf("parsing due date: %v", err)
			}
			patch.Due = due
			patch.ClearDue = due == nil
		}
		if patch.IsEmpty() {
			exitf("nothing to change: pass --title, --content, --label or --due")
		}

		updated, err := a.notes.Update(ctx, id, patch)
		if err != nil {
			exitf("updating note: %v", err)
		}
		if updated == nil {
			exitf("note %s no longer exists", id)
		}
		a.settle(ctx)
		fmt.Printf("%s Updated %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(updated.ID)), updated.Title)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	GroupID: "notes",
	Short:   "Delete notes",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, autoSync)
		defer a.Close()

		for _, arg := range args {
			id, err := a.resolveID(arg)
			if err != nil {
				exitf("%v", err)
			}
			if err := a.notes.Delete(ctx, id); err != nil {
				exitf("deleting note %s: %v", id, err)
			}
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.ShortID(id))
		}
		a.settle(ctx)
	},
}

func init() {
	addCmd.Flags().StringP("content", "c", "", "note body (markdown)")
	addCmd.Flags().StringP("label", "l", "", "label")
	addCmd.Flags().StringP("due", "d", "", "due date")

	listCmd.Flags().StringP("label", "l", "", "only notes with this label")
	listCmd.Flags().Bool("json", false, "print JSON")

	editCmd.Flags().StringP("title", "t", "", "new title")
	editCmd.Flags().StringP("content", "c", "", "new body")
	editCmd.Flags().StringP("label", "l", "", "new label (empty removes it)")
	editCmd.Flags().StringP("due", "d", "", "new due date (empty removes it)")

	rootCmd.AddCommand(addCmd, listCmd, showCmd, editCmd, deleteCmd)
}
