package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tickit-notes/tickit/internal/migrate"
	"github.com/tickit-notes/tickit/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "maint",
	Short:   "Write all notes to a file",
	Long: `Write all notes to a JSON Lines, YAML or TOML file. The format follows
the file extension unless --format is given. An existing file is replaced.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		format, err := formatFlag(cmd)
		if err != nil {
			exitf("%v", err)
		}

		n, err := migrate.Export(a.notes.List(), migrate.ExportOptions{To: args[0], Format: format})
		if err != nil {
			exitf("exporting notes: %v", err)
		}
		fmt.Printf("%s Exported %d notes to %s\n", ui.RenderPass("✓"), n, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "maint",
	Short:   "Add notes from an export file",
	Long: `Add every record in a JSON Lines, YAML or TOML file as a new note.

Records never overwrite existing notes, so importing the same file twice
creates duplicates. Use --dry-run to check a file first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, autoSync)
		defer a.Close()

		format, err := formatFlag(cmd)
		if err != nil {
			exitf("%v", err)
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := migrate.Import(ctx, a.notes, migrate.ImportOptions{
			From:   args[0],
			Format: format,
			DryRun: dryRun,
		})
		if err != nil {
			exitf("importing notes: %v", err)
		}
		if !dryRun {
			a.settle(ctx)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d records\n", ui.RenderPass("✓"), verb, result.Imported, result.Read)
		if result.Skipped > 0 {
			fmt.Printf("   Skipped %d empty records\n", result.Skipped)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "   %s %s\n", ui.RenderFail("✗"), e)
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func formatFlag(cmd *cobra.Command) (migrate.Format, error) {
	s, _ := cmd.Flags().GetString("format")
	if s == "" {
		return "", nil
	}
	return migrate.ParseFormat(s)
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "jsonl, yaml or toml")
	importCmd.Flags().StringP("format", "f", "", "jsonl, yaml or toml")
	importCmd.Flags().Bool("dry-run", false, "check the file without adding notes")

	rootCmd.AddCommand(exportCmd, importCmd)
}
