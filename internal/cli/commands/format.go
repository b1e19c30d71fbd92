package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
	"github.com/conduit-lang/pipegraph/internal/format"
	"github.com/conduit-lang/pipegraph/internal/watch"
)

type formatFlags struct {
	write   bool
	check   bool
	unified bool
	config  string
}

func newFormatCommand(a *app) *cobra.Command {
	flags := &formatFlags{}

	cmd := &cobra.Command{
		Use:   "format [files...]",
		Short: "Rewrite pipeline modules into canonical layout",
		Long: `Format pipeline modules by importing them and exporting them again.

By default, shows a diff preview of what would change without modifying files.
Use --write to apply formatting changes, or --check to verify formatting.

Examples:
  pipegraph format                    # Show diff for all .py files
  pipegraph format --write            # Format and save all files
  pipegraph format --check            # Exit with error if not formatted
  pipegraph format pipeline.py        # Format a specific file
  pipegraph format --unified src      # Print a plain unified diff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFormat(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.write, "write", "w", false, "Write formatted output to files")
	cmd.Flags().BoolVarP(&flags.check, "check", "c", false, "Check if files are formatted (exit 1 if not)")
	cmd.Flags().BoolVarP(&flags.unified, "unified", "u", false, "Print an uncolored unified diff")
	cmd.Flags().StringVar(&flags.config, "config", format.ConfigFile, "Path to formatting config file")

	return cmd
}

// renderConfig prefers the format file over the render section of
// pipegraph.yml
func (a *app) renderConfig(path string) (*codegen.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return format.LoadConfig(path)
	}
	render := a.cfg.Render
	return &render, nil
}

func (a *app) runFormat(cmd *cobra.Command, args []string, flags *formatFlags) error {
	config, err := a.renderConfig(flags.config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	files, err := findSourceFiles(args)
	if err != nil {
		return fmt.Errorf("failed to find files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no .py files found")
	}

	hasChanges := false
	errorCount := 0

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	titleColor := a.colored(color.FgCyan, color.Bold)
	successColor := a.colored(color.FgGreen)
	errorColor := a.colored(color.FgRed, color.Bold)

	formatter := format.New(config, a.cfg.KnownTypes, a.logger)
	for _, file := range files {
		original, err := os.ReadFile(file)
		if err != nil {
			errorColor.Fprintf(errOut, "Error reading %s: %v\n", file, err)
			errorCount++
			continue
		}

		formatted, result, err := formatter.Format(file, string(original))
		if err != nil {
			ui.WriteFailure(errOut, file, err, a.noColor)
			errorCount++
			continue
		}
		ui.WriteDiagnostics(errOut, result.Diagnostics, a.noColor)

		diff := format.Diff(string(original), formatted)
		if !diff.Changed {
			if !flags.check {
				successColor.Fprintf(out, "✓ %s (no changes)\n", file)
			}
			continue
		}

		hasChanges = true

		switch {
		case flags.check:
			errorColor.Fprintf(errOut, "✗ %s needs formatting\n", file)
		case flags.write:
			if err := os.WriteFile(file, []byte(formatted), 0o644); err != nil {
				errorColor.Fprintf(errOut, "Error writing %s: %v\n", file, err)
				errorCount++
				continue
			}
			successColor.Fprintf(out, "✓ %s formatted\n", file)
		case flags.unified:
			fmt.Fprint(out, diff.UnifiedDiff(file))
		default:
			titleColor.Fprintf(out, "\n=== %s ===\n", file)
			fmt.Fprintln(out, diff.String())
			fmt.Fprintf(out, "\n%s\n", diff.Stats())
		}
	}

	if !flags.write && !flags.check && hasChanges {
		fmt.Fprintln(out)
		titleColor.Fprintf(out, "Run 'pipegraph format --write' to apply changes\n")
	}

	if flags.check && hasChanges {
		return fmt.Errorf("files need formatting")
	}
	if errorCount > 0 {
		return fmt.Errorf("%d files had errors", errorCount)
	}
	return nil
}

// findSourceFiles expands directories into the modules below them. Named
// files are kept whatever their extension. Duplicates are dropped.
func findSourceFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	seen := make(map[string]bool)
	unique := []string{}
	for _, path := range paths {
		files, err := watch.FindFiles(path, watch.DefaultPatterns)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if !seen[file] {
				seen[file] = true
				unique = append(unique, file)
			}
		}
	}
	return unique, nil
}
