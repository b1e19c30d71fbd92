package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <pipeline.py> [other.py]",
		Short: "Validate a module or compare two modules",
		Long: `With one file, import the module and export it again, reporting every
diagnostic raised on the way.

With two files, decide whether both modules describe the same pipeline.
Formatting, declaration order and quoting do not matter; records, stages,
configuration and edges do.

Examples:
  pipegraph check pipeline.py
  pipegraph check pipeline.py edited.py`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.checkOne(cmd, args[0])
			}
			return a.checkEquivalent(cmd, args[0], args[1])
		},
	}
}

func (a *app) checkOne(cmd *cobra.Command, file string) error {
	result, err := a.importFile(cmd, file)
	if err != nil {
		return err
	}
	if _, err := translate.Export(result.Graph, a.translateOptions(file)...); err != nil {
		ui.WriteFailure(cmd.ErrOrStderr(), file, err, a.noColor)
		return fmt.Errorf("%s: export failed", file)
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s: %d stages, %d edges, %d warnings",
		file, len(result.Graph.Stages()), len(result.Graph.Edges()), len(result.Diagnostics)), a.noColor)
	return nil
}

func (a *app) checkEquivalent(cmd *cobra.Command, first, second string) error {
	left, err := os.ReadFile(first)
	if err != nil {
		return err
	}
	right, err := os.ReadFile(second)
	if err != nil {
		return err
	}

	result, err := translate.Equivalent(string(left), string(right), a.translateOptions("")...)
	if err != nil {
		ui.WriteFailure(cmd.ErrOrStderr(), "", err, a.noColor)
		return fmt.Errorf("comparison failed")
	}
	if result.Equivalent {
		ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s and %s are equivalent", first, second), a.noColor)
		return nil
	}

	a.colored(color.FgRed, color.Bold).Fprintf(cmd.OutOrStdout(), "✗ %s and %s differ\n\n", first, second)
	table := ui.NewTable(cmd.OutOrStdout(), []string{"KIND", "NAME", "DIFFERENCE"}, a.noColor)
	for _, d := range result.Differences {
		table.AddRow(d.Kind, d.Name, d.Message)
	}
	table.Render()
	return fmt.Errorf("%d differences", len(result.Differences))
}
