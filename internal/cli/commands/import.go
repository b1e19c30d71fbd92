package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/snapshot"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

func newImportCommand(a *app) *cobra.Command {
	var (
		output    string
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "import <pipeline.py>",
		Short: "Import a pipeline module into a graph snapshot",
		Long: `Import a planai pipeline module and emit its graph as a JSON snapshot.

Without --output the snapshot is printed to stdout. With --output it is
written to the file (gzip compressed when the name ends in .gz) and a
summary of the imported nodes is printed.

Examples:
  pipegraph import pipeline.py
  pipegraph import pipeline.py -o pipeline.json
  pipegraph import pipeline.py -o pipeline.json.gz --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			result, err := a.importFile(cmd, file)
			if err != nil {
				return err
			}

			if output == "" {
				data, err := snapshot.Marshal(result.Graph)
				if err != nil {
					return err
				}
				return a.writeOutput(cmd, "", append(data, '\n'), true)
			}

			ok, err := a.confirm(cmd, output, assumeYes)
			if err != nil || !ok {
				return err
			}
			if err := snapshot.WriteFile(result.Graph, output); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("imported %s into %s", file, output), a.noColor)
			a.writeSummary(cmd, result.Graph)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the snapshot to a file")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Overwrite existing files without asking")
	return cmd
}

// importFile reads and imports a module, printing its diagnostics
func (a *app) importFile(cmd *cobra.Command, file string) (*translate.Result, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	result, err := translate.Import(string(source), a.translateOptions(file)...)
	if err != nil {
		ui.WriteFailure(cmd.ErrOrStderr(), file, err, a.noColor)
		return nil, fmt.Errorf("%s: import failed", file)
	}
	ui.WriteDiagnostics(cmd.ErrOrStderr(), result.Diagnostics, a.noColor)
	return result, nil
}

// writeSummary prints one row per node followed by the edge count
func (a *app) writeSummary(cmd *cobra.Command, g *model.Graph) {
	table := ui.NewTable(cmd.OutOrStdout(), []string{"NODE", "KIND", "DETAIL"}, a.noColor)
	for _, rec := range g.Registry.Records() {
		table.AddRow(rec.Name, "record", strconv.Itoa(len(rec.Fields))+" fields")
	}
	for _, st := range g.Stages() {
		name := st.Name
		if st.ID == g.Entry() {
			name += " (entry)"
		}
		table.AddRow(name, st.Variant.String(), st.InputType+" -> "+strings.Join(st.OutputTypes, ", "))
	}
	for _, p := range g.Probes() {
		direction := "input"
		if p.Output {
			direction = "output"
		}
		table.AddRow(p.Name, "probe", direction+": "+p.TypeName)
	}
	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d edges\n", len(g.Edges()))
}
