package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/snapshot"
	"github.com/conduit-lang/pipegraph/internal/compiler/visualize"
)

func newDotCommand(a *app) *cobra.Command {
	var (
		output    string
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "dot <pipeline.py|snapshot.json>",
		Short: "Render a pipeline as a Graphviz digraph",
		Long: `Render a pipeline module or graph snapshot in the Graphviz DOT language.

Examples:
  pipegraph dot pipeline.py | dot -Tsvg > pipeline.svg
  pipegraph dot pipeline.json -o pipeline.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			var g *model.Graph
			if filepath.Ext(file) == ".py" {
				result, err := a.importFile(cmd, file)
				if err != nil {
					return err
				}
				g = result.Graph
			} else {
				decoded, err := snapshot.ReadFile(file)
				if err != nil {
					return err
				}
				g = decoded
			}

			text, err := visualize.DOT(g)
			if err != nil {
				return err
			}
			return a.writeOutput(cmd, output, []byte(text), assumeYes)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the digraph to a file")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Overwrite existing files without asking")
	return cmd
}
