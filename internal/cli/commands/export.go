package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/compiler/snapshot"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		output    string
		entry     string
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "export <snapshot.json>",
		Short: "Export a graph snapshot into a pipeline module",
		Long: `Export a graph snapshot written by "pipegraph import" back into
canonical planai source.

Examples:
  pipegraph export pipeline.json
  pipegraph export pipeline.json -o pipeline.py
  pipegraph export pipeline.json --entry Summarize`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			g, err := snapshot.ReadFile(file)
			if err != nil {
				return err
			}

			if entry != "" {
				st := g.StageByName(entry)
				if st == nil {
					names := make([]string, 0, len(g.Stages()))
					for _, s := range g.Stages() {
						names = append(names, s.Name)
					}
					fmt.Fprint(cmd.ErrOrStderr(), ui.StageNotFoundError(entry, names, a.noColor))
					return fmt.Errorf("unknown stage %s", entry)
				}
				if err := g.SetEntry(st.ID); err != nil {
					return err
				}
			}

			code, err := translate.Export(g, a.translateOptions(output)...)
			if err != nil {
				ui.WriteFailure(cmd.ErrOrStderr(), file, err, a.noColor)
				return fmt.Errorf("%s: export failed", file)
			}
			return a.writeOutput(cmd, output, []byte(code), assumeYes)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the module to a file")
	cmd.Flags().StringVar(&entry, "entry", "", "Designate the entry stage by name")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Overwrite existing files without asking")
	return cmd
}
