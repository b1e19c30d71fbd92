package commands

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/watch"
)

// defaultOutDir is created inside the watched directory. Hidden
// directories are never watched, so snapshots do not retrigger exports.
const defaultOutDir = ".pipegraph"

type watchFlags struct {
	out      string
	compress bool
}

func (f *watchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.out, "out", "", "Snapshot directory (default <dir>/"+defaultOutDir+")")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "Write gzip compressed snapshots")
}

// newExporter builds an exporter for root with the configured patterns
func (a *app) newExporter(root string, flags *watchFlags) *watch.Exporter {
	out := flags.out
	if out == "" {
		out = filepath.Join(root, defaultOutDir)
	}
	e := watch.NewExporter(root, out, a.logger, a.engineOptions()...)
	if len(a.cfg.Watch.Patterns) > 0 {
		e.Patterns = a.cfg.Watch.Patterns
	}
	e.Compress = flags.compress
	return e
}

func newWatchCommand(a *app) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-export pipeline modules into snapshots as they change",
		Long: `Import every pipeline module below a directory into a graph snapshot,
then keep the snapshots current as modules are saved.

Snapshots mirror the directory layout with a .json extension.

Examples:
  pipegraph watch
  pipegraph watch pipelines --out graphs
  pipegraph watch --compress`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			e := a.newExporter(root, flags)
			red := a.colored(color.FgRed, color.Bold)
			e.OnExport = func(u watch.Update) {
				if u.Failed() {
					red.Fprintf(cmd.ErrOrStderr(), "✗ %s: %s\n", u.File, u.Error)
					ui.WriteDiagnostics(cmd.ErrOrStderr(), u.Diagnostics, a.noColor)
					return
				}
				ui.WriteDiagnostics(cmd.ErrOrStderr(), u.Diagnostics, a.noColor)
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s -> %s", u.File, u.Output), a.noColor)
			}

			a.colored(color.FgCyan, color.Bold).Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", root)
			return e.Run(ctx)
		},
	}

	flags.register(cmd)
	return cmd
}
