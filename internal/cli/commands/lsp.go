package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-lang/pipegraph/internal/lsp"
)

func newLSPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the pipegraph Language Server Protocol (LSP) server.

The server provides editor integration for pipeline modules:
  • Diagnostics from import and export
  • Document symbols for records, stages and probes
  • Whole-document formatting

The LSP server communicates via JSON-RPC over stdin/stdout.
It is typically started automatically by your editor/IDE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			server := lsp.NewServer(lsp.Options{
				KnownTypes: a.cfg.KnownTypes,
				Render:     &a.cfg.Render,
				Logger:     a.logger,
			})
			return server.Run(ctx)
		},
	}
}
