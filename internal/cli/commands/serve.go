package commands

import (
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/server"
	"github.com/conduit-lang/pipegraph/internal/watch"
)

// GraphUpdated is the message type pushed to rooms after a re-export
const GraphUpdated = "graph.updated"

func newServeCommand(a *app) *cobra.Command {
	var (
		addr     string
		watchDir string
	)
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation engine over HTTP and websockets",
		Long: `Start the translation server.

Endpoints:
  GET  /healthz          liveness and connected client count
  POST /api/{operation}  import, export, format, equivalent or dot
  GET  /ws               the same operations over a websocket

With --watch, modules below the directory are re-exported as they change
and websocket clients subscribed to a module's path receive a
"graph.updated" message carrying the new snapshot.

Examples:
  pipegraph serve
  pipegraph serve --addr :8080
  pipegraph serve --watch pipelines`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			if addr == "" {
				addr = a.cfg.Server.Addr()
			}
			srv := server.New(ctx, server.Options{
				KnownTypes: a.cfg.KnownTypes,
				Render:     &a.cfg.Render,
				Logger:     a.logger,
			})

			watchErr := make(chan error, 1)
			if watchDir != "" {
				e := a.newExporter(watchDir, flags)
				e.OnExport = func(u watch.Update) {
					srv.Publish(roomFor(watchDir, u.File), GraphUpdated, u)
				}
				go func() {
					if err := e.Run(ctx); err != nil {
						a.logger.Error("watcher stopped", zap.Error(err))
						watchErr <- err
						cancel()
					}
				}()
			}

			a.colored(color.FgCyan, color.Bold).Fprintf(cmd.OutOrStdout(), "Serving on %s (Ctrl+C to stop)\n", addr)
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return err
			}
			select {
			case err := <-watchErr:
				return err
			default:
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.host and server.port)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Re-export modules below this directory and publish updates")
	flags.register(cmd)
	return cmd
}

// roomFor names a module's room by its slash-separated path below root
func roomFor(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}
