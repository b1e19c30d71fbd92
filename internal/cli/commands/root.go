// Package commands implements the pipegraph command line
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/cli/config"
	"github.com/conduit-lang/pipegraph/internal/cli/logging"
	"github.com/conduit-lang/pipegraph/internal/cli/ui"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// app holds the state shared by every command of one invocation
type app struct {
	configDir string
	logLevel  string
	noColor   bool

	cfg       *config.Config
	logger    *zap.Logger
	confirmer ui.Confirmer
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{confirmer: ui.SurveyConfirmer{}})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipegraph",
		Short: "Translate planai pipelines between source and graph form",
		Long: color.CyanString(`pipegraph - planai pipeline translator

pipegraph imports planai pipeline modules into an editable graph and
exports graphs back into canonical Python source.

Features:
  • Source to graph import with located diagnostics
  • Canonical export that round-trips unchanged modules
  • Semantic equivalence checks
  • Graphviz rendering
  • Language server and live websocket updates`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configDir, "config-dir", ".", "Directory holding pipegraph.yml and .env")
	flags.StringVar(&a.logLevel, "log-level", "", "Override the configured log level")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newVersionCommand(a))
	rootCmd.AddCommand(newImportCommand(a))
	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newFormatCommand(a))
	rootCmd.AddCommand(newCheckCommand(a))
	rootCmd.AddCommand(newDotCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newLSPCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// setup loads the configuration and builds the logger
func (a *app) setup() error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// engineOptions applies the configured known types and layout
func (a *app) engineOptions() []translate.Option {
	return []translate.Option{
		translate.WithKnownTypes(a.cfg.KnownTypes...),
		translate.WithRenderConfig(&a.cfg.Render),
		translate.WithLogger(a.logger),
	}
}

// translateOptions is engineOptions for one named file
func (a *app) translateOptions(file string) []translate.Option {
	return append([]translate.Option{translate.WithFile(file)}, a.engineOptions()...)
}

func (a *app) colored(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if a.noColor {
		c.DisableColor()
	}
	return c
}

// signalContext is cancelled on interrupt or termination
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the pipegraph version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := a.colored(color.FgCyan, color.Bold)
			valueColor := a.colored(color.FgWhite)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "pipegraph version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// confirm reports whether path may be written, prompting before an
// overwrite unless assumeYes is set
func (a *app) confirm(cmd *cobra.Command, path string, assumeYes bool) (bool, error) {
	ok, err := ui.ConfirmOverwrite(a.confirmer, path, assumeYes)
	if err != nil {
		return false, err
	}
	if !ok {
		a.colored(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "skipped %s\n", path)
	}
	return ok, nil
}

// writeOutput writes data to path, or to stdout when path is empty
func (a *app) writeOutput(cmd *cobra.Command, path string, data []byte, assumeYes bool) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	ok, err := a.confirm(cmd, path, assumeYes)
	if err != nil || !ok {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	ui.WriteSuccess(cmd.OutOrStdout(), "wrote "+path, a.noColor)
	return nil
}
