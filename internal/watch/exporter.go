package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/snapshot"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

// Update reports one re-export. Snapshot is nil when the import failed.
type Update struct {
	File        string                `json:"file"`
	Output      string                `json:"output,omitempty"`
	Snapshot    *snapshot.Snapshot    `json:"snapshot,omitempty"`
	Diagnostics errors.DiagnosticList `json:"diagnostics"`
	Error       string                `json:"error,omitempty"`
}

// Failed reports whether the module could not be imported or written
func (u Update) Failed() bool {
	return u.Error != ""
}

// Exporter imports pipeline modules below Root and writes their snapshots
// below OutDir, mirroring the directory layout.
type Exporter struct {
	Root     string
	OutDir   string
	Patterns []string
	Ignored  []string
	// Compress writes gzip snapshots with a .json.gz extension
	Compress bool
	Options  []translate.Option
	// OnExport is called after each file is processed, failures included
	OnExport func(Update)

	logger *zap.Logger
}

// NewExporter creates an exporter with the default patterns
func NewExporter(root, outDir string, logger *zap.Logger, opts ...translate.Option) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		Root:     root,
		OutDir:   outDir,
		Patterns: DefaultPatterns,
		Options:  opts,
		logger:   logger.Named("export"),
	}
}

// SnapshotPath returns where the snapshot of file is written
func (e *Exporter) SnapshotPath(file string) string {
	rel, err := filepath.Rel(e.Root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	ext := ".json"
	if e.Compress {
		ext = ".json.gz"
	}
	return filepath.Join(e.OutDir, strings.TrimSuffix(rel, filepath.Ext(rel))+ext)
}

// Export re-exports a single module
func (e *Exporter) Export(file string) Update {
	update := e.export(file)
	if update.Failed() {
		e.logger.Warn("export failed", zap.String("file", file), zap.String("error", update.Error))
	} else {
		e.logger.Info("exported",
			zap.String("file", file),
			zap.String("output", update.Output),
			zap.Int("warnings", len(update.Diagnostics)),
		)
	}
	if e.OnExport != nil {
		e.OnExport(update)
	}
	return update
}

func (e *Exporter) export(file string) Update {
	update := Update{File: file, Diagnostics: errors.DiagnosticList{}}

	source, err := os.ReadFile(file)
	if err != nil {
		update.Error = err.Error()
		return update
	}

	opts := append([]translate.Option{translate.WithFile(file)}, e.Options...)
	result, err := translate.Import(string(source), opts...)
	if err != nil {
		update.Error = err.Error()
		update.Diagnostics = errors.DiagnosticList{errors.ToDiagnostic(err)}
		return update
	}
	if result.Diagnostics != nil {
		update.Diagnostics = result.Diagnostics
	}

	output := e.SnapshotPath(file)
	if err := snapshot.WriteFile(result.Graph, output); err != nil {
		update.Error = err.Error()
		return update
	}
	update.Output = output
	update.Snapshot = snapshot.Encode(result.Graph)
	return update
}

// ExportAll re-exports files in order
func (e *Exporter) ExportAll(files []string) []Update {
	updates := make([]Update, 0, len(files))
	for _, file := range files {
		updates = append(updates, e.Export(file))
	}
	return updates
}

// Sync re-exports every module below Root
func (e *Exporter) Sync() ([]Update, error) {
	files, err := FindFiles(e.Root, e.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to find modules in %s: %w", e.Root, err)
	}
	var kept []string
	for _, file := range files {
		if !e.insideOutDir(file) {
			kept = append(kept, file)
		}
	}
	return e.ExportAll(kept), nil
}

func (e *Exporter) insideOutDir(file string) bool {
	rel, err := filepath.Rel(e.OutDir, file)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// Run syncs once, then re-exports modules as they change until ctx is done
func (e *Exporter) Run(ctx context.Context) error {
	if _, err := e.Sync(); err != nil {
		return err
	}

	fw, err := NewFileWatcher([]string{e.Root}, e.Patterns, e.Ignored, func(files []string) error {
		var changed []string
		for _, file := range files {
			if !e.insideOutDir(file) {
				changed = append(changed, file)
			}
		}
		e.ExportAll(changed)
		return nil
	}, e.logger)
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		fw.Stop()
		return err
	}

	<-ctx.Done()
	return fw.Stop()
}
