package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lexvoss/internal/store"
)

// Result summarises one import pass.
type Result struct {
	WordsImported    int `json:"words_imported"`
	ClustersImported int `json:"clusters_imported"`
	FilesProcessed   int `json:"files_processed"`
}

// Importer synchronises markdown vocabulary files with the store.
type Importer struct {
	store store.Store
	files []string
	log   *slog.Logger
}

// New builds an Importer over the configured vocab files.
func New(st store.Store, files []string, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: st, files: files, log: log}
}

// isDistinctions classifies a vocab file by name: distinction files
// carry clusters, everything else carries plain word tables.
func isDistinctions(path string) bool {
	return strings.Contains(path, "distinctions")
}

// SyncChanged re-imports files whose mtime moved since the last import.
// Called at startup and before each session start so edits to the source
// material land without a restart.
func (imp *Importer) SyncChanged(ctx context.Context) error {
	for _, path := range imp.files {
		info, err := os.Stat(path)
		if err != nil {
			imp.log.Warn("vocab file missing", "path", path, "error", err)
			continue
		}
		current := info.ModTime().UnixNano()
		stored, err := imp.store.FileMtime(ctx, path)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("importer: stored mtime for %q: %w", path, err)
		}
		if err == nil && stored == current {
			continue
		}
		imp.log.Info("vocab file changed, re-importing", "path", path)
		if _, err := imp.importFile(ctx, path); err != nil {
			return err
		}
		if err := imp.store.SetFileMtime(ctx, path, current); err != nil {
			return fmt.Errorf("importer: record mtime for %q: %w", path, err)
		}
	}
	return nil
}

// ImportAll re-imports every configured file unconditionally.
func (imp *Importer) ImportAll(ctx context.Context) (*Result, error) {
	total := &Result{}
	for _, path := range imp.files {
		r, err := imp.importFile(ctx, path)
		if err != nil {
			return nil, err
		}
		total.WordsImported += r.WordsImported
		total.ClustersImported += r.ClustersImported
		total.FilesProcessed++

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("importer: stat %q: %w", path, err)
		}
		if err := imp.store.SetFileMtime(ctx, path, info.ModTime().UnixNano()); err != nil {
			return nil, fmt.Errorf("importer: record mtime for %q: %w", path, err)
		}
	}
	return total, nil
}

// importFile parses one file and replaces its rows in the store.
func (imp *Importer) importFile(ctx context.Context, path string) (*Result, error) {
	r := &Result{FilesProcessed: 1}
	if isDistinctions(path) {
		clusters, err := ParseDistinctionsFile(path)
		if err != nil {
			return nil, fmt.Errorf("importer: parse %q: %w", path, err)
		}
		n, err := imp.store.ImportClusters(ctx, clusters)
		if err != nil {
			return nil, fmt.Errorf("importer: import clusters from %q: %w", path, err)
		}
		r.ClustersImported = n
		imp.log.Info("clusters imported", "path", path, "count", n)
		return r, nil
	}

	words, err := ParseVocabularyFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: parse %q: %w", path, err)
	}
	n, err := imp.store.ImportWords(ctx, words)
	if err != nil {
		return nil, fmt.Errorf("importer: import words from %q: %w", path, err)
	}
	r.WordsImported = n
	imp.log.Info("words imported", "path", path, "count", n)
	return r, nil
}
