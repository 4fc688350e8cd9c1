package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxBatchWorkers caps concurrency regardless of configuration; the parse
// service and the embedding provider both rate-limit aggressively.
const maxBatchWorkers = 8

// BatchOutcome is the per-file result of a batch run.
type BatchOutcome struct {
	FilePath string        `json:"file_path"`
	Outcome  *IndexOutcome `json:"outcome,omitempty"`
	Err      error         `json:"-"`
	ErrMsg   string        `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Outcomes []BatchOutcome `json:"outcomes"`
	Indexed  int            `json:"indexed"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
}

// BatchIndexer indexes many PDFs with bounded concurrency. One file failing
// never aborts the rest.
type BatchIndexer struct {
	indexer *Indexer
	workers int
	logger  *zap.Logger
}

func NewBatchIndexer(indexer *Indexer, workers int, logger *zap.Logger) *BatchIndexer {
	if workers <= 0 {
		workers = 1
	}
	if workers > maxBatchWorkers {
		workers = maxBatchWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchIndexer{indexer: indexer, workers: workers, logger: logger}
}

// IndexDirectory indexes every *.pdf directly under dir, in name order.
func (b *BatchIndexer) IndexDirectory(ctx context.Context, dir string, skipExisting bool) (*BatchSummary, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return b.IndexFiles(ctx, files, skipExisting)
}

// IndexFiles indexes the given files with up to the configured number of
// workers. Results keep input order.
func (b *BatchIndexer) IndexFiles(ctx context.Context, files []string, skipExisting bool) (*BatchSummary, error) {
	summary := &BatchSummary{Outcomes: make([]BatchOutcome, len(files))}
	if len(files) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			outcome, err := b.indexer.IndexDocument(gctx, file, "", "", skipExisting)

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes[i] = BatchOutcome{FilePath: file, Outcome: outcome, Err: err}
			switch {
			case err != nil:
				summary.Outcomes[i].ErrMsg = err.Error()
				summary.Failed++
				b.logger.Error("batch: file failed", zap.String("file", file), zap.Error(err))
			case outcome.Skipped:
				summary.Skipped++
			default:
				summary.Indexed++
			}
			// Failures are recorded, never propagated.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	b.logger.Info("batch complete",
		zap.Int("indexed", summary.Indexed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
