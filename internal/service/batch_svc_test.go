package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sskim91/bookbrain/internal/errs"
)

func writeBatchDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.7 body"), 0o644))
	}
	return dir
}

func TestIndexDirectoryIndexesAllPDFs(t *testing.T) {
	f := newFixture(t)
	batch := NewBatchIndexer(f.indexer, 2, nil)
	dir := writeBatchDir(t, "a.pdf", "b.pdf", "c.pdf", "notes.txt")

	summary, err := batch.IndexDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Indexed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Outcomes, 3)

	// Results keep name order regardless of worker scheduling.
	assert.Equal(t, "a.pdf", filepath.Base(summary.Outcomes[0].FilePath))
	assert.Equal(t, "c.pdf", filepath.Base(summary.Outcomes[2].FilePath))
}

func TestIndexDirectoryMissing(t *testing.T) {
	f := newFixture(t)
	batch := NewBatchIndexer(f.indexer, 2, nil)

	_, err := batch.IndexDirectory(context.Background(), "/nonexistent-dir", false)
	assert.Error(t, err)
}

func TestIndexFilesOneFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	batch := NewBatchIndexer(f.indexer, 1, nil)
	dir := writeBatchDir(t, "a.pdf", "c.pdf")

	// b.pdf does not exist; the other two must still index.
	files := []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.pdf"),
	}
	summary, err := batch.IndexFiles(context.Background(), files, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Outcomes, 3)
	assert.NotEmpty(t, summary.Outcomes[1].ErrMsg)

	var readErr *errs.ReadError
	assert.ErrorAs(t, summary.Outcomes[1].Err, &readErr)
}

func TestIndexFilesSkipExisting(t *testing.T) {
	f := newFixture(t)
	f.books.existing["a"] = true
	batch := NewBatchIndexer(f.indexer, 2, nil)
	dir := writeBatchDir(t, "a.pdf", "b.pdf")

	summary, err := batch.IndexFiles(context.Background(), []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.pdf"),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, summary.Outcomes[0].Outcome.Skipped)
}

func TestIndexFilesEmpty(t *testing.T) {
	f := newFixture(t)
	batch := NewBatchIndexer(f.indexer, 2, nil)

	summary, err := batch.IndexFiles(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, summary.Outcomes)
}

func TestNewBatchIndexerClampsWorkers(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 1, NewBatchIndexer(f.indexer, 0, nil).workers)
	assert.Equal(t, maxBatchWorkers, NewBatchIndexer(f.indexer, 64, nil).workers)
	assert.Equal(t, 4, NewBatchIndexer(f.indexer, 4, nil).workers)
}
