package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	return NewStore(nil, filepath.Join(root, "pdfs"), filepath.Join(root, "parsed"), nil)
}

func TestSaveTemp(t *testing.T) {
	s := newLocalStore(t)

	path, err := s.SaveTemp(strings.NewReader("%PDF-1.4 payload"))
	require.NoError(t, err)
	defer os.Remove(path)

	assert.True(t, strings.HasSuffix(path, ".pdf"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 payload", string(data))
}

func TestPromoteSourceLocal(t *testing.T) {
	s := newLocalStore(t)

	src := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-content"), 0o644))

	locator, err := s.PromoteSource(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, IsS3Locator(locator))

	data, err := os.ReadFile(locator)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-content", string(data))

	// The original stays in place; promotion copies.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestPromoteSourceMissingFile(t *testing.T) {
	s := newLocalStore(t)

	_, err := s.PromoteSource(context.Background(), "/nonexistent.pdf")
	assert.Error(t, err)
}

func TestSaveParseResultWritesLocalBackup(t *testing.T) {
	s := newLocalStore(t)

	locator := s.SaveParseResult(context.Background(), "side-1", []byte(`{"pages":[]}`))
	require.NotEmpty(t, locator)

	data, err := os.ReadFile(locator)
	require.NoError(t, err)
	assert.Equal(t, `{"pages":[]}`, string(data))
	assert.True(t, strings.HasSuffix(locator, "side-1.json"))
}

func TestDeleteLocalFile(t *testing.T) {
	s := newLocalStore(t)

	path := filepath.Join(t.TempDir(), "book.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.True(t, s.Delete(context.Background(), path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteAbsentFileIsSuccess(t *testing.T) {
	s := newLocalStore(t)
	assert.True(t, s.Delete(context.Background(), filepath.Join(t.TempDir(), "gone.pdf")))
}

func TestDeleteEmptyLocator(t *testing.T) {
	s := newLocalStore(t)
	assert.False(t, s.Delete(context.Background(), ""))
}

func TestDeleteParseResultRemoteKeepsLocalBackup(t *testing.T) {
	s := newLocalStore(t)

	locator := s.SaveParseResult(context.Background(), "side-2", []byte("{}"))
	require.NotEmpty(t, locator)

	// Without a remote backend this is a no-op success; the backup survives.
	assert.True(t, s.DeleteParseResultRemote(context.Background(), "side-2"))
	_, err := os.Stat(locator)
	assert.NoError(t, err)
}

func TestDeleteParseResultRemovesLocalBackup(t *testing.T) {
	s := newLocalStore(t)

	locator := s.SaveParseResult(context.Background(), "side-3", []byte("{}"))
	require.NotEmpty(t, locator)

	assert.True(t, s.DeleteParseResult(context.Background(), "side-3"))
	_, err := os.Stat(locator)
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToTempLocal(t *testing.T) {
	s := newLocalStore(t)

	src := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-data"), 0o644))

	path, cleanup, err := s.DownloadToTemp(context.Background(), src)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-data", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestS3LocatorParsing(t *testing.T) {
	assert.True(t, IsS3Locator("s3://bucket/key.pdf"))
	assert.False(t, IsS3Locator("/data/pdfs/key.pdf"))

	bucket, key, err := parseS3Locator("s3://books/pdfs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "books", bucket)
	assert.Equal(t, "pdfs/a.pdf", key)

	_, _, err = parseS3Locator("s3://bucketonly")
	assert.Error(t, err)
}
