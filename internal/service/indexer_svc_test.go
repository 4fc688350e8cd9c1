package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sskim91/bookbrain/internal/chunker"
	"github.com/sskim91/bookbrain/internal/embedder"
	"github.com/sskim91/bookbrain/internal/errs"
	"github.com/sskim91/bookbrain/internal/model"
	"github.com/sskim91/bookbrain/internal/parser"
)

// --- fakes ---

type fakeParser struct {
	mu     sync.Mutex
	calls  int
	result *parser.Result
	err    error
}

func (f *fakeParser) Parse(ctx context.Context, filePath, language string) (*parser.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	err    error
	vector []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, chunks []chunker.Chunk) (*embedder.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := &embedder.Result{ModelVersion: "test-model-v1", TotalTokens: len(chunks) * 10}
	for _, c := range chunks {
		res.EmbeddedChunks = append(res.EmbeddedChunks, embedder.EmbeddedChunk{
			Chunk:  c,
			Vector: f.vector,
		})
	}
	return res, nil
}

type fakeStore struct {
	mu                sync.Mutex
	promoted          []string
	promoteErr        error
	savedSideIDs      []string
	deletedLocators   []string
	deletedSideRemote []string
	deletedSideFull   []string
}

func (f *fakeStore) PromoteSource(ctx context.Context, localPath string) (string, error) {
	if f.promoteErr != nil {
		return "", f.promoteErr
	}
	locator := "/stored/" + filepath.Base(localPath)
	f.mu.Lock()
	f.promoted = append(f.promoted, locator)
	f.mu.Unlock()
	return locator, nil
}

func (f *fakeStore) SaveParseResult(ctx context.Context, id string, raw []byte) string {
	f.mu.Lock()
	f.savedSideIDs = append(f.savedSideIDs, id)
	f.mu.Unlock()
	return "/parsed/" + id + ".json"
}

func (f *fakeStore) Delete(ctx context.Context, locator string) bool {
	f.mu.Lock()
	f.deletedLocators = append(f.deletedLocators, locator)
	f.mu.Unlock()
	return true
}

func (f *fakeStore) DeleteParseResult(ctx context.Context, id string) bool {
	f.mu.Lock()
	f.deletedSideFull = append(f.deletedSideFull, id)
	f.mu.Unlock()
	return true
}

func (f *fakeStore) DeleteParseResultRemote(ctx context.Context, id string) bool {
	f.mu.Lock()
	f.deletedSideRemote = append(f.deletedSideRemote, id)
	f.mu.Unlock()
	return true
}

type fakeBooks struct {
	mu         sync.Mutex
	existing   map[string]bool
	createErr  error
	stampErr   error
	created    []*model.Book
	deletedIDs []uuid.UUID
	stamped    []uuid.UUID
}

func (f *fakeBooks) Create(ctx context.Context, book *model.Book) error {
	if f.createErr != nil {
		return f.createErr
	}
	book.ID = uuid.New()
	f.mu.Lock()
	f.created = append(f.created, book)
	f.mu.Unlock()
	return nil
}

func (f *fakeBooks) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	return f.existing[title], nil
}

func (f *fakeBooks) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	f.deletedIDs = append(f.deletedIDs, id)
	f.mu.Unlock()
	return true, nil
}

func (f *fakeBooks) StampEmbedding(ctx context.Context, id uuid.UUID, embeddingModel string, totalPages int) error {
	if f.stampErr != nil {
		return f.stampErr
	}
	f.mu.Lock()
	f.stamped = append(f.stamped, id)
	f.mu.Unlock()
	return nil
}

type fakeVectors struct {
	mu         sync.Mutex
	storeErr   error
	stored     []model.ChunkEmbedding
	deletedFor []uuid.UUID
}

func (f *fakeVectors) StoreChunks(ctx context.Context, records []model.ChunkEmbedding) (int, error) {
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	f.mu.Lock()
	f.stored = append(f.stored, records...)
	f.mu.Unlock()
	return len(records), nil
}

func (f *fakeVectors) DeleteByBookID(ctx context.Context, bookID uuid.UUID) error {
	f.mu.Lock()
	f.deletedFor = append(f.deletedFor, bookID)
	f.mu.Unlock()
	return nil
}

// --- helpers ---

type fixture struct {
	parser  *fakeParser
	emb     *fakeEmbedder
	store   *fakeStore
	books   *fakeBooks
	vectors *fakeVectors
	indexer *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		parser: &fakeParser{result: &parser.Result{
			Document: parser.ParsedDocument{
				Pages: []parser.ParsedPage{
					{PageNumber: 1, Content: "alpha beta gamma"},
					{PageNumber: 2, Content: "delta epsilon zeta"},
				},
				TotalPages: 2,
			},
			Raw: []byte(`{"pages":[]}`),
		}},
		emb:     &fakeEmbedder{vector: []float32{0.1, 0.2}},
		store:   &fakeStore{},
		books:   &fakeBooks{existing: map[string]bool{}},
		vectors: &fakeVectors{},
	}
	f.indexer = NewIndexer(
		f.parser, chunker.NewTokenChunker(1000, 100), f.emb,
		f.store, f.books, f.vectors, "ko", nil,
	)
	return f
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 body"), 0o644))
	return path
}

// --- tests ---

func TestIndexDocumentSuccess(t *testing.T) {
	f := newFixture(t)
	path := writePDF(t, "golang.pdf")

	outcome, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "R. Pike", false)
	require.NoError(t, err)

	assert.Equal(t, StatusIndexed, outcome.Status)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, "Go Book", outcome.Title)
	assert.Equal(t, 1, outcome.ChunksCount) // 6 tokens fit in one window
	assert.Equal(t, "test-model-v1", outcome.ModelVersion)
	require.NotNil(t, outcome.BookID)

	require.Len(t, f.books.created, 1)
	book := f.books.created[0]
	assert.Equal(t, "R. Pike", book.Author)
	assert.NotEmpty(t, book.Metadata["parse_result_id"])
	assert.Equal(t, book.Metadata["parse_result_id"], f.store.savedSideIDs[0])

	require.Len(t, f.vectors.stored, 1)
	assert.Equal(t, book.ID, f.vectors.stored[0].BookID)
	assert.Equal(t, "test-model-v1", f.vectors.stored[0].ModelVersion)
	assert.Equal(t, []uuid.UUID{book.ID}, f.books.stamped)
}

func TestIndexDocumentTitleDefaultsToFileName(t *testing.T) {
	f := newFixture(t)
	path := writePDF(t, "effective-go.pdf")

	outcome, err := f.indexer.IndexDocument(context.Background(), path, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "effective-go", outcome.Title)
}

func TestIndexDocumentInvalidExtension(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-"), 0o644))

	_, err := f.indexer.IndexDocument(context.Background(), path, "", "", false)

	var invalid *errs.InvalidFormatError
	require.ErrorAs(t, err, &invalid)
	// Nothing committed, nothing to undo.
	assert.Equal(t, 0, f.parser.calls)
	assert.Empty(t, f.store.deletedLocators)
	assert.Empty(t, f.books.deletedIDs)
}

func TestIndexDocumentMissingMagicBytes(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o644))

	_, err := f.indexer.IndexDocument(context.Background(), path, "", "", false)

	var invalid *errs.InvalidFormatError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, f.parser.calls)
}

func TestIndexDocumentSkipExistingNeverParses(t *testing.T) {
	f := newFixture(t)
	f.books.existing["Go Book"] = true
	path := writePDF(t, "golang.pdf")

	outcome, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", true)
	require.NoError(t, err)

	assert.True(t, outcome.Skipped)
	assert.Equal(t, StatusSkipped, outcome.Status)
	// The expensive parse call must not happen for a known duplicate.
	assert.Equal(t, 0, f.parser.calls)
	assert.Equal(t, 0, f.emb.calls)
}

func TestIndexDocumentDuplicateRaceAbsorbedWhenSkipping(t *testing.T) {
	f := newFixture(t)
	f.books.createErr = &errs.DuplicateError{Title: "Go Book"}
	path := writePDF(t, "golang.pdf")

	outcome, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", true)
	require.NoError(t, err)

	assert.True(t, outcome.Skipped)
	// The losing run cleans up its own promoted copy and side record.
	assert.NotEmpty(t, f.store.deletedLocators)
	assert.NotEmpty(t, f.store.deletedSideFull)
	// No book was created, so no book-level rollback.
	assert.Empty(t, f.books.deletedIDs)
}

func TestIndexDocumentDuplicateWithoutSkipIsConflict(t *testing.T) {
	f := newFixture(t)
	f.books.createErr = &errs.DuplicateError{Title: "Go Book"}
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", false)

	var dup *errs.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.NotEmpty(t, f.store.deletedLocators)
}

func TestIndexDocumentParseFailureNoCompensation(t *testing.T) {
	f := newFixture(t)
	f.parser.err = &errs.APIError{Message: "parse job failed", State: "FAILED"}
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "", "", false)

	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, f.store.deletedLocators)
	assert.Empty(t, f.books.deletedIDs)
}

func TestIndexDocumentEmbedFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.emb.err = &errs.EmbeddingError{Message: "rate limit exceeded after 3 retries", Retries: 3}
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", false)

	var embErr *errs.EmbeddingError
	require.ErrorAs(t, err, &embErr)

	// Reverse order: vectors, book record, remote parse result, stored file.
	require.Len(t, f.books.created, 1)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.vectors.deletedFor)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.books.deletedIDs)
	assert.Equal(t, f.store.savedSideIDs, f.store.deletedSideRemote)
	assert.Equal(t, f.store.promoted, f.store.deletedLocators)
	// The local parse backup is never part of rollback.
	assert.Empty(t, f.store.deletedSideFull)
}

func TestIndexDocumentVectorStoreFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.vectors.storeErr = errors.New("connection reset")
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", false)

	var idxErr *errs.IndexingError
	require.ErrorAs(t, err, &idxErr)
	require.Len(t, f.books.created, 1)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.books.deletedIDs)
	assert.Empty(t, f.store.deletedSideFull)
}

func TestIndexDocumentStampFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.books.stampErr = errors.New("connection reset")
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", false)

	var idxErr *errs.IndexingError
	require.ErrorAs(t, err, &idxErr)
	require.Len(t, f.books.created, 1)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.vectors.deletedFor)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.books.deletedIDs)
}

func TestIndexDocumentPromoteFailureCleansSideRecord(t *testing.T) {
	f := newFixture(t)
	f.store.promoteErr = errors.New("disk full")
	path := writePDF(t, "golang.pdf")

	_, err := f.indexer.IndexDocument(context.Background(), path, "Go Book", "", false)

	var idxErr *errs.IndexingError
	require.ErrorAs(t, err, &idxErr)
	assert.Empty(t, f.books.created)
	assert.Equal(t, f.store.savedSideIDs, f.store.deletedSideRemote)
}

func TestIndexDocumentZeroChunksStillIndexed(t *testing.T) {
	f := newFixture(t)
	f.parser.result.Document.Pages = []parser.ParsedPage{{PageNumber: 1, Content: "   "}}
	path := writePDF(t, "blank.pdf")

	outcome, err := f.indexer.IndexDocument(context.Background(), path, "Blank", "", false)
	require.NoError(t, err)

	assert.Equal(t, StatusIndexed, outcome.Status)
	assert.Equal(t, 0, outcome.ChunksCount)
	// No provider or vector-store calls for an empty document.
	assert.Equal(t, 0, f.emb.calls)
	assert.Empty(t, f.vectors.stored)
}

func TestIndexDocumentCompensationIgnoresCancellation(t *testing.T) {
	f := newFixture(t)
	f.emb.err = errors.New("context canceled")
	path := writePDF(t, "golang.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Validation reads the file before any context use, and the fakes ignore
	// ctx, so the pipeline reaches the embed failure with a canceled context.
	_, err := f.indexer.IndexDocument(ctx, path, "Go Book", "", false)
	require.Error(t, err)
	require.Len(t, f.books.created, 1)
	assert.Equal(t, []uuid.UUID{f.books.created[0].ID}, f.books.deletedIDs)
}
