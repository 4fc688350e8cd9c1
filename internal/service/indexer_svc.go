package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/chunker"
	"github.com/sskim91/bookbrain/internal/embedder"
	"github.com/sskim91/bookbrain/internal/errs"
	"github.com/sskim91/bookbrain/internal/model"
	"github.com/sskim91/bookbrain/internal/parser"
)

// PDF file signature.
var pdfMagic = []byte("%PDF-")

// DocumentParser submits a PDF to the parse service and blocks until done.
type DocumentParser interface {
	Parse(ctx context.Context, filePath, language string) (*parser.Result, error)
}

// Embedder converts chunks into vectors.
type Embedder interface {
	Embed(ctx context.Context, chunks []chunker.Chunk) (*embedder.Result, error)
}

// ObjectStore is the storage surface the orchestrator needs.
type ObjectStore interface {
	PromoteSource(ctx context.Context, localPath string) (string, error)
	SaveParseResult(ctx context.Context, id string, raw []byte) string
	Delete(ctx context.Context, locator string) bool
	DeleteParseResult(ctx context.Context, id string) bool
	DeleteParseResultRemote(ctx context.Context, id string) bool
}

// BookStore is the relational repository surface.
type BookStore interface {
	Create(ctx context.Context, book *model.Book) error
	ExistsByTitle(ctx context.Context, title string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	StampEmbedding(ctx context.Context, id uuid.UUID, embeddingModel string, totalPages int) error
}

// VectorStore is the vector repository surface.
type VectorStore interface {
	StoreChunks(ctx context.Context, records []model.ChunkEmbedding) (int, error)
	DeleteByBookID(ctx context.Context, bookID uuid.UUID) error
}

// IndexOutcome is the caller-visible result of one indexing run.
type IndexOutcome struct {
	BookID       *uuid.UUID `json:"book_id"`
	Title        string     `json:"title"`
	ChunksCount  int        `json:"chunks_count"`
	ModelVersion string     `json:"model_version,omitempty"`
	TotalTokens  int        `json:"total_tokens,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	Status       string     `json:"status"`
	Skipped      bool       `json:"skipped"`
	SkipReason   string     `json:"skip_reason,omitempty"`
}

const (
	StatusIndexed = "indexed"
	StatusSkipped = "skipped"
)

// Indexer drives the full pipeline for one document: validate → duplicate
// check → parse → side-record save → storage promotion → metadata creation →
// chunk → embed → vector store → embedding stamp, with best-effort
// compensation on any failure after the first commit.
type Indexer struct {
	parser   DocumentParser
	chunker  chunker.Chunker
	embedder Embedder
	store    ObjectStore
	books    BookStore
	vectors  VectorStore
	language string
	logger   *zap.Logger
}

func NewIndexer(
	docParser DocumentParser,
	chk chunker.Chunker,
	emb Embedder,
	store ObjectStore,
	books BookStore,
	vectors VectorStore,
	language string,
	logger *zap.Logger,
) *Indexer {
	if language == "" {
		language = "ko"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		parser:   docParser,
		chunker:  chk,
		embedder: emb,
		store:    store,
		books:    books,
		vectors:  vectors,
		language: language,
		logger:   logger,
	}
}

// IndexDocument runs the pipeline for one local PDF. The title defaults to
// the file name without extension. With skipExisting, an existing title (or
// a uniqueness race at insert time) yields a skipped outcome instead of an
// error.
func (ix *Indexer) IndexDocument(ctx context.Context, filePath, title, author string, skipExisting bool) (*IndexOutcome, error) {
	bookTitle := title
	if bookTitle == "" {
		base := filepath.Base(filePath)
		bookTitle = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := validatePDFFile(filePath); err != nil {
		return nil, err
	}

	if skipExisting {
		exists, err := ix.books.ExistsByTitle(ctx, bookTitle)
		if err != nil {
			return nil, &errs.IndexingError{Message: "duplicate check failed: " + err.Error(), Err: err}
		}
		if exists {
			ix.logger.Info("skipping duplicate", zap.String("title", bookTitle))
			return &IndexOutcome{
				Title:      bookTitle,
				Status:     StatusSkipped,
				Skipped:    true,
				SkipReason: fmt.Sprintf("book with title %q already exists", bookTitle),
			}, nil
		}
	}

	// The parse call is the expensive, non-refundable step. It must finish
	// and its raw response must hit durable storage before any relational
	// record exists.
	parseRes, err := ix.parser.Parse(ctx, filePath, ix.language)
	if err != nil {
		return nil, err
	}

	sideID := uuid.NewString()
	if locator := ix.store.SaveParseResult(ctx, sideID, parseRes.Raw); locator != "" {
		ix.logger.Info("saved parse result", zap.String("locator", locator))
	} else {
		ix.logger.Warn("parse result could not be saved", zap.String("side_id", sideID))
	}

	storedPath, err := ix.store.PromoteSource(ctx, filePath)
	if err != nil {
		ix.compensate(ctx, nil, sideID, "")
		return nil, &errs.IndexingError{
			Message: fmt.Sprintf("failed to store %s: %v", filePath, err),
			Err:     err,
		}
	}

	book := &model.Book{
		Title:    bookTitle,
		Author:   author,
		FilePath: storedPath,
		Metadata: model.JSONMap{"parse_result_id": sideID},
	}
	if err := ix.books.Create(ctx, book); err != nil {
		var dup *errs.DuplicateError
		if errors.As(err, &dup) {
			// Our promoted copy and side record are orphans either way; the
			// winning insert owns its own.
			ix.cleanupOrphans(ctx, sideID, storedPath)
			if skipExisting {
				// Lost the race between the duplicate check and the insert.
				ix.logger.Info("duplicate insert race absorbed", zap.String("title", bookTitle))
				return &IndexOutcome{
					Title:      bookTitle,
					Status:     StatusSkipped,
					Skipped:    true,
					SkipReason: fmt.Sprintf("book with title %q already exists", bookTitle),
				}, nil
			}
			return nil, err
		}
		ix.compensate(ctx, nil, sideID, storedPath)
		return nil, &errs.IndexingError{Message: "failed to create book record: " + err.Error(), Err: err}
	}

	outcome, err := ix.embedAndStore(ctx, book, parseRes)
	if err != nil {
		ix.compensate(ctx, &book.ID, sideID, storedPath)
		return nil, err
	}
	return outcome, nil
}

// embedAndStore runs the post-commit half of the pipeline: chunk, embed,
// bulk-upsert vectors, stamp the book.
func (ix *Indexer) embedAndStore(ctx context.Context, book *model.Book, parseRes *parser.Result) (*IndexOutcome, error) {
	chunked := ix.chunker.Chunk(parseRes.Document)

	outcome := &IndexOutcome{
		BookID:   &book.ID,
		Title:    book.Title,
		FilePath: book.FilePath,
		Status:   StatusIndexed,
	}

	if len(chunked.Chunks) == 0 {
		// Nothing to embed. Zero-chunk success, no provider or vector calls.
		ix.logger.Info("document produced no chunks", zap.String("book_id", book.ID.String()))
		return outcome, nil
	}

	embRes, err := ix.embedder.Embed(ctx, chunked.Chunks)
	if err != nil {
		return nil, err
	}

	records := make([]model.ChunkEmbedding, len(embRes.EmbeddedChunks))
	for i, ec := range embRes.EmbeddedChunks {
		records[i] = model.ChunkEmbedding{
			ID:           uuid.New(),
			BookID:       book.ID,
			Page:         ec.Chunk.PageNumber,
			Content:      ec.Chunk.Content,
			ModelVersion: embRes.ModelVersion,
			Embedding:    pgvector.NewVector(ec.Vector),
		}
	}

	stored, err := ix.vectors.StoreChunks(ctx, records)
	if err != nil {
		return nil, &errs.IndexingError{Message: "failed to store vectors: " + err.Error(), Err: err}
	}

	if err := ix.books.StampEmbedding(ctx, book.ID, embRes.ModelVersion, chunked.SourcePages); err != nil {
		return nil, &errs.IndexingError{Message: "failed to update book record: " + err.Error(), Err: err}
	}

	outcome.ChunksCount = stored
	outcome.ModelVersion = embRes.ModelVersion
	outcome.TotalTokens = embRes.TotalTokens
	ix.logger.Info("indexed document",
		zap.String("book_id", book.ID.String()),
		zap.Int("chunks", stored),
		zap.String("model", embRes.ModelVersion))
	return outcome, nil
}

// compensate reverses committed side effects in reverse order of commitment.
// Every step is best-effort: failures are logged and swallowed so they never
// mask the original error, and one failed step never prevents the others.
// The local parse-result backup is intentionally retained.
func (ix *Indexer) compensate(ctx context.Context, bookID *uuid.UUID, sideID, storedPath string) {
	// Compensation must run even when the triggering failure was a
	// cancellation.
	ctx = context.WithoutCancel(ctx)

	if bookID != nil {
		if err := ix.vectors.DeleteByBookID(ctx, *bookID); err != nil {
			ix.logger.Error("rollback: failed to delete vectors",
				zap.String("book_id", bookID.String()), zap.Error(err))
		}
		if _, err := ix.books.Delete(ctx, *bookID); err != nil {
			ix.logger.Error("rollback: failed to delete book",
				zap.String("book_id", bookID.String()), zap.Error(err))
		}
	}
	if sideID != "" {
		if !ix.store.DeleteParseResultRemote(ctx, sideID) {
			ix.logger.Error("rollback: failed to delete remote parse result",
				zap.String("side_id", sideID))
		}
	}
	if storedPath != "" {
		if !ix.store.Delete(ctx, storedPath) {
			ix.logger.Error("rollback: failed to delete stored file",
				zap.String("path", storedPath))
		}
	}
}

// cleanupOrphans removes artifacts created by a run that lost a duplicate
// race: the full side record (another run owns the book) and the promoted
// copy.
func (ix *Indexer) cleanupOrphans(ctx context.Context, sideID, storedPath string) {
	ctx = context.WithoutCancel(ctx)
	if !ix.store.DeleteParseResult(ctx, sideID) {
		ix.logger.Warn("failed to remove orphan parse result", zap.String("side_id", sideID))
	}
	if storedPath != "" && !ix.store.Delete(ctx, storedPath) {
		ix.logger.Warn("failed to remove orphan stored file", zap.String("path", storedPath))
	}
}

// validatePDFFile checks that path names a regular file with a .pdf
// extension starting with the PDF magic bytes. Failures never trigger
// compensation, nothing has been committed yet.
func validatePDFFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &errs.ReadError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &errs.ReadError{Path: path}
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return &errs.InvalidFormatError{Filename: filepath.Base(path)}
	}

	f, err := os.Open(path)
	if err != nil {
		return &errs.ReadError{Path: path, Err: err}
	}
	defer f.Close()

	header := make([]byte, len(pdfMagic))
	n, err := f.Read(header)
	if err != nil || n < len(pdfMagic) || !bytes.HasPrefix(header, pdfMagic) {
		return &errs.InvalidFormatError{Filename: filepath.Base(path)}
	}
	return nil
}
