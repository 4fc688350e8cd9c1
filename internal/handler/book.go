package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/errs"
	"github.com/sskim91/bookbrain/internal/model"
	"github.com/sskim91/bookbrain/internal/repository"
	"github.com/sskim91/bookbrain/internal/service"
	"github.com/sskim91/bookbrain/internal/storage"
)

// BookHandler serves upload, listing, detail and deletion of books.
type BookHandler struct {
	indexer *service.Indexer
	books   *repository.BookRepository
	vectors *repository.VectorRepository
	store   *storage.Store
	logger  *zap.Logger
}

func NewBookHandler(
	indexer *service.Indexer,
	books *repository.BookRepository,
	vectors *repository.VectorRepository,
	store *storage.Store,
	logger *zap.Logger,
) *BookHandler {
	return &BookHandler{
		indexer: indexer,
		books:   books,
		vectors: vectors,
		store:   store,
		logger:  logger,
	}
}

// Upload accepts a multipart PDF upload and runs the indexing pipeline
// synchronously. The response carries the indexing outcome.
func (h *BookHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required", nil)
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_FORMAT",
			"only PDF files are accepted", gin.H{"filename": fileHeader.Filename})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	}
	author := c.PostForm("author")

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "UNREADABLE_FILE", "could not read uploaded file", nil)
		return
	}
	defer src.Close()

	tmpPath, err := h.store.SaveTemp(src)
	if err != nil {
		h.logger.Error("failed to save upload", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "could not save uploaded file", nil)
		return
	}
	defer os.Remove(tmpPath)

	outcome, err := h.indexer.IndexDocument(c.Request.Context(), tmpPath, title, author, false)
	if err != nil {
		h.respondIndexError(c, err)
		return
	}

	c.JSON(http.StatusCreated, outcome)
}

func (h *BookHandler) respondIndexError(c *gin.Context, err error) {
	var (
		invalid *errs.InvalidFormatError
		read    *errs.ReadError
		dup     *errs.DuplicateError
		api     *errs.APIError
		emb     *errs.EmbeddingError
	)
	switch {
	case errors.As(err, &invalid):
		respondError(c, http.StatusBadRequest, "INVALID_FILE_FORMAT", err.Error(), nil)
	case errors.As(err, &read):
		respondError(c, http.StatusBadRequest, "UNREADABLE_FILE", err.Error(), nil)
	case errors.As(err, &dup):
		respondError(c, http.StatusConflict, "DUPLICATE_BOOK", err.Error(), gin.H{"title": dup.Title})
	case errors.As(err, &api):
		h.logger.Error("parse service failure", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "PARSE_FAILED", err.Error(), nil)
	case errors.As(err, &emb):
		h.logger.Error("embedding failure", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "EMBEDDING_FAILED", err.Error(), nil)
	default:
		h.logger.Error("indexing failure", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INDEXING_FAILED", err.Error(), nil)
	}
}

// List returns books ordered by creation time, newest first.
func (h *BookHandler) List(c *gin.Context) {
	limit, offset := pagination(c, 20)

	books, total, err := h.books.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list books", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list books", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"books":  books,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get returns one book plus its stored chunk count.
func (h *BookHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "invalid book id", nil)
		return
	}

	book, err := h.books.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch book", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch book", nil)
		return
	}
	if book == nil {
		respondError(c, http.StatusNotFound, "BOOK_NOT_FOUND", "book not found", nil)
		return
	}

	chunks, err := h.vectors.CountByBookID(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("failed to count chunks", zap.String("book_id", id.String()), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"book":         book,
		"chunks_count": chunks,
	})
}

// Delete removes a book and everything derived from it: vectors first, then
// the record, then the stored file and parse result. Artifact removal is
// best-effort; the record deletion is what the status code reports.
func (h *BookHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "invalid book id", nil)
		return
	}

	ctx := c.Request.Context()
	book, err := h.books.FindByID(ctx, id)
	if err != nil {
		h.logger.Error("failed to fetch book", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch book", nil)
		return
	}
	if book == nil {
		respondError(c, http.StatusNotFound, "BOOK_NOT_FOUND", "book not found", nil)
		return
	}

	if err := h.vectors.DeleteByBookID(ctx, id); err != nil {
		h.logger.Error("failed to delete vectors", zap.String("book_id", id.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete book vectors", nil)
		return
	}

	deleted, err := h.books.Delete(ctx, id)
	if err != nil || !deleted {
		h.logger.Error("failed to delete book", zap.String("book_id", id.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete book", nil)
		return
	}

	if book.FilePath != "" && !h.store.Delete(ctx, book.FilePath) {
		h.logger.Warn("failed to delete stored file", zap.String("path", book.FilePath))
	}
	if sideID := metadataString(book.Metadata, "parse_result_id"); sideID != "" {
		if !h.store.DeleteParseResult(ctx, sideID) {
			h.logger.Warn("failed to delete parse result", zap.String("side_id", sideID))
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "book_id": id})
}

func metadataString(m model.JSONMap, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func pagination(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{"error": body})
}
