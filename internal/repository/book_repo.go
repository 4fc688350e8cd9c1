package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sskim91/bookbrain/internal/errs"
	"github.com/sskim91/bookbrain/internal/model"
)

type BookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

// WithTx returns a repository bound to a caller-managed transaction. The
// caller commits or rolls back; the returned repository never does.
func (r *BookRepository) WithTx(tx *gorm.DB) *BookRepository {
	return &BookRepository{db: tx}
}

// Create inserts a book. A title uniqueness violation surfaces as a typed
// DuplicateError so the orchestrator can absorb races when duplicate-skipping
// was requested.
func (r *BookRepository) Create(ctx context.Context, book *model.Book) error {
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &errs.DuplicateError{Title: book.Title}
		}
		return err
	}
	return nil
}

func (r *BookRepository) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Book{}).
		Where("title = ?", title).
		Count(&count).Error
	return count > 0, err
}

// FindByID returns nil without error when the book does not exist.
func (r *BookRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	var book model.Book
	err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *BookRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Book, error) {
	books := make(map[uuid.UUID]model.Book, len(ids))
	if len(ids) == 0 {
		return books, nil
	}
	var rows []model.Book
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, b := range rows {
		books[b.ID] = b
	}
	return books, nil
}

func (r *BookRepository) List(ctx context.Context, limit, offset int) ([]model.Book, int64, error) {
	var books []model.Book
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Book{})
	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&books).Error
	return books, total, err
}

// Delete reports whether a row was actually removed.
func (r *BookRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Book{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// StampEmbedding records the embedding model and page count after a
// successful indexing run.
func (r *BookRepository) StampEmbedding(ctx context.Context, id uuid.UUID, embeddingModel string, totalPages int) error {
	updates := map[string]interface{}{"embedding_model": embeddingModel}
	if totalPages > 0 {
		updates["total_pages"] = totalPages
	}
	return r.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ?", id).
		Updates(updates).Error
}
