package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/sskim91/bookbrain/internal/model"
)

// VectorRepository manages passage vectors in the chunk_embeddings table.
// The table is deliberately independent of books: no foreign key, no cascade.
type VectorRepository struct {
	db *gorm.DB
}

func NewVectorRepository(db *gorm.DB) *VectorRepository {
	return &VectorRepository{db: db}
}

// SearchHit is one similarity-search result row.
type SearchHit struct {
	model.ChunkEmbedding
	Distance float64 `gorm:"column:distance"`
}

// StoreChunks bulk-inserts vectors and returns the stored count.
func (r *VectorRepository) StoreChunks(ctx context.Context, records []model.ChunkEmbedding) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(records, 500).Error; err != nil {
		return 0, err
	}
	return len(records), nil
}

// DeleteByBookID removes every vector owned by a book. Deleting vectors for
// an unknown book is a no-op, which keeps rollback idempotent.
func (r *VectorRepository) DeleteByBookID(ctx context.Context, bookID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Delete(&model.ChunkEmbedding{}).Error
}

func (r *VectorRepository) CountByBookID(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChunkEmbedding{}).
		Where("book_id = ?", bookID).
		Count(&count).Error
	return count, err
}

// SearchSimilar runs a cosine-distance search ordered by ascending distance.
// Score thresholding happens in the caller, which converts distance to
// similarity.
func (r *VectorRepository) SearchSimilar(ctx context.Context, vector []float32, limit, offset int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	var hits []SearchHit
	err := r.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("*, embedding <=> ? AS distance", pgvector.NewVector(vector)).
		Order("distance ASC").
		Limit(limit).
		Offset(offset).
		Find(&hits).Error
	return hits, err
}
