package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ChunkEmbedding is one passage vector. BookID is a logical back-reference
// only: there is intentionally no foreign key to books, the indexing
// orchestrator keeps the two stores consistent and deletes explicitly.
type ChunkEmbedding struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	BookID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"book_id"`
	Page         int             `gorm:"not null" json:"page"`
	Content      string          `gorm:"type:text;not null" json:"content"`
	ModelVersion string          `gorm:"size:100" json:"model_version"`
	Embedding    pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ChunkEmbedding) TableName() string {
	return "chunk_embeddings"
}
