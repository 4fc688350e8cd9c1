package model

// Book is the relational record for one indexed PDF. The title unique index
// is the duplicate-detection mechanism of record. EmbeddingModel and
// TotalPages are stamped after a successful indexing run.
type Book struct {
	BaseModel
	Title          string  `gorm:"size:500;not null;uniqueIndex" json:"title"`
	Author         string  `gorm:"size:200" json:"author,omitempty"`
	FilePath       string  `gorm:"size:1000;not null" json:"file_path"`
	TotalPages     int     `gorm:"default:0" json:"total_pages"`
	EmbeddingModel string  `gorm:"size:100" json:"embedding_model,omitempty"`
	Metadata       JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

func (Book) TableName() string {
	return "books"
}
