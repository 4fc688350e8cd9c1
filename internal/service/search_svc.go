package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/model"
	"github.com/sskim91/bookbrain/internal/repository"
)

// QueryEmbedder embeds a single search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchVectorStore is the read surface the searcher needs.
type SearchVectorStore interface {
	SearchSimilar(ctx context.Context, vector []float32, limit, offset int) ([]repository.SearchHit, error)
}

// SearchBookStore resolves book metadata for hits.
type SearchBookStore interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Book, error)
}

// SearchResult is one scored passage. Score is cosine similarity in [0, 1]
// for normalized embeddings.
type SearchResult struct {
	BookID     uuid.UUID `json:"book_id"`
	BookTitle  string    `json:"book_title"`
	BookAuthor string    `json:"book_author,omitempty"`
	Page       int       `json:"page"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
}

// SearchResponse is the full response for one query.
type SearchResponse struct {
	Results     []SearchResult `json:"results"`
	Total       int            `json:"total"`
	QueryTimeMS int64          `json:"query_time_ms"`
}

// Searcher answers similarity queries: embed the query text, rank stored
// chunks by cosine distance, enrich hits with book metadata.
type Searcher struct {
	embedder QueryEmbedder
	vectors  SearchVectorStore
	books    SearchBookStore
	logger   *zap.Logger
}

func NewSearcher(embedder QueryEmbedder, vectors SearchVectorStore, books SearchBookStore, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{embedder: embedder, vectors: vectors, books: books, logger: logger}
}

// Search runs one similarity query. minScore filters out hits below the
// similarity threshold; zero keeps everything.
func (s *Searcher) Search(ctx context.Context, query string, limit, offset int, minScore float64) (*SearchResponse, error) {
	started := time.Now()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.SearchSimilar(ctx, vector, limit, offset)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(hits))
	seen := make(map[uuid.UUID]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.BookID]; !ok {
			seen[hit.BookID] = struct{}{}
			ids = append(ids, hit.BookID)
		}
	}
	books, err := s.books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := 1 - hit.Distance
		if minScore > 0 && score < minScore {
			continue
		}
		book, ok := books[hit.BookID]
		if !ok {
			// Vectors survived a book deletion; the stores are independent.
			s.logger.Warn("search hit references missing book",
				zap.String("book_id", hit.BookID.String()))
			continue
		}
		results = append(results, SearchResult{
			BookID:     hit.BookID,
			BookTitle:  book.Title,
			BookAuthor: book.Author,
			Page:       hit.Page,
			Content:    hit.Content,
			Score:      score,
		})
	}

	return &SearchResponse{
		Results:     results,
		Total:       len(results),
		QueryTimeMS: time.Since(started).Milliseconds(),
	}, nil
}
