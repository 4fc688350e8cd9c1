// Package chunker splits parsed documents into overlapping, size-bounded
// passages while preserving the originating page number.
package chunker

import (
	"github.com/sskim91/bookbrain/internal/parser"
)

const (
	DefaultChunkSize   = 1000 // tokens
	DefaultOverlapSize = 100  // tokens
)

// Chunk is one retrieval-sized passage. PageNumber is the page owning the
// chunk's first token.
type Chunk struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	TokenCount int    `json:"token_count"`
}

// ChunkedDocument is the full chunking result for one document.
type ChunkedDocument struct {
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
	SourcePages int     `json:"source_pages"`
}

// Chunker is the shared contract of the token-window and sentence-aware
// implementations.
type Chunker interface {
	Chunk(doc parser.ParsedDocument) ChunkedDocument
}

// TokenChunker slides a fixed token window over the document with overlap
// between consecutive windows.
type TokenChunker struct {
	chunkSize   int
	overlapSize int
}

func NewTokenChunker(chunkSize, overlapSize int) *TokenChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		overlapSize = 0
	}
	return &TokenChunker{chunkSize: chunkSize, overlapSize: overlapSize}
}

// Chunk tokenizes each page independently (O(N) over total tokens, not the
// quadratic whole-document re-tokenization) and windows the flat token array.
// A page-number array parallel to the token array attributes each window to
// the page of its first token.
func (c *TokenChunker) Chunk(doc parser.ParsedDocument) ChunkedDocument {
	if len(doc.Pages) == 0 {
		return ChunkedDocument{Chunks: []Chunk{}, SourcePages: doc.TotalPages}
	}

	var allTokens []string
	var tokenPages []int

	for _, page := range doc.Pages {
		if isBlank(page.Content) {
			continue
		}
		pageTokens := Tokenize(page.Content)
		if len(pageTokens) == 0 {
			continue
		}
		allTokens = append(allTokens, pageTokens...)
		for range pageTokens {
			tokenPages = append(tokenPages, page.PageNumber)
		}
	}

	total := len(allTokens)
	if total == 0 {
		return ChunkedDocument{Chunks: []Chunk{}, SourcePages: doc.TotalPages}
	}

	var chunks []Chunk
	index := 0
	start := 0

	for start < total {
		end := start + c.chunkSize
		if end > total {
			end = total
		}

		chunks = append(chunks, Chunk{
			Index:      index,
			Content:    Detokenize(allTokens[start:end]),
			PageNumber: tokenPages[start],
			TokenCount: end - start,
		})
		index++

		if end >= total {
			break
		}
		start = end - c.overlapSize
		// Zero-progress guard for documents shorter than the overlap.
		if start >= total-c.overlapSize {
			break
		}
	}

	return ChunkedDocument{
		Chunks:      chunks,
		TotalChunks: len(chunks),
		SourcePages: doc.TotalPages,
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
