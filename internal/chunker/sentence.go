package chunker

import (
	"strings"

	"github.com/sskim91/bookbrain/internal/parser"
)

const (
	DefaultSentenceChunkTokens = 300 // target tokens per chunk
	DefaultSentenceOverlap     = 50  // overlap in characters
	charsPerToken              = 4   // approximate ratio for Korean/English mixed text
)

// Separators prioritized for sentence-aware splitting. Full-width 。 covers
// Korean/CJK sentence endings.
var sentenceSeparators = []string{
	"\n\n",
	"\n",
	"。",
	". ",
	"! ",
	"? ",
	".\n",
	"!\n",
	"?\n",
	";",
	":",
	" ",
	"",
}

// SentenceChunker splits at natural boundaries (paragraphs, sentences)
// instead of exact token counts. Pages are processed separately, so a chunk
// never crosses a page boundary.
type SentenceChunker struct {
	chunkSizeChars int
	overlapChars   int
}

func NewSentenceChunker(chunkSizeTokens, overlapChars int) *SentenceChunker {
	if chunkSizeTokens <= 0 {
		chunkSizeTokens = DefaultSentenceChunkTokens
	}
	if overlapChars < 0 {
		overlapChars = DefaultSentenceOverlap
	}
	return &SentenceChunker{
		chunkSizeChars: chunkSizeTokens * charsPerToken,
		overlapChars:   overlapChars,
	}
}

func (c *SentenceChunker) Chunk(doc parser.ParsedDocument) ChunkedDocument {
	if len(doc.Pages) == 0 {
		return ChunkedDocument{Chunks: []Chunk{}, SourcePages: doc.TotalPages}
	}

	var chunks []Chunk
	index := 0

	for _, page := range doc.Pages {
		if isBlank(page.Content) {
			continue
		}
		for _, content := range c.splitText(page.Content, sentenceSeparators) {
			content = strings.TrimSpace(content)
			if content == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Index:      index,
				Content:    content,
				PageNumber: page.PageNumber,
				TokenCount: CountTokens(content),
			})
			index++
		}
	}

	if chunks == nil {
		chunks = []Chunk{}
	}
	return ChunkedDocument{
		Chunks:      chunks,
		TotalChunks: len(chunks),
		SourcePages: doc.TotalPages,
	}
}

// splitText recursively splits on the highest-priority separator present,
// then merges the pieces back into chunks of at most chunkSizeChars.
func (c *SentenceChunker) splitText(text string, separators []string) []string {
	sep := ""
	var nextSeps []string
	for i, s := range separators {
		if s == "" {
			sep = ""
			nextSeps = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			nextSeps = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, sep)

	var final []string
	var small []string
	for _, s := range splits {
		if len([]rune(s)) < c.chunkSizeChars {
			small = append(small, s)
			continue
		}
		if len(small) > 0 {
			final = append(final, c.merge(small)...)
			small = nil
		}
		if len(nextSeps) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.splitText(s, nextSeps)...)
		}
	}
	if len(small) > 0 {
		final = append(final, c.merge(small)...)
	}
	return final
}

// merge greedily joins small splits into chunks, carrying overlapChars worth
// of trailing splits into the next chunk.
func (c *SentenceChunker) merge(splits []string) []string {
	var chunks []string
	var cur []string
	curLen := 0

	for _, s := range splits {
		l := len([]rune(s))
		if curLen+l > c.chunkSizeChars && curLen > 0 {
			chunks = append(chunks, strings.Join(cur, ""))
			for len(cur) > 0 && (curLen > c.overlapChars || curLen+l > c.chunkSizeChars) {
				curLen -= len([]rune(cur[0]))
				cur = cur[1:]
			}
		}
		cur = append(cur, s)
		curLen += l
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, ""))
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping the separator attached to
// the preceding piece so sentence terminators stay with their sentence. An
// empty separator falls back to per-character pieces.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
