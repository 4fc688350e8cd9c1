package chunker

import (
	"strings"
	"unicode"
)

// Tokenize splits text into word tokens. Each token is a run of leading
// whitespace followed by a run of non-whitespace, so joining the tokens back
// together reconstructs the input exactly. This keeps chunking deterministic
// and O(N) without an external vocabulary.
func Tokenize(text string) []string {
	runes := []rune(text)
	n := len(runes)
	tokens := make([]string, 0, n/5)

	i := 0
	for i < n {
		start := i
		for i < n && unicode.IsSpace(runes[i]) {
			i++
		}
		wordStart := i
		for i < n && !unicode.IsSpace(runes[i]) {
			i++
		}
		if wordStart == i && len(tokens) > 0 {
			// Trailing whitespace run, fold it into the previous token so
			// the token count equals the word count.
			tokens[len(tokens)-1] += string(runes[start:i])
			continue
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens
}

// Detokenize is the inverse of Tokenize.
func Detokenize(tokens []string) string {
	return strings.Join(tokens, "")
}

// CountTokens returns the token count of text.
func CountTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	// A trailing whitespace-only segment still forms one token.
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
