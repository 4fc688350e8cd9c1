package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeReconstruction(t *testing.T) {
	cases := []string{
		"hello world",
		"  leading spaces",
		"trailing spaces  ",
		"multi\n\nline\ttext with   runs",
		"한국어 문장 테스트",
		"single",
		"",
	}
	for _, text := range cases {
		tokens := Tokenize(text)
		assert.Equal(t, text, Detokenize(tokens), "input: %q", text)
	}
}

func TestTokenizeCountMatchesCountTokens(t *testing.T) {
	cases := []string{
		"hello world",
		"  leading",
		"trailing  ",
		"one two three four",
		"a",
	}
	for _, text := range cases {
		assert.Equal(t, CountTokens(text), len(Tokenize(text)), "input: %q", text)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Equal(t, 0, CountTokens(""))
}

func TestCountTokensWhitespaceOnly(t *testing.T) {
	assert.Equal(t, 1, CountTokens("   "))
}
