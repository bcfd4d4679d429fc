package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Normalize_NoLexicon(t *testing.T) {
	n := NewNormalizer("")

	var cases = []struct {
		input  string
		output string
	}{
		{input: "  ดาวMars  ", output: "ดาว Mars"},
		{input: "Marsดาว", output: "Mars ดาว"},
		{input: "ราศี12", output: "ราศี 12"},
		{input: "12ราศี", output: "12 ราศี"},
		{input: "a   b\n\tc", output: "a b c"},
		{input: "   ", output: ""},
		{input: "plain text 42", output: "plain text 42"},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, c.output, n.Normalize(c.input))
		})
	}
}

func Test_Normalize_MissingLexiconDegrades(t *testing.T) {
	n := NewNormalizer(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, "ดาว Mars", n.Normalize("ดาวMars"))
}

func Test_Normalize_WithLexicon(t *testing.T) {
	lex := NewLexicon([]string{"ดาว", "อังคาร", "ราศี", "planet"})
	n := NewNormalizerWithLexicon(lex)

	// dictionary segmentation splits the glued thai words
	assert.Equal(t, "ดาว อังคาร", n.Normalize("ดาวอังคาร"))
	// one substitution away from a known latin word
	assert.Equal(t, "planet", n.Normalize("plamet"))
	// short and non alphabetic tokens are left alone
	assert.Equal(t, "ab 1234", n.Normalize("ab 1234"))
}

func Test_Normalize_KeepsValidWords(t *testing.T) {
	n := NewNormalizer("../../configs/thai_words.txt")

	var cases = []struct {
		input  string
		output string
	}{
		// one edit from ภพ, พุธ, ธนู
		{input: "ภาพ", output: "ภาพ"},
		{input: "พุทธ", output: "พุทธ"},
		{input: "ธนา", output: "ธนา"},
		{input: "ภาพ พุทธ ธนา", output: "ภาพ พุทธ ธนา"},
		// words from the list are still split out
		{input: "ดาวราศี", output: "ดาว ราศี"},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, c.output, n.Normalize(c.input))
		})
	}
}

func Test_Normalize_ShortWordsAreNotCorrected(t *testing.T) {
	n := NewNormalizerWithLexicon(NewLexicon([]string{"moon", "mars"}))
	assert.Equal(t, "mon", n.Normalize("mon"))
	assert.Equal(t, "mars", n.Normalize("marz"))
}

func Test_LoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# thai words\nดาว\n\nราศี\nดาว\n"), 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, 2, lex.Len())
	assert.True(t, lex.Contains("ราศี"))

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = LoadLexicon(empty)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func Test_Lexicon_Correct(t *testing.T) {
	lex := NewLexicon([]string{"moon", "mars", "venus"})

	var cases = []struct {
		input  string
		output string
		err    error
	}{
		{input: "moon", output: "moon"},
		{input: "mon", output: "moon"},
		{input: "marss", output: "mars"},
		{input: "venas", output: "venus"},
		{input: "jupiter", err: ErrNoCorrection},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			out, err := lex.Correct(c.input)
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.output, out)
		})
	}
}

func Test_FilterSpans(t *testing.T) {
	spans := []Span{
		{Text: "exact", Confidence: 0.3},
		{Text: "above", Confidence: 0.31},
		{Text: "low", Confidence: 0.1},
		{Text: "high", Confidence: 0.9},
	}
	assert.Equal(t, "above high", FilterSpans(spans, 0.3))
	assert.Equal(t, "", FilterSpans(spans[:1], 0.3))
	assert.Equal(t, "", FilterSpans(nil, 0.3))
}
