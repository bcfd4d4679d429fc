package ocr

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"github.com/Ratchadaporn07043/astrobot/internal/helper"
)

var (
	// script boundaries that OCR tends to glue together
	boundaryRegexes = []*regexp.Regexp{
		regexp.MustCompile(`([ก-๙])([A-Za-z])`),
		regexp.MustCompile(`([A-Za-z])([ก-๙])`),
		regexp.MustCompile(`([ก-๙])([0-9])`),
		regexp.MustCompile(`([0-9])([ก-๙])`),
	}
	spaceRegex = regexp.MustCompile(`\s+`)
)

// one edit in a shorter word lands on a different valid word too often
const minCorrectRunes = 4

// Normalizer cleans raw OCR text. The lexicon is loaded on first use; when it
// can't be loaded only spacing fixes are applied.
type Normalizer struct {
	lexicon *helper.Lazy[*Lexicon]
}

// NewNormalizer creates a normalizer backed by the word list at lexiconPath.
// An empty path disables tokenizing and correction.
func NewNormalizer(lexiconPath string) *Normalizer {
	return &Normalizer{
		lexicon: helper.NewLazy(func() (*Lexicon, error) {
			if lexiconPath == "" {
				return nil, ErrUnavailable
			}
			lex, err := LoadLexicon(lexiconPath)
			if err != nil {
				log.Warn().Err(err).Str("path", lexiconPath).Msg("lexicon unavailable, word correction disabled")
				return nil, err
			}
			log.Info().Int("words", lex.Len()).Msg("Loaded lexicon")
			return lex, nil
		}),
	}
}

// NewNormalizerWithLexicon is used when the word list is already in memory.
func NewNormalizerWithLexicon(lex *Lexicon) *Normalizer {
	return &Normalizer{
		lexicon: helper.NewLazy(func() (*Lexicon, error) { return lex, nil }),
	}
}

// Normalize never fails; the worst case is the spaced and collapsed input.
func (n *Normalizer) Normalize(raw string) string {
	text := strings.TrimSpace(norm.NFC.String(raw))
	if text == "" {
		return ""
	}

	for _, re := range boundaryRegexes {
		text = re.ReplaceAllString(text, "$1 $2")
	}
	text = collapse(text)

	lex, err := n.lexicon.Get()
	if err != nil || lex == nil {
		return text
	}

	words := lex.Tokenize(text)
	for i, w := range words {
		if utf8Len(w) < minCorrectRunes || !isAlpha(w) {
			continue
		}
		if fixed, err := lex.Correct(w); err == nil && fixed != "" {
			words[i] = fixed
		}
	}
	return collapse(strings.Join(words, " "))
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

// isAlpha is false for words carrying combining vowels or tone marks, so
// those are never corrected.
func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func utf8Len(s string) int {
	return len([]rune(s))
}
