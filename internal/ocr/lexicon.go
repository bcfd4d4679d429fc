package ocr

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var (
	ErrUnavailable  = errors.New("resource unavailable")
	ErrNoCorrection = errors.New("no correction found")
)

// Lexicon is a word list used for dictionary tokenizing and edit-distance-1
// spelling correction.
type Lexicon struct {
	words  map[string]struct{}
	byLen  map[int][]string
	maxLen int
}

func NewLexicon(words []string) *Lexicon {
	l := &Lexicon{
		words: make(map[string]struct{}, len(words)),
		byLen: make(map[int][]string),
	}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := l.words[w]; ok {
			continue
		}
		l.words[w] = struct{}{}
		n := len([]rune(w))
		l.byLen[n] = append(l.byLen[n], w)
		if n > l.maxLen {
			l.maxLen = n
		}
	}
	for n := range l.byLen {
		sort.Strings(l.byLen[n])
	}
	return l
}

// LoadLexicon reads one word per line; lines starting with # are skipped.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lexicon: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lexicon: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty lexicon %s: %w", path, ErrUnavailable)
	}
	return NewLexicon(words), nil
}

func (l *Lexicon) Len() int { return len(l.words) }

func (l *Lexicon) Contains(w string) bool {
	_, ok := l.words[w]
	return ok
}

// Tokenize splits on whitespace, then cuts each field into the longest
// dictionary words it can find. Runs that match nothing stay together.
func (l *Lexicon) Tokenize(text string) []string {
	var out []string
	for _, field := range strings.Fields(text) {
		out = append(out, l.segment([]rune(field))...)
	}
	return out
}

func (l *Lexicon) segment(r []rune) []string {
	var (
		out     []string
		unknown []rune
	)
	flush := func() {
		if len(unknown) > 0 {
			out = append(out, string(unknown))
			unknown = nil
		}
	}

	for i := 0; i < len(r); {
		end := i + l.maxLen
		if end > len(r) {
			end = len(r)
		}
		match := 0
		for j := end; j > i; j-- {
			if l.Contains(string(r[i:j])) {
				match = j - i
				break
			}
		}
		if match == 0 {
			unknown = append(unknown, r[i])
			i++
			continue
		}
		flush()
		out = append(out, string(r[i:i+match]))
		i += match
	}
	flush()
	return out
}

// Correct returns w when it is a known word, otherwise the first known word
// (in sorted order) one edit away.
func (l *Lexicon) Correct(w string) (string, error) {
	if l.Contains(w) {
		return w, nil
	}
	r := []rune(w)
	for _, n := range []int{len(r), len(r) - 1, len(r) + 1} {
		for _, cand := range l.byLen[n] {
			if editDistanceOne(r, []rune(cand)) {
				return cand, nil
			}
		}
	}
	return "", ErrNoCorrection
}

// editDistanceOne reports whether a and b differ by exactly one
// insertion, deletion or substitution.
func editDistanceOne(a, b []rune) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(b)-len(a) > 1 {
		return false
	}
	i, j, diff := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		diff++
		if diff > 1 {
			return false
		}
		if len(a) == len(b) {
			i++
		}
		j++
	}
	diff += (len(a) - i) + (len(b) - j)
	return diff == 1
}
