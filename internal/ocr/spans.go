package ocr

import (
	"context"
	"image"
	"strings"
)

// Span is one recognized region of an image.
type Span struct {
	Box        image.Rectangle
	Text       string
	Confidence float64 // 0..1
}

// Recognizer runs text recognition over encoded image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) ([]Span, error)
}

// FilterSpans joins the text of spans whose confidence is strictly above min.
func FilterSpans(spans []Span, min float64) string {
	var parts []string
	for _, s := range spans {
		if s.Confidence > min {
			parts = append(parts, s.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
