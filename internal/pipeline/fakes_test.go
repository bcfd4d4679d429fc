package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
	"github.com/Ratchadaporn07043/astrobot/internal/ocr"
	"github.com/Ratchadaporn07043/astrobot/internal/parser"
)

type fakePage struct {
	blocks    []parser.TextBlock
	images    []parser.Image
	tables    []parser.Table
	tablesErr error
	simple    []parser.Table
	panicOn   string
}

type fakeDocument struct {
	pages  []fakePage
	closed bool
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) page(n int, call string) fakePage {
	p := d.pages[n-1]
	if p.panicOn == call {
		panic("broken " + call)
	}
	return p
}

func (d *fakeDocument) TextBlocks(n int) ([]parser.TextBlock, error) {
	return d.page(n, "text").blocks, nil
}

func (d *fakeDocument) Images(n int) ([]parser.Image, error) {
	return d.page(n, "images").images, nil
}

func (d *fakeDocument) Tables(n int) ([]parser.Table, error) {
	p := d.page(n, "tables")
	return p.tables, p.tablesErr
}

func (d *fakeDocument) SimpleTables(n int) ([]parser.Table, error) {
	return d.page(n, "simple").simple, nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

// fakeOCR returns the same spans for every image.
type fakeOCR struct {
	spans []ocr.Span
	calls int
}

func (f *fakeOCR) Recognize(context.Context, []byte) ([]ocr.Span, error) {
	f.calls++
	return f.spans, nil
}

type fakeSummarizer struct {
	inputs  []string
	panicOn string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string, kind models.Kind) string {
	if f.panicOn != "" && strings.Contains(text, f.panicOn) {
		panic("summarizer exploded")
	}
	f.inputs = append(f.inputs, text)
	return "summary of " + text
}

// fakeText embeds a string as {rune count, 1}.
type fakeText struct {
	inputs []string
}

func (f *fakeText) Embed(_ context.Context, text string) []float32 {
	f.inputs = append(f.inputs, text)
	return []float32{float32(len([]rune(text))), 1}
}

func (f *fakeText) Dimension() int { return 2 }

type fakeImage struct {
	ok bool
}

func (f *fakeImage) Embed(context.Context, []byte) ([]float32, bool) {
	if !f.ok {
		return nil, false
	}
	return []float32{0.5, 0.5}, true
}

type upperNormalizer struct{}

func (upperNormalizer) Normalize(raw string) string { return strings.ToUpper(strings.TrimSpace(raw)) }

type testDeps struct {
	ocr        *fakeOCR
	summarizer *fakeSummarizer
	text       *fakeText
	image      *fakeImage
}

func newTestProcessor(cfg *config.PipelineConfig) (*Processor, *testDeps) {
	td := &testDeps{
		ocr:        &fakeOCR{spans: []ocr.Span{{Text: "ดาว", Confidence: 0.9}}},
		summarizer: &fakeSummarizer{},
		text:       &fakeText{},
		image:      &fakeImage{ok: true},
	}
	if cfg == nil {
		c := config.Default().Pipeline
		cfg = &c
	}
	p := NewProcessor(cfg, 1, Deps{
		OCR:        td.ocr,
		Normalizer: upperNormalizer{},
		Summarizer: td.summarizer,
		Text:       td.text,
		Image:      td.image,
	})
	return p, td
}

func pngBytes(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func block(text string, y float64) parser.TextBlock {
	return parser.TextBlock{Text: text, BBox: models.BoundingBox{72, y, 500, y + 12}}
}

func bbox(y float64) *models.BoundingBox {
	return &models.BoundingBox{100, y, 200, y + 50}
}
