// Package pipeline turns pages of a document into summarized, embedded chunks
// and drives a whole ingestion run.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/embedding"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
	"github.com/Ratchadaporn07043/astrobot/internal/ocr"
	"github.com/Ratchadaporn07043/astrobot/internal/parser"
)

var errSkipped = errors.New("element skipped")

type Summarizer interface {
	Summarize(ctx context.Context, text string, kind models.Kind) string
}

type Normalizer interface {
	Normalize(raw string) string
}

// Deps are the collaborators a Processor calls for every chunk.
type Deps struct {
	OCR        ocr.Recognizer
	Normalizer Normalizer
	Summarizer Summarizer
	Text       embedding.TextEmbedder
	// Image may be nil when image embeddings are not wanted.
	Image embedding.ImageEmbedder
}

// Processor builds the chunks of one page in reading order.
type Processor struct {
	cfg     *config.PipelineConfig
	counter int
	deps    Deps
}

func NewProcessor(cfg *config.PipelineConfig, documentCounter int, deps Deps) *Processor {
	return &Processor{cfg: cfg, counter: documentCounter, deps: deps}
}

// element is a page item waiting to be turned into a chunk.
type element struct {
	kind     models.Kind
	position float64
	index    int // 1-based among elements of the same kind
	bbox     *models.BoundingBox
	text     string
	image    *parser.Image
}

// ProcessPage never fails: broken elements are skipped and a failure of the
// page as a whole returns what was built so far.
func (p *Processor) ProcessPage(ctx context.Context, doc parser.Document, page int) (result *models.PageResult) {
	result = &models.PageResult{Page: page}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("page", page).Interface("panic", r).Int("chunks", len(result.Chunks)).Msg("Page processing aborted")
		}
	}()

	elems := p.gather(doc, page)
	sortElements(elems)

	produced := map[models.Kind]int{}
	for _, e := range elems {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Page processing cancelled")
			break
		}
		pc, err := p.process(ctx, page, e, produced[e.kind])
		if err != nil {
			if !errors.Is(err, errSkipped) {
				log.Warn().Err(err).Int("page", page).Str("kind", string(e.kind)).Int("index", e.index).Msg("Skipping element")
			}
			continue
		}
		produced[e.kind]++
		result.Add(pc)
	}

	if !result.HasContent {
		log.Info().Int("page", page).Msg("Empty page")
		return result
	}
	log.Info().
		Int("page", page).
		Int("text", result.Count(models.KindText)).
		Int("image", result.Count(models.KindImage)).
		Int("table", result.Count(models.KindTable)).
		Msg("Processed page")
	return result
}

// sortElements orders by position; ties keep gather order (text, images, tables).
func sortElements(elems []element) {
	sort.SliceStable(elems, func(i, j int) bool {
		return elems[i].position < elems[j].position
	})
}

func (p *Processor) gather(doc parser.Document, page int) []element {
	var elems []element
	lastKnown := 0.0
	place := func(e element) {
		elems = append(elems, e)
		if e.position > lastKnown {
			lastKnown = e.position
		}
	}

	blocks, err := guard(func() ([]parser.TextBlock, error) { return doc.TextBlocks(page) })
	if err != nil {
		log.Warn().Err(err).Int("page", page).Int("blocks", len(blocks)).Msg("Error reading text blocks")
	}
	for i, b := range blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		bbox := b.BBox
		place(element{kind: models.KindText, position: bbox[1], index: i + 1, bbox: &bbox, text: b.Text})
	}

	images, err := guard(func() ([]parser.Image, error) { return doc.Images(page) })
	if err != nil {
		log.Warn().Err(err).Int("page", page).Msg("Error reading images")
	}
	for i := range images {
		im := &images[i]
		pos := float64(im.Index) * p.cfg.ImagePositionStep
		if im.BBox != nil {
			pos = im.BBox[1]
		}
		place(element{kind: models.KindImage, position: pos, index: im.Index, bbox: im.BBox, image: im})
	}

	tables, err := guard(func() ([]parser.Table, error) { return doc.Tables(page) })
	if err == nil {
		for i, t := range tables {
			e := element{kind: models.KindTable, index: i + 1, bbox: t.BBox, text: t.Text()}
			if t.BBox != nil {
				e.position = t.BBox[1]
			} else {
				e.position = lastKnown + float64(i+1)
			}
			elems = append(elems, e)
		}
		return elems
	}

	log.Debug().Err(err).Int("page", page).Msg("Table structure unavailable, using simple tables")
	simple, err := guard(func() ([]parser.Table, error) { return doc.SimpleTables(page) })
	if err != nil {
		log.Warn().Err(err).Int("page", page).Msg("Error reading tables")
	}
	for i, t := range simple {
		elems = append(elems, element{
			kind:     models.KindTable,
			position: lastKnown + float64(i+1),
			index:    i + 1,
			text:     t.Text(),
		})
	}
	return elems
}

// guard turns a panic inside the pdf libraries into an error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return fn()
}

func (p *Processor) base(page int, e element, seq int) models.Base {
	return models.Base{
		Kind:       e.kind,
		Page:       page,
		SequenceID: seq,
		Position:   e.position,
		Text:       strings.TrimSpace(e.text),
		BBox:       e.bbox,
		ExternalID: models.ExternalID(p.counter, page, e.kind, e.index),
	}
}

func (p *Processor) process(ctx context.Context, page int, e element, seq int) (pc models.ProcessedChunk, err error) {
	switch e.kind {
	case models.KindText:
		if strings.TrimSpace(e.text) == "" {
			return pc, errSkipped
		}
		chunk := &models.TextChunk{Base: p.base(page, e, seq), BlockIndex: e.index}
		return p.summarize(ctx, chunk), nil

	case models.KindTable:
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("recovered: %v", r)
			}
		}()
		if strings.TrimSpace(e.text) == "" {
			return pc, errSkipped
		}
		chunk := &models.TableChunk{Base: p.base(page, e, seq), TableIndex: e.index}
		return p.summarize(ctx, chunk), nil

	case models.KindImage:
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("recovered: %v", r)
			}
		}()
		return p.processImage(ctx, page, e, seq)
	}
	return pc, fmt.Errorf("unknown kind %q", e.kind)
}

func (p *Processor) processImage(ctx context.Context, page int, e element, seq int) (models.ProcessedChunk, error) {
	var pc models.ProcessedChunk
	im := e.image

	w, h, err := im.Dimensions()
	if err != nil {
		return pc, err
	}
	if w*h > p.cfg.MaxImageArea || w < p.cfg.MinImageDim || h < p.cfg.MinImageDim {
		log.Debug().Int("page", page).Int("index", e.index).Int("width", w).Int("height", h).Msg("Skipping image by size")
		return pc, errSkipped
	}
	if p.deps.OCR == nil {
		return pc, errors.New("no OCR engine")
	}

	spans, err := p.deps.OCR.Recognize(ctx, im.Data)
	if err != nil {
		return pc, fmt.Errorf("failed to OCR image: %w", err)
	}
	raw := ocr.FilterSpans(spans, p.cfg.OCRConfidence)
	if strings.TrimSpace(raw) == "" {
		log.Debug().Int("page", page).Int("index", e.index).Msg("No text in image")
		return pc, errSkipped
	}

	text := strings.TrimSpace(raw)
	if p.deps.Normalizer != nil {
		text = p.deps.Normalizer.Normalize(raw)
	}
	if text == "" {
		return pc, errSkipped
	}

	e.text = text
	chunk := &models.ImageChunk{
		Base:         p.base(page, e, seq),
		ImageIndex:   e.index,
		OriginalText: raw,
		ImageBase64:  base64.StdEncoding.EncodeToString(im.Data),
	}
	pc = p.summarize(ctx, chunk)

	if p.deps.Image != nil {
		if vec, ok := p.deps.Image.Embed(ctx, im.Data); ok {
			pc.ImageEmbedding = vec
		}
	}
	return pc, nil
}

// summarize attaches the summary and the embedding of that summary.
func (p *Processor) summarize(ctx context.Context, chunk models.Chunk) models.ProcessedChunk {
	b := chunk.Common()
	summary := p.deps.Summarizer.Summarize(ctx, b.Text, b.Kind)
	return models.ProcessedChunk{
		Chunk:     chunk,
		Summary:   summary,
		Embedding: p.deps.Text.Embed(ctx, summary),
	}
}
