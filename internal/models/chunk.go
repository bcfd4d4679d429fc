package models

import (
	"fmt"
	"time"
)

// Kind is the content type of a chunk.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindTable Kind = "table"
)

// Kinds lists every chunk kind in discovery order.
var Kinds = []Kind{KindText, KindImage, KindTable}

// idTag is the kind segment used inside external ids.
func (k Kind) idTag() string {
	if k == KindImage {
		return "img"
	}
	return string(k)
}

// BoundingBox is x0, y0, x1, y1 in page points with a top-left origin.
type BoundingBox [4]float64

// Base holds the fields every chunk kind shares.
type Base struct {
	Kind       Kind
	Page       int
	SequenceID int
	Position   float64
	Text       string
	BBox       *BoundingBox
	ExternalID string
	CreatedAt  time.Time
}

// Chunk is one of *TextChunk, *ImageChunk or *TableChunk.
type Chunk interface {
	Common() *Base
}

type TextChunk struct {
	Base
	BlockIndex int
}

type ImageChunk struct {
	Base
	ImageIndex   int
	OriginalText string
	ImageBase64  string
}

type TableChunk struct {
	Base
	TableIndex int
}

func (c *TextChunk) Common() *Base  { return &c.Base }
func (c *ImageChunk) Common() *Base { return &c.Base }
func (c *TableChunk) Common() *Base { return &c.Base }

// ProcessedChunk pairs a chunk with its summary and the embedding of that summary.
type ProcessedChunk struct {
	Chunk
	Summary        string
	Embedding      []float32
	ImageEmbedding []float32
}

// ExternalID builds doc_{counter}_{page}_{kind}_{index}; index is 1-based.
func ExternalID(counter, page int, kind Kind, index int) string {
	return fmt.Sprintf("doc_%d_%d_%s_%d", counter, page, kind.idTag(), index)
}

// PageResult is everything one page produced, in position order.
type PageResult struct {
	Page       int
	HasContent bool
	Chunks     []Chunk
	Processed  []ProcessedChunk
}

// Count returns the number of chunks of kind on the page.
func (r *PageResult) Count(kind Kind) int {
	n := 0
	for _, c := range r.Chunks {
		if c.Common().Kind == kind {
			n++
		}
	}
	return n
}

// Add appends a chunk and its processed form, keeping both lists aligned.
func (r *PageResult) Add(p ProcessedChunk) {
	r.Chunks = append(r.Chunks, p.Chunk)
	r.Processed = append(r.Processed, p)
	r.HasContent = true
}

// OriginalRecords returns the original records of one kind.
func (r *PageResult) OriginalRecords(kind Kind) []Record {
	var out []Record
	for _, c := range r.Chunks {
		if c.Common().Kind == kind {
			out = append(out, ToOriginalRecord(c))
		}
	}
	return out
}

// ProcessedRecords returns the processed records of one kind.
func (r *PageResult) ProcessedRecords(kind Kind) []Record {
	var out []Record
	for _, p := range r.Processed {
		if p.Common().Kind == kind {
			out = append(out, ToProcessedRecord(p))
		}
	}
	return out
}
