package models

import "time"

// Record is the persisted shape shared by every store backend and the json fallback.
type Record struct {
	// StoreID is assigned by the backend on read.
	StoreID string `json:"-" bson:"-"`

	Text       string       `json:"text" bson:"text"`
	Type       Kind         `json:"type" bson:"type"`
	ChunkID    int          `json:"chunk_id" bson:"chunk_id"`
	Page       int          `json:"page" bson:"page"`
	Position   float64      `json:"position" bson:"position"`
	BBox       *BoundingBox `json:"bbox" bson:"bbox"`
	DocID      string       `json:"doc_id" bson:"doc_id"`
	BlockIndex int          `json:"block_index,omitempty" bson:"block_index,omitempty"`

	ImageIndex   int    `json:"image_index,omitempty" bson:"image_index,omitempty"`
	OriginalText string `json:"original_text,omitempty" bson:"original_text,omitempty"`
	ImprovedText string `json:"improved_text,omitempty" bson:"improved_text,omitempty"`
	ImageBase64  string `json:"image_base64,omitempty" bson:"image_base64,omitempty"`

	TableIndex int `json:"table_index,omitempty" bson:"table_index,omitempty"`

	Summary         string    `json:"summary,omitempty" bson:"summary,omitempty"`
	Embeddings      []float32 `json:"embeddings,omitempty" bson:"embeddings,omitempty"`
	ImageEmbeddings []float32 `json:"image_embeddings,omitempty" bson:"image_embeddings,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ToOriginalRecord flattens a chunk without summary or embeddings.
func ToOriginalRecord(c Chunk) Record {
	b := c.Common()
	r := Record{
		Text:      b.Text,
		Type:      b.Kind,
		ChunkID:   b.SequenceID,
		Page:      b.Page,
		Position:  b.Position,
		BBox:      b.BBox,
		DocID:     b.ExternalID,
		CreatedAt: b.CreatedAt,
	}

	switch v := c.(type) {
	case *TextChunk:
		r.BlockIndex = v.BlockIndex
	case *ImageChunk:
		r.ImageIndex = v.ImageIndex
		r.OriginalText = v.OriginalText
		r.ImprovedText = v.Text
		r.ImageBase64 = v.ImageBase64
	case *TableChunk:
		r.TableIndex = v.TableIndex
	}
	return r
}

// ToProcessedRecord flattens a processed chunk, summary and embeddings included.
func ToProcessedRecord(p ProcessedChunk) Record {
	r := ToOriginalRecord(p.Chunk)
	r.Summary = p.Summary
	r.Embeddings = p.Embedding
	if len(p.ImageEmbedding) > 0 {
		r.ImageEmbeddings = p.ImageEmbedding
	}
	return r
}

// IsProcessed reports whether the record carries summary and embeddings.
func (r Record) IsProcessed() bool {
	return r.Summary != "" && len(r.Embeddings) > 0
}
