// Package rag ranks processed chunks against a question.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/db"
	"github.com/Ratchadaporn07043/astrobot/internal/embedding"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

// FallbackAnswer is what the chatbot says when retrieval can't help.
const FallbackAnswer = "ขออภัยค่ะ ระบบไม่พบข้อมูลที่เกี่ยวข้อง กรุณาลองถามใหม่อีกครั้งค่ะ"

var (
	ErrEmptyQuery    = errors.New("empty query")
	ErrNoCollections = errors.New("no collection could be searched")
)

// Match is one ranked record from a processed collection.
type Match struct {
	Collection     string      `json:"collection"`
	Page           int         `json:"page"`
	Kind           models.Kind `json:"type"`
	ChunkID        int         `json:"chunk_id"`
	ExternalID     string      `json:"doc_id"`
	StoreID        string      `json:"store_id,omitempty"`
	Text           string      `json:"text"`
	Summary        string      `json:"summary"`
	Similarity     float64     `json:"similarity"`
	BelowThreshold bool        `json:"below_threshold"`
}

// Source labels the match for the answer footer.
func (m Match) Source() string {
	return fmt.Sprintf("[%s] หน้า %d Chunk %d (%s)", m.Collection, m.Page, m.ChunkID, m.Kind)
}

// Accepted drops the matches flagged below the threshold.
func Accepted(matches []Match) []Match {
	var out []Match
	for _, m := range matches {
		if !m.BelowThreshold {
			out = append(out, m)
		}
	}
	return out
}

type Retriever struct {
	store    db.Store
	embedder embedding.TextEmbedder
	database string
	cfg      *config.RetrievalConfig
}

// NewRetriever searches the processed collections of database.
func NewRetriever(store db.Store, embedder embedding.TextEmbedder, database string, cfg *config.RetrievalConfig) *Retriever {
	return &Retriever{store: store, embedder: embedder, database: database, cfg: cfg}
}

// Retrieve returns the top matches of every processed collection in
// text, image, table order. Matches at or under the threshold are flagged,
// not dropped.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	qv := r.embedder.Embed(ctx, query)

	results := make([][]Match, len(models.Kinds))
	failures := make([]error, len(models.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.Kinds {
		g.Go(func() error {
			coll := models.ProcessedCollection(kind)
			records, err := r.store.FindAll(gctx, r.database, coll)
			if err != nil {
				log.Warn().Err(err).Str("collection", coll).Msg("Skipping collection")
				failures[i] = err
				return nil
			}
			results[i] = r.rank(coll, qv, records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		matches []Match
		failed  int
	)
	for i := range results {
		if failures[i] != nil {
			failed++
		}
		matches = append(matches, results[i]...)
	}
	if failed == len(models.Kinds) {
		return nil, fmt.Errorf("%w: %w", ErrNoCollections, errors.Join(failures...))
	}

	log.Debug().Str("query", query).Int("matches", len(matches)).Int("accepted", len(Accepted(matches))).Msg("Retrieved")
	return matches, nil
}

func (r *Retriever) rank(coll string, qv []float32, records []models.Record) []Match {
	var matches []Match
	for _, rec := range records {
		if len(rec.Embeddings) == 0 {
			continue
		}
		if len(rec.Embeddings) != len(qv) {
			log.Debug().Str("collection", coll).Str("doc_id", rec.DocID).Msg("Embedding size mismatch")
			continue
		}
		sim := Cosine(qv, rec.Embeddings)
		matches = append(matches, Match{
			Collection:     coll,
			Page:           rec.Page,
			Kind:           rec.Type,
			ChunkID:        rec.ChunkID,
			ExternalID:     rec.DocID,
			StoreID:        rec.StoreID,
			Text:           rec.Text,
			Summary:        rec.Summary,
			Similarity:     sim,
			BelowThreshold: sim <= r.cfg.Threshold,
		})
	}

	// equal scores keep the order the store returned them in
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > r.cfg.TopK {
		matches = matches[:r.cfg.TopK]
	}
	return matches
}

// Cosine is 0 when either vector has zero length. Extra dimensions of the
// longer vector are ignored.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
