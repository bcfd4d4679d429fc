package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

var ErrStoreUnavailable = errors.New("store unavailable and json fallback disabled")

// Counts is what a write actually persisted.
type Counts struct {
	Original  int      `json:"original"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	JSONFiles []string `json:"json_files,omitempty"`
}

func (c *Counts) Add(o Counts) {
	c.Original += o.Original
	c.Processed += o.Processed
	c.Failed += o.Failed
	c.JSONFiles = append(c.JSONFiles, o.JSONFiles...)
}

// target is one collection of one logical store.
type target struct {
	database   string
	collection string
	suffix     string
	processed  bool
	records    []models.Record
}

// Writer persists page results into the original and processed stores.
type Writer struct {
	store   Store
	cfg     *config.StoreConfig
	cleared bool
	now     func() time.Time
}

// NewWriter wraps store, which may be nil when no backend could be opened.
func NewWriter(store Store, cfg *config.StoreConfig) *Writer {
	return &Writer{store: store, cfg: cfg, now: time.Now}
}

func (w *Writer) stamp(records []models.Record) {
	now := w.now().UTC()
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}
}

func (w *Writer) targets(pages ...*models.PageResult) []target {
	var out []target
	for _, kind := range models.Kinds {
		orig := target{database: w.cfg.OriginalDB, collection: models.OriginalCollection(kind), suffix: models.OriginalFileSuffix}
		proc := target{database: w.cfg.ProcessedDB, collection: models.ProcessedCollection(kind), suffix: models.ProcessedFileSuffix, processed: true}
		for _, p := range pages {
			orig.records = append(orig.records, p.OriginalRecords(kind)...)
			proc.records = append(proc.records, p.ProcessedRecords(kind)...)
		}
		w.stamp(orig.records)
		w.stamp(proc.records)
		out = append(out, orig, proc)
	}
	return out
}

func (c *Counts) persisted(t target, n int) {
	if t.processed {
		c.Processed += n
	} else {
		c.Original += n
	}
}

// WritePage inserts one page's records. The first call clears all six
// collections. Failed inserts are logged and counted, never returned.
func (w *Writer) WritePage(ctx context.Context, page *models.PageResult) Counts {
	var counts Counts
	if w.store == nil {
		return counts
	}

	if !w.cleared {
		w.cleared = true
		if err := ClearAll(ctx, w.store, w.cfg); err != nil {
			log.Error().Err(err).Msg("Error clearing collections")
		}
	}

	for _, t := range w.targets(page) {
		if len(t.records) == 0 {
			continue
		}
		n, err := w.store.InsertMany(ctx, t.database, t.collection, t.records)
		if err != nil {
			log.Error().Err(err).Int("page", page.Page).Str("collection", t.collection).Msg("Error writing page")
			counts.Failed += len(t.records)
			continue
		}
		counts.persisted(t, n)
		log.Debug().Int("page", page.Page).Str("collection", t.collection).Int("records", n).Msg("Stored records")
	}
	return counts
}

// WriteDocument replaces every collection with the records of all pages.
// Collections the store can't take go to json files when the fallback is
// enabled; otherwise ErrStoreUnavailable is returned.
func (w *Writer) WriteDocument(ctx context.Context, pages []*models.PageResult) (Counts, error) {
	var counts Counts

	reachable := w.store != nil
	if reachable {
		if err := w.store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Store unreachable")
			reachable = false
		}
	}

	var errs []error
	for _, t := range w.targets(pages...) {
		if reachable {
			n, err := w.replace(ctx, t)
			if err == nil {
				counts.persisted(t, n)
				continue
			}
			log.Error().Err(err).Str("collection", t.collection).Msg("Error writing collection")
		}

		if len(t.records) == 0 {
			continue
		}
		if !w.cfg.JSONFallback {
			counts.Failed += len(t.records)
			errs = append(errs, fmt.Errorf("%w: %s", ErrStoreUnavailable, t.collection))
			continue
		}
		path, err := WriteJSON(w.cfg.OutputDir, t.collection, t.suffix, t.records)
		if err != nil {
			log.Error().Err(err).Str("collection", t.collection).Msg("Error writing json fallback")
			counts.Failed += len(t.records)
			errs = append(errs, err)
			continue
		}
		log.Info().Str("file", path).Int("records", len(t.records)).Msg("Wrote json fallback")
		counts.persisted(t, len(t.records))
		counts.JSONFiles = append(counts.JSONFiles, path)
	}
	return counts, errors.Join(errs...)
}

func (w *Writer) replace(ctx context.Context, t target) (int, error) {
	if err := w.store.Clear(ctx, t.database, t.collection); err != nil {
		return 0, err
	}
	return w.store.InsertMany(ctx, t.database, t.collection, t.records)
}
