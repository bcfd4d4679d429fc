package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/db"
	"github.com/Ratchadaporn07043/astrobot/internal/fetch"
	"github.com/Ratchadaporn07043/astrobot/internal/helper"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
	"github.com/Ratchadaporn07043/astrobot/internal/parser"
)

// State is the lifecycle of one run.
type State int

const (
	StateNotStarted State = iota
	StateProcessing
	StateClosed
	StateReported
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateProcessing:
		return "PROCESSING"
	case StateClosed:
		return "CLOSED"
	case StateReported:
		return "REPORTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	ModeIncremental = "incremental"
	ModeBatch       = "batch"
	ModeDryRun      = "dry-run"
)

// Report summarizes a run, including runs that failed half way.
type Report struct {
	RunID      string              `json:"run_id"`
	Source     string              `json:"source"`
	Mode       string              `json:"mode"`
	State      State               `json:"state"`
	Pages      int                 `json:"pages"`
	PagesDone  int                 `json:"pages_done"`
	EmptyPages []int               `json:"empty_pages,omitempty"`
	Chunks     map[models.Kind]int `json:"chunks"`
	Persisted  db.Counts           `json:"persisted"`
	Errors     []string            `json:"errors,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// Driver runs one document through the processor and the store writer.
type Driver struct {
	cfg       *config.Config
	processor *Processor
	dryRun    bool

	resolve func(ctx context.Context, src string) (string, func(), error)
	open    func(path string) (parser.Document, error)
	connect func(ctx context.Context) (db.Store, error)

	state State
}

func NewDriver(cfg *config.Config, processor *Processor, dryRun bool) *Driver {
	return &Driver{
		cfg:       cfg,
		processor: processor,
		dryRun:    dryRun,
		resolve: func(ctx context.Context, src string) (string, func(), error) {
			return fetch.Resolve(ctx, src, &cfg.Source)
		},
		open: func(path string) (parser.Document, error) {
			return parser.Open(path)
		},
		connect: func(ctx context.Context) (db.Store, error) {
			return db.Connect(ctx, &cfg.Store)
		},
	}
}

func (d *Driver) State() State { return d.state }

// Run ingests src page by page. The report is always returned; the error is
// set when the run could not start or stopped early.
func (d *Driver) Run(ctx context.Context, src string) (*Report, error) {
	d.state = StateNotStarted
	report := &Report{Source: src, Chunks: map[models.Kind]int{}, StartedAt: time.Now().UTC()}
	if id, err := helper.GenerateUUID(); err == nil {
		report.RunID = id
	}
	logger := log.With().Str("run_id", report.RunID).Logger()

	finish := func(err error) (*Report, error) {
		if err != nil {
			report.fail(err)
		}
		d.state = StateReported
		report.State = d.state
		report.FinishedAt = time.Now().UTC()
		logger.Info().
			Int("pages", report.PagesDone).
			Int("original", report.Persisted.Original).
			Int("processed", report.Persisted.Processed).
			Int("failed", report.Persisted.Failed).
			Int("errors", len(report.Errors)).
			Msg("Run finished")
		return report, err
	}

	path, cleanup, err := d.resolve(ctx, src)
	if err != nil {
		d.state = StateClosed
		return finish(fmt.Errorf("failed to fetch source: %w", err))
	}
	defer cleanup()

	doc, err := d.open(path)
	if err != nil {
		d.state = StateClosed
		return finish(fmt.Errorf("failed to open document: %w", err))
	}
	report.Pages = doc.NumPages()

	store, mode, err := d.openStore(ctx, logger)
	if err != nil {
		d.close(ctx, logger, doc, nil)
		return finish(err)
	}
	report.Mode = mode
	writer := db.NewWriter(store, &d.cfg.Store)

	d.state = StateProcessing
	logger.Info().Str("source", src).Int("pages", report.Pages).Str("mode", mode).Msg("Run started")
	runErr := d.process(ctx, logger, doc, writer, mode, report)

	d.close(ctx, logger, doc, store)
	return finish(runErr)
}

// openStore picks the write mode. An unreachable store switches to the json
// fallback when allowed and is fatal otherwise.
func (d *Driver) openStore(ctx context.Context, logger zerolog.Logger) (db.Store, string, error) {
	if d.dryRun {
		return nil, ModeDryRun, nil
	}
	mode := ModeBatch
	if d.cfg.Pipeline.Incremental {
		mode = ModeIncremental
	}

	store, err := d.connect(ctx)
	if err == nil {
		if err = store.Ping(ctx); err != nil {
			_ = store.Close(ctx)
		}
	}
	if err == nil {
		return store, mode, nil
	}

	if !d.cfg.Store.JSONFallback {
		return nil, mode, fmt.Errorf("%w: %v", db.ErrStoreUnavailable, err)
	}
	logger.Warn().Err(err).Str("dir", d.cfg.Store.OutputDir).Msg("Store unreachable, writing json files")
	return nil, ModeBatch, nil
}

func (d *Driver) process(ctx context.Context, logger zerolog.Logger, doc parser.Document, writer *db.Writer, mode string, report *Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run aborted: %v", r)
			logger.Error().Interface("panic", r).Int("pages_done", report.PagesDone).Msg("Run aborted")
		}
	}()

	var pages []*models.PageResult
	for page := 1; page <= report.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := d.processor.ProcessPage(ctx, doc, page)
		report.PagesDone++
		if !result.HasContent {
			report.EmptyPages = append(report.EmptyPages, page)
		}
		for _, kind := range models.Kinds {
			report.Chunks[kind] += result.Count(kind)
		}

		switch mode {
		case ModeIncremental:
			counts := writer.WritePage(ctx, result)
			report.Persisted.Add(counts)
			if counts.Failed > 0 {
				report.fail(fmt.Errorf("page %d: %d records not stored", page, counts.Failed))
			}
		case ModeBatch:
			pages = append(pages, result)
		}
	}

	if mode != ModeBatch {
		return nil
	}
	counts, err := writer.WriteDocument(ctx, pages)
	report.Persisted.Add(counts)
	return err
}

func (d *Driver) close(ctx context.Context, logger zerolog.Logger, doc parser.Document, store db.Store) {
	var errs []error
	if doc != nil {
		errs = append(errs, doc.Close())
	}
	if store != nil {
		errs = append(errs, store.Close(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn().Err(err).Msg("Error closing resources")
	}
	d.state = StateClosed
}
