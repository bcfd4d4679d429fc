package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/db"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
	"github.com/Ratchadaporn07043/astrobot/internal/parser"
)

// flakyStore wraps a json store and can fail pings or inserts.
type flakyStore struct {
	*db.JSONStore
	pingErr     error
	insertErr   error
	panicInsert bool
	closed      bool
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.JSONStore.Ping(ctx)
}

func (s *flakyStore) InsertMany(ctx context.Context, database, collection string, records []models.Record) (int, error) {
	if s.panicInsert {
		panic("driver crashed")
	}
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.JSONStore.InsertMany(ctx, database, collection, records)
}

func (s *flakyStore) Close(context.Context) error {
	s.closed = true
	return nil
}

func testDriver(t *testing.T, doc parser.Document, store db.Store) (*Driver, *config.Config) {
	cfg := config.Default()
	cfg.Store.OutputDir = t.TempDir()
	p, _ := newTestProcessor(&cfg.Pipeline)

	d := NewDriver(cfg, p, false)
	d.resolve = func(context.Context, string) (string, func(), error) { return "doc.pdf", func() {}, nil }
	d.open = func(string) (parser.Document, error) { return doc, nil }
	d.connect = func(context.Context) (db.Store, error) { return store, nil }
	return d, cfg
}

func helloDocument() *fakeDocument {
	return &fakeDocument{pages: []fakePage{{blocks: []parser.TextBlock{block("Hello world", 80)}}}}
}

func Test_Run_Incremental(t *testing.T) {
	dir := t.TempDir()
	store := &flakyStore{JSONStore: db.NewJSONStore(dir, "astrobot_original")}
	doc := &fakeDocument{pages: []fakePage{
		{blocks: []parser.TextBlock{block("Hello world", 80)}},
		{},
	}}
	d, _ := testDriver(t, doc, store)

	report, err := d.Run(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateReported, d.State())
	assert.Equal(t, ModeIncremental, report.Mode)
	assert.Equal(t, 2, report.PagesDone)
	assert.Equal(t, []int{2}, report.EmptyPages)
	assert.Equal(t, 1, report.Chunks[models.KindText])
	assert.Equal(t, 1, report.Persisted.Original)
	assert.Equal(t, 1, report.Persisted.Processed)
	assert.NotEmpty(t, report.RunID)
	assert.True(t, doc.closed)
	assert.True(t, store.closed)

	records, err := db.ReadJSON(filepath.Join(dir, "original_text_chunks_original.json"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Hello world", records[0].Text)
	assert.Empty(t, records[0].Summary)

	processed, err := db.ReadJSON(filepath.Join(dir, "processed_text_chunks_processed.json"))
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.True(t, processed[0].IsProcessed())
}

func Test_Run_WriteFailureDoesNotAbort(t *testing.T) {
	store := &flakyStore{JSONStore: db.NewJSONStore(t.TempDir(), "astrobot_original"), insertErr: errors.New("timeout")}
	doc := &fakeDocument{pages: []fakePage{
		{blocks: []parser.TextBlock{block("one", 10)}},
		{blocks: []parser.TextBlock{block("two", 10)}},
	}}
	d, _ := testDriver(t, doc, store)

	report, err := d.Run(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, report.PagesDone)
	assert.Equal(t, 0, report.Persisted.Original)
	assert.Equal(t, 4, report.Persisted.Failed)
	assert.Len(t, report.Errors, 2)
}

func Test_Run_UnreachableStoreWithoutFallbackIsFatal(t *testing.T) {
	store := &flakyStore{JSONStore: db.NewJSONStore(t.TempDir(), "astrobot_original"), pingErr: errors.New("refused")}
	doc := helloDocument()
	d, cfg := testDriver(t, doc, store)
	cfg.Store.JSONFallback = false

	report, err := d.Run(context.Background(), "doc.pdf")
	assert.ErrorIs(t, err, db.ErrStoreUnavailable)
	assert.Equal(t, StateReported, report.State)
	assert.Zero(t, report.PagesDone)
	assert.True(t, doc.closed)
	assert.NotEmpty(t, report.Errors)
}

func Test_Run_UnreachableStoreFallsBackToJSON(t *testing.T) {
	store := &flakyStore{JSONStore: db.NewJSONStore(t.TempDir(), "astrobot_original"), pingErr: errors.New("refused")}
	d, cfg := testDriver(t, helloDocument(), store)

	report, err := d.Run(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, report.Mode)
	assert.Equal(t, 1, report.Persisted.Original)
	assert.Contains(t, report.Persisted.JSONFiles, filepath.Join(cfg.Store.OutputDir, "original_text_chunks_original.json"))
}

func Test_Run_Batch(t *testing.T) {
	dir := t.TempDir()
	store := &flakyStore{JSONStore: db.NewJSONStore(dir, "astrobot_original")}
	d, cfg := testDriver(t, helloDocument(), store)
	cfg.Pipeline.Incremental = false

	report, err := d.Run(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, report.Mode)
	assert.Equal(t, 1, report.Persisted.Processed)
	assert.Empty(t, report.Persisted.JSONFiles)
}

func Test_Run_DryRun(t *testing.T) {
	store := &flakyStore{JSONStore: db.NewJSONStore(t.TempDir(), "astrobot_original"), panicInsert: true}
	d, _ := testDriver(t, helloDocument(), store)
	d.dryRun = true

	report, err := d.Run(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, ModeDryRun, report.Mode)
	assert.Equal(t, 1, report.Chunks[models.KindText])
	assert.Zero(t, report.Persisted.Original)
}

func Test_Run_OpenFailure(t *testing.T) {
	d, _ := testDriver(t, nil, nil)
	d.open = func(string) (parser.Document, error) { return nil, errors.New("not a pdf") }

	report, err := d.Run(context.Background(), "doc.pdf")
	assert.Error(t, err)
	assert.Equal(t, StateReported, report.State)
	assert.Zero(t, report.Pages)
}

func Test_Run_PanicClosesAndReports(t *testing.T) {
	store := &flakyStore{JSONStore: db.NewJSONStore(t.TempDir(), "astrobot_original"), panicInsert: true}
	doc := helloDocument()
	d, _ := testDriver(t, doc, store)

	report, err := d.Run(context.Background(), "doc.pdf")
	assert.Error(t, err)
	assert.Equal(t, StateReported, report.State)
	assert.Equal(t, 1, report.PagesDone)
	assert.True(t, doc.closed)
	assert.True(t, store.closed)
}

func Test_Report_JSON(t *testing.T) {
	r := Report{State: StateClosed, Chunks: map[models.Kind]int{models.KindText: 2}}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"CLOSED"`)
	assert.Contains(t, string(data), `"text":2`)
}
