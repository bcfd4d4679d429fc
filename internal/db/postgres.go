package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

// Chunk is one row of a per-kind table. Each logical store is a schema.
type Chunk struct {
	bun.BaseModel `bun:"alias:c"`

	ID           int64               `bun:"id,pk,autoincrement"`
	Text         string              `bun:"text,notnull"`
	Type         string              `bun:"type,notnull"`
	ChunkID      int                 `bun:"chunk_id"`
	Page         int                 `bun:"page"`
	Position     float64             `bun:"position"`
	BBox         *models.BoundingBox `bun:"bbox,type:jsonb"`
	DocID        string              `bun:"doc_id"`
	BlockIndex   int                 `bun:"block_index"`
	ImageIndex   int                 `bun:"image_index"`
	OriginalText string              `bun:"original_text"`
	ImprovedText string              `bun:"improved_text"`
	ImageBase64  string              `bun:"image_base64"`
	TableIndex   int                 `bun:"table_index"`
	Summary      string              `bun:"summary"`
	// dimension is left open so text and image vectors of any size fit
	Embeddings      *pgvector.Vector `bun:"embeddings,type:vector"`
	ImageEmbeddings *pgvector.Vector `bun:"image_embeddings,type:vector"`
	CreatedAt       time.Time        `bun:"created_at,notnull"`
}

func toChunk(r models.Record) Chunk {
	c := Chunk{
		Text:         r.Text,
		Type:         string(r.Type),
		ChunkID:      r.ChunkID,
		Page:         r.Page,
		Position:     r.Position,
		BBox:         r.BBox,
		DocID:        r.DocID,
		BlockIndex:   r.BlockIndex,
		ImageIndex:   r.ImageIndex,
		OriginalText: r.OriginalText,
		ImprovedText: r.ImprovedText,
		ImageBase64:  r.ImageBase64,
		TableIndex:   r.TableIndex,
		Summary:      r.Summary,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.Embeddings) > 0 {
		v := pgvector.NewVector(r.Embeddings)
		c.Embeddings = &v
	}
	if len(r.ImageEmbeddings) > 0 {
		v := pgvector.NewVector(r.ImageEmbeddings)
		c.ImageEmbeddings = &v
	}
	return c
}

func (c Chunk) record() models.Record {
	r := models.Record{
		StoreID:      strconv.FormatInt(c.ID, 10),
		Text:         c.Text,
		Type:         models.Kind(c.Type),
		ChunkID:      c.ChunkID,
		Page:         c.Page,
		Position:     c.Position,
		BBox:         c.BBox,
		DocID:        c.DocID,
		BlockIndex:   c.BlockIndex,
		ImageIndex:   c.ImageIndex,
		OriginalText: c.OriginalText,
		ImprovedText: c.ImprovedText,
		ImageBase64:  c.ImageBase64,
		TableIndex:   c.TableIndex,
		Summary:      c.Summary,
		CreatedAt:    c.CreatedAt,
	}
	if c.Embeddings != nil {
		r.Embeddings = c.Embeddings.Slice()
	}
	if c.ImageEmbeddings != nil {
		r.ImageEmbeddings = c.ImageEmbeddings.Slice()
	}
	return r
}

// Postgres stores chunks with bun on top of pgdriver.
type Postgres struct {
	db  *bun.DB
	cfg config.StoreConfig

	mu     sync.Mutex
	tables map[string]bool
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectPostgres(_ context.Context, cfg *config.StoreConfig) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("failed to connect to postgres: empty url")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithDialTimeout(cfg.ConnectTimeout),
	))
	return &Postgres{db: NewDB(sqldb, cfg.Debug), cfg: *cfg, tables: map[string]bool{}}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	return nil
}

func table(schema, name string) (string, []interface{}) {
	return "?.?", []interface{}{bun.Ident(schema), bun.Ident(name)}
}

// ensure creates the vector extension, schema and table on first use.
func (p *Postgres) ensure(ctx context.Context, schema, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := schema + "." + name
	if p.tables[key] {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS ?", bun.Ident(schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	expr, args := table(schema, name)
	_, err := p.db.NewCreateTable().
		Model((*Chunk)(nil)).
		ModelTableExpr(expr, args...).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", key, err)
	}
	p.tables[key] = true
	return nil
}

func (p *Postgres) Clear(ctx context.Context, database, collection string) error {
	if err := p.ensure(ctx, database, collection); err != nil {
		return err
	}
	expr, args := table(database, collection)
	if _, err := p.db.NewTruncateTable().TableExpr(expr, args...).Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear %s.%s: %w", database, collection, err)
	}
	return nil
}

func (p *Postgres) InsertMany(ctx context.Context, database, collection string, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := p.ensure(ctx, database, collection); err != nil {
		return 0, err
	}

	rows := make([]Chunk, len(records))
	for i, r := range records {
		rows[i] = toChunk(r)
	}
	expr, args := table(database, collection)
	if _, err := p.db.NewInsert().Model(&rows).ModelTableExpr(expr, args...).Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to insert into %s.%s: %w", database, collection, err)
	}
	return len(rows), nil
}

func (p *Postgres) FindAll(ctx context.Context, database, collection string) ([]models.Record, error) {
	if err := p.ensure(ctx, database, collection); err != nil {
		return nil, err
	}

	var rows []Chunk
	expr, args := table(database, collection)
	err := p.db.NewSelect().
		Model(&rows).
		ModelTableExpr(expr+" AS c", args...).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", database, collection, err)
	}

	out := make([]models.Record, len(rows))
	for i, c := range rows {
		out[i] = c.record()
	}
	return out, nil
}

func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}
