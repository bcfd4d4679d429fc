package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

var (
	// ErrNoTableStructure means ruled table detection can't run on the page;
	// callers fall back to SimpleTables.
	ErrNoTableStructure = errors.New("table structure unavailable")
	ErrPageNotFound     = errors.New("page not found")
)

// TextBlock is a run of lines that belong together, positioned with a
// top-left page origin.
type TextBlock struct {
	Text string
	BBox models.BoundingBox
}

// Table holds cell text row by row. BBox is nil when the table was found
// without geometry.
type Table struct {
	Rows [][]string
	BBox *models.BoundingBox
}

// Text renders the table as " | " separated cells, one row per line.
func (t Table) Text() string {
	var b strings.Builder
	for _, row := range t.Rows {
		b.WriteString(strings.Join(row, models.TableCellSep))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// Document is the per-page view of a source document the pipeline needs.
type Document interface {
	NumPages() int
	TextBlocks(page int) ([]TextBlock, error)
	Images(page int) ([]Image, error)
	Tables(page int) ([]Table, error)
	SimpleTables(page int) ([]Table, error)
	Close() error
}

// PDF reads text and geometry with ledongthuc/pdf and embedded images with pdfcpu.
type PDF struct {
	path   string
	file   *os.File
	reader *pdf.Reader

	mu       sync.Mutex
	lastPage int
	content  *pageContent
	box      pageBox
}

// Open opens the pdf at path.
func Open(path string) (*PDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	reader, err := newReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pdf %s: %w", path, err)
	}

	return &PDF{path: path, file: f, reader: reader}, nil
}

// ledongthuc/pdf panics on some malformed files
func newReader(f *os.File, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReader(f, size)
}

func (d *PDF) Path() string { return d.path }

func (d *PDF) NumPages() int {
	return d.reader.NumPage()
}

func (d *PDF) Close() error {
	return d.file.Close()
}

// pageContent parses the page once and keeps it until another page is asked for.
func (d *PDF) pageContent(num int) (*pageContent, pageBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.content != nil && d.lastPage == num {
		return d.content, d.box, nil
	}

	p := d.reader.Page(num)
	if p.V.IsNull() {
		return nil, pageBox{}, fmt.Errorf("page %d: %w", num, ErrPageNotFound)
	}

	box := mediaBox(p)
	content, err := readContent(p)
	if err != nil {
		log.Debug().Err(err).Int("page", num).Msg("Partial page content")
		return content, box, err
	}

	d.lastPage, d.content, d.box = num, content, box
	return content, box, nil
}

func (d *PDF) TextBlocks(page int) ([]TextBlock, error) {
	content, box, err := d.pageContent(page)
	if content == nil {
		return nil, err
	}
	// a partially read page still yields the text seen before the failure
	blocks := buildBlocks(buildLines(content.Glyphs), box)
	return blocks, err
}

func (d *PDF) Tables(page int) ([]Table, error) {
	content, box, err := d.pageContent(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTableStructure, err)
	}
	return detectRuledTables(content, box), nil
}

func (d *PDF) SimpleTables(page int) ([]Table, error) {
	content, _, err := d.pageContent(page)
	if content == nil {
		return nil, err
	}
	return detectAlignedTables(buildLines(content.Glyphs)), nil
}
