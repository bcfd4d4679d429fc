package parser

import (
	"math"
	"strings"

	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

const (
	defaultFontSize = 10
	// gaps relative to font size
	wordGap   = 0.25
	columnGap = 2.0
	lineGap   = 2.0
)

// line is a sequence of glyphs on one baseline. cells splits the line at
// gaps wide enough to look like table columns.
type line struct {
	cells     []string
	x0, x1, y float64
	size      float64
	lastX1    float64
}

func (l *line) text() string {
	return strings.Join(l.cells, " ")
}

func (l *line) bounds() rect {
	return rect{l.x0, l.y - l.size*0.2, l.x1, l.y + l.size}
}

func glyphSize(g glyph) float64 {
	if g.Size <= 0 {
		return defaultFontSize
	}
	return g.Size
}

// buildLines groups glyphs in content stream order. A new line starts when
// the baseline moves or the pen jumps back to the left.
func buildLines(glyphs []glyph) []*line {
	var (
		lines []*line
		cur   *line
	)
	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" || g.S == "\r" {
			continue
		}
		size := glyphSize(g)
		newLine := cur == nil ||
			math.Abs(g.Y-cur.y) > math.Max(1, size*0.5) ||
			g.X < cur.lastX1-size*columnGap*2

		if newLine {
			if g.S == " " {
				continue
			}
			cur = &line{cells: []string{g.S}, x0: g.X, x1: g.X + g.W, y: g.Y, size: size}
			cur.lastX1 = g.X + g.W
			lines = append(lines, cur)
			continue
		}

		last := len(cur.cells) - 1
		gap := g.X - cur.lastX1
		switch {
		case g.S == " ":
			if !strings.HasSuffix(cur.cells[last], " ") {
				cur.cells[last] += " "
			}
		case gap > size*columnGap:
			cur.cells[last] = strings.TrimSpace(cur.cells[last])
			cur.cells = append(cur.cells, g.S)
		case gap > size*wordGap && !strings.HasSuffix(cur.cells[last], " "):
			cur.cells[last] += " " + g.S
		default:
			cur.cells[last] += g.S
		}

		cur.x0 = math.Min(cur.x0, g.X)
		cur.x1 = math.Max(cur.x1, g.X+g.W)
		cur.lastX1 = g.X + g.W
		cur.size = math.Max(cur.size, size)
	}

	for _, l := range lines {
		for i := range l.cells {
			l.cells[i] = strings.TrimSpace(l.cells[i])
		}
	}
	return lines
}

// buildBlocks merges consecutive lines into blocks while they keep moving
// down the page by about one line height and overlap horizontally.
func buildBlocks(lines []*line, box pageBox) []TextBlock {
	var (
		blocks []TextBlock
		texts  []string
		bounds rect
		prev   *line
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(texts, "\n"))
		if text != "" {
			blocks = append(blocks, TextBlock{Text: text, BBox: models.BoundingBox(box.topLeft(bounds))})
		}
		texts = nil
	}

	for _, l := range lines {
		lt := l.text()
		if lt == "" {
			continue
		}
		lb := l.bounds()
		if prev != nil {
			drop := prev.y - l.y
			sameBlock := drop > 0 &&
				drop <= prev.size*lineGap &&
				lb.x0 <= bounds.x1 && bounds.x0 <= lb.x1
			if !sameBlock {
				flush()
			}
		}
		if len(texts) == 0 {
			bounds = lb
		} else {
			bounds = bounds.union(lb)
		}
		texts = append(texts, lt)
		prev = l
	}
	flush()
	return blocks
}
