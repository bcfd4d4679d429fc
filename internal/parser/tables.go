package parser

import (
	"math"
	"sort"
	"strings"

	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

const edgeTolerance = 2.0

// detectRuledTables finds tables drawn as grids of rectangles (cell
// backgrounds or thin rules) and fills the cells with the glyphs inside.
func detectRuledTables(content *pageContent, box pageBox) []Table {
	var rules []rect
	for _, r := range content.Rects {
		// page borders and backgrounds are not tables
		if r.width() > box.width()*0.9 && r.height() > box.height()*0.9 {
			continue
		}
		if r.width() <= 0 && r.height() <= 0 {
			continue
		}
		rules = append(rules, r)
	}

	var tables []Table
	for _, group := range clusterRects(rules) {
		xs, ys := gridEdges(group)
		if len(xs) < 3 || len(ys) < 3 {
			continue
		}
		bounds := group[0]
		for _, r := range group[1:] {
			bounds = bounds.union(r)
		}
		rows := fillGrid(content.Glyphs, xs, ys)
		if len(rows) == 0 {
			continue
		}
		bbox := models.BoundingBox(box.topLeft(bounds))
		tables = append(tables, Table{Rows: rows, BBox: &bbox})
	}

	// top of page first
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].BBox[1] < tables[j].BBox[1]
	})
	return tables
}

// clusterRects groups rectangles that touch, in first-seen order.
func clusterRects(rects []rect) [][]rect {
	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if rects[i].overlaps(rects[j], edgeTolerance) {
				if a, b := find(i), find(j); a != b {
					parent[b] = a
				}
			}
		}
	}

	index := map[int]int{}
	var groups [][]rect
	for i, r := range rects {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], r)
	}
	return groups
}

// gridEdges returns the distinct x and y edges, merged within edgeTolerance.
func gridEdges(rects []rect) ([]float64, []float64) {
	var xs, ys []float64
	for _, r := range rects {
		xs = append(xs, r.x0, r.x1)
		ys = append(ys, r.y0, r.y1)
	}
	return mergeEdges(xs), mergeEdges(ys)
}

func mergeEdges(vals []float64) []float64 {
	sort.Float64s(vals)
	var out []float64
	for _, v := range vals {
		if len(out) > 0 && v-out[len(out)-1] <= edgeTolerance {
			continue
		}
		out = append(out, v)
	}
	return out
}

// fillGrid assigns glyphs to cells by their center. Rows come back top to
// bottom; rows without any text are dropped.
func fillGrid(glyphs []glyph, xs, ys []float64) [][]string {
	cols, rows := len(xs)-1, len(ys)-1
	cells := make([][]*strings.Builder, rows)
	lastY := make([][]float64, rows)
	for r := range cells {
		cells[r] = make([]*strings.Builder, cols)
		lastY[r] = make([]float64, cols)
		for c := range cells[r] {
			cells[r][c] = &strings.Builder{}
			lastY[r][c] = math.NaN()
		}
	}

	for _, g := range glyphs {
		size := glyphSize(g)
		cx, cy := g.X+g.W/2, g.Y+size/3
		c := edgeIndex(xs, cx)
		r := edgeIndex(ys, cy)
		if c < 0 || r < 0 {
			continue
		}
		row := rows - 1 - r
		b := cells[row][c]
		if !math.IsNaN(lastY[row][c]) && math.Abs(lastY[row][c]-g.Y) > size*0.5 && b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(g.S)
		lastY[row][c] = g.Y
	}

	var out [][]string
	for r := range cells {
		row := make([]string, cols)
		empty := true
		for c := range cells[r] {
			row[c] = strings.Join(strings.Fields(cells[r][c].String()), " ")
			if row[c] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

// edgeIndex returns i such that edges[i] <= v < edges[i+1], or -1.
func edgeIndex(edges []float64, v float64) int {
	for i := 0; i+1 < len(edges); i++ {
		if v >= edges[i] && v < edges[i+1] {
			return i
		}
	}
	return -1
}

// detectAlignedTables is the fallback when no ruling is available: runs of
// two or more consecutive lines split into the same number of columns.
func detectAlignedTables(lines []*line) []Table {
	var (
		tables []Table
		run    [][]string
	)
	flush := func() {
		if len(run) >= 2 {
			tables = append(tables, Table{Rows: run})
		}
		run = nil
	}

	for _, l := range lines {
		if len(l.cells) < 2 {
			flush()
			continue
		}
		if len(run) > 0 && len(run[0]) != len(l.cells) {
			flush()
		}
		run = append(run, append([]string(nil), l.cells...))
	}
	flush()
	return tables
}
