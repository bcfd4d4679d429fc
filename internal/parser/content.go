package parser

import (
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"
)

type matrix [3][3]float64

var identity = matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func (x matrix) mul(y matrix) matrix {
	var z matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				z[i][j] += x[i][k] * y[k][j]
			}
		}
	}
	return z
}

func (x matrix) apply(px, py float64) (float64, float64) {
	return px*x[0][0] + py*x[1][0] + x[2][0], px*x[0][1] + py*x[1][1] + x[2][1]
}

func translate(tx, ty float64) matrix {
	return matrix{{1, 0, 0}, {0, 1, 0}, {tx, ty, 1}}
}

func toMatrix(v []pdf.Value) matrix {
	var m matrix
	for i := 0; i < 6; i++ {
		m[i/2][i%2] = v[i].Float64()
	}
	m[2][2] = 1
	return m
}

// glyph is one decoded character at its baseline origin in pdf user space.
type glyph struct {
	S    string
	X, Y float64
	W    float64
	Size float64
}

// rect is normalized so x0 <= x1 and y0 <= y1, pdf user space.
type rect struct {
	x0, y0, x1, y1 float64
}

func (r rect) width() float64  { return r.x1 - r.x0 }
func (r rect) height() float64 { return r.y1 - r.y0 }

func (r rect) overlaps(o rect, tol float64) bool {
	return r.x0-tol <= o.x1 && o.x0-tol <= r.x1 && r.y0-tol <= o.y1 && o.y0-tol <= r.y1
}

func (r rect) union(o rect) rect {
	return rect{math.Min(r.x0, o.x0), math.Min(r.y0, o.y0), math.Max(r.x1, o.x1), math.Max(r.y1, o.y1)}
}

// transformed maps the unit square or a path rectangle through m.
func transformed(m matrix, x, y, w, h float64) rect {
	r := rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range [][2]float64{{x, y}, {x + w, y}, {x, y + h}, {x + w, y + h}} {
		px, py := m.apply(c[0], c[1])
		r.x0, r.y0 = math.Min(r.x0, px), math.Min(r.y0, py)
		r.x1, r.y1 = math.Max(r.x1, px), math.Max(r.y1, py)
	}
	return r
}

// placement is where an image XObject was painted.
type placement struct {
	Name string
	Rect rect
}

type pageContent struct {
	Glyphs     []glyph
	Rects      []rect
	Placements []placement
}

type gstate struct {
	Tc, Tw, Th, Tl, Tfs, Trise float64
	font                       pdf.Font
	enc                        pdf.TextEncoding
	Tm, Tlm, CTM               matrix
}

// rawEncoding is used for fonts without a usable encoding.
type rawEncoding struct{}

func (rawEncoding) Decode(raw string) string { return raw }

const maxFormDepth = 4

type contentWalker struct {
	out   *pageContent
	g     gstate
	stack []gstate
	depth int
}

// readContent runs the page's content streams, following the CTM so text,
// ruling rectangles and image placements share one coordinate space.
// Whatever was collected before a failure is returned with the error.
func readContent(p pdf.Page) (content *pageContent, err error) {
	content = &pageContent{}
	w := &contentWalker{
		out: content,
		g:   gstate{Th: 1, Tm: identity, Tlm: identity, CTM: identity},
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to interpret page content: %v", r)
		}
	}()

	contents := p.V.Key("Contents")
	resources := p.Resources()
	switch contents.Kind() {
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			w.interpret(contents.Index(i), resources)
		}
	case pdf.Stream:
		w.interpret(contents, resources)
	}
	return content, nil
}

func (w *contentWalker) interpret(strm, res pdf.Value) {
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		w.op(op, args, res)
	})
}

func (w *contentWalker) op(op string, args []pdf.Value, res pdf.Value) {
	g := &w.g
	switch op {
	case "q":
		w.stack = append(w.stack, *g)
	case "Q":
		if n := len(w.stack); n > 0 {
			*g = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case "cm":
		if len(args) == 6 {
			g.CTM = toMatrix(args).mul(g.CTM)
		}
	case "re":
		if len(args) == 4 {
			w.out.Rects = append(w.out.Rects, transformed(g.CTM,
				args[0].Float64(), args[1].Float64(), args[2].Float64(), args[3].Float64()))
		}
	case "Do":
		if len(args) == 1 {
			w.doXObject(args[0].Name(), res)
		}
	case "BT":
		g.Tm, g.Tlm = identity, identity
	case "Tf":
		if len(args) == 2 {
			g.font = pdf.Font{V: res.Key("Font").Key(args[0].Name())}
			g.enc = g.font.Encoder()
			g.Tfs = args[1].Float64()
		}
	case "Tc":
		if len(args) == 1 {
			g.Tc = args[0].Float64()
		}
	case "Tw":
		if len(args) == 1 {
			g.Tw = args[0].Float64()
		}
	case "TL":
		if len(args) == 1 {
			g.Tl = args[0].Float64()
		}
	case "Tz":
		if len(args) == 1 {
			g.Th = args[0].Float64() / 100
		}
	case "Ts":
		if len(args) == 1 {
			g.Trise = args[0].Float64()
		}
	case "Tm":
		if len(args) == 6 {
			g.Tm = toMatrix(args)
			g.Tlm = g.Tm
		}
	case "TD":
		if len(args) == 2 {
			g.Tl = -args[1].Float64()
		}
		fallthrough
	case "Td":
		if len(args) == 2 {
			g.Tlm = translate(args[0].Float64(), args[1].Float64()).mul(g.Tlm)
			g.Tm = g.Tlm
		}
	case "T*":
		w.nextLine()
	case "Tj":
		if len(args) == 1 {
			w.showText(args[0].RawString())
		}
	case "'":
		if len(args) == 1 {
			w.nextLine()
			w.showText(args[0].RawString())
		}
	case "\"":
		if len(args) == 3 {
			g.Tw = args[0].Float64()
			g.Tc = args[1].Float64()
			w.nextLine()
			w.showText(args[2].RawString())
		}
	case "TJ":
		if len(args) != 1 {
			return
		}
		v := args[0]
		for i := 0; i < v.Len(); i++ {
			x := v.Index(i)
			if x.Kind() == pdf.String {
				w.showText(x.RawString())
				continue
			}
			tx := -x.Float64() / 1000 * g.Tfs * g.Th
			g.Tm = translate(tx, 0).mul(g.Tm)
		}
	}
}

func (w *contentWalker) nextLine() {
	w.g.Tlm = translate(0, -w.g.Tl).mul(w.g.Tlm)
	w.g.Tm = w.g.Tlm
}

func (w *contentWalker) showText(raw string) {
	g := &w.g
	enc := g.enc
	if enc == nil {
		enc = rawEncoding{}
	}

	chars := []rune(enc.Decode(raw))
	step := codeWidth(raw, len(chars))
	for n, ch := range chars {
		var w0 float64
		if code, ok := charCode(raw, n, step); ok && !g.font.V.IsNull() {
			w0 = g.font.Width(code)
		}
		if w0 == 0 {
			// fonts without a widths array; assume half an em
			w0 = 500
		}

		trm := matrix{{g.Tfs * g.Th, 0, 0}, {0, g.Tfs, 0}, {0, g.Trise, 1}}.mul(g.Tm).mul(g.CTM)
		w.out.Glyphs = append(w.out.Glyphs, glyph{
			S:    string(ch),
			X:    trm[2][0],
			Y:    trm[2][1],
			W:    w0 / 1000 * trm[0][0],
			Size: math.Hypot(trm[1][0], trm[1][1]),
		})

		tx := w0/1000*g.Tfs + g.Tc
		if ch == ' ' {
			tx += g.Tw
		}
		g.Tm = translate(tx*g.Th, 0).mul(g.Tm)
	}
}

// codeWidth is the number of bytes per character code. Two-byte fonts
// (Type0, Identity-H) decode to half as many characters as raw bytes.
func codeWidth(raw string, chars int) int {
	if chars == 0 || len(raw) <= chars || len(raw)%chars != 0 {
		return 1
	}
	return len(raw) / chars
}

// charCode reads the big-endian code of the n-th character.
func charCode(raw string, n, step int) (int, bool) {
	start := n * step
	if start+step > len(raw) {
		return 0, false
	}
	code := 0
	for i := start; i < start+step; i++ {
		code = code<<8 | int(raw[i])
	}
	return code, true
}

func (w *contentWalker) doXObject(name string, res pdf.Value) {
	xobj := res.Key("XObject").Key(name)
	switch xobj.Key("Subtype").Name() {
	case "Image":
		w.out.Placements = append(w.out.Placements, placement{
			Name: name,
			Rect: transformed(w.g.CTM, 0, 0, 1, 1),
		})
	case "Form":
		if w.depth >= maxFormDepth {
			return
		}
		saved := w.g
		savedStack := len(w.stack)
		if m := xobj.Key("Matrix"); m.Len() == 6 {
			vals := make([]pdf.Value, 6)
			for i := range vals {
				vals[i] = m.Index(i)
			}
			w.g.CTM = toMatrix(vals).mul(w.g.CTM)
		}
		formRes := xobj.Key("Resources")
		if formRes.IsNull() {
			formRes = res
		}
		w.depth++
		w.interpret(xobj, formRes)
		w.depth--
		w.g = saved
		w.stack = w.stack[:savedStack]
	}
}

// pageBox is the page's media box in pdf user space.
type pageBox struct {
	x0, y0, x1, y1 float64
}

func (b pageBox) width() float64  { return b.x1 - b.x0 }
func (b pageBox) height() float64 { return b.y1 - b.y0 }

// topLeft converts a pdf-space rectangle to a top-left origin bounding box.
func (b pageBox) topLeft(r rect) [4]float64 {
	return [4]float64{r.x0 - b.x0, b.y1 - r.y1, r.x1 - b.x0, b.y1 - r.y0}
}

// mediaBox walks up the page tree since the box is inheritable. US letter
// is assumed when nothing is set.
func mediaBox(p pdf.Page) pageBox {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if mb := v.Key("MediaBox"); mb.Len() == 4 {
			x0, y0 := mb.Index(0).Float64(), mb.Index(1).Float64()
			x1, y1 := mb.Index(2).Float64(), mb.Index(3).Float64()
			return pageBox{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
		}
	}
	return pageBox{0, 0, 612, 792}
}
