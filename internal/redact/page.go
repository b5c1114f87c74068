package redact

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/dharsanguruparan/DocScrub/internal/model"
	pdfutil "github.com/dharsanguruparan/DocScrub/internal/pdf"
)

// Glyph boxes are approximated from the baseline and font size.
const (
	ascent  = 0.8
	descent = 0.2
	// lineTolerance is the baseline drift, as a fraction of the font size,
	// still treated as the same line.
	lineTolerance = 0.3
	// wordGap is the horizontal gap, as a fraction of the font size, that
	// reads as a space when the content stream positions words explicitly.
	wordGap = 0.15
	// columnGap is the gap, in ems, that separates two columns sharing a
	// baseline.
	columnGap = 3.0
)

// Rect is an axis-aligned region in PDF user space.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

func (r Rect) contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

func glyphBox(g pdfutil.Glyph) Rect {
	return Rect{X0: g.X, Y0: g.Y - descent*g.Size, X1: g.X + g.W, Y1: g.Y + ascent*g.Size}
}

type opKind int

const (
	opCover opKind = iota
	opText
)

type op struct {
	kind opKind
	rect Rect
	x, y float64
	size float64
	text []rune
	// hidden marks characters of text that a later cover painted over.
	hidden []bool
}

// glyph is a piece of visible text. Text inserted by the engine keeps the
// index of the op that drew it so each insertion reads as its own unit and
// can be trimmed when a later pair covers part of it.
type glyph struct {
	pdfutil.Glyph
	run int // index into ops, or -1 for the page's own text
	pos int // character index within the op's text
}

// page is the working copy of one page: the text currently visible on it and
// the drawing operations that produced the difference from the original.
type page struct {
	glyphs []glyph
	ops    []op
}

func newPage(glyphs []pdfutil.Glyph) *page {
	p := &page{glyphs: make([]glyph, 0, len(glyphs))}
	for _, g := range glyphs {
		p.glyphs = append(p.glyphs, glyph{Glyph: g, run: -1})
	}
	return p
}

// apply runs every pair against the page in order and returns the number of
// regions replaced.
func (p *page) apply(pairs model.Replacements, fontSize float64) int {
	replaced := 0
	for _, pair := range pairs {
		if pair.Old == "" {
			continue
		}
		rects := p.search(pair.Old)
		if len(rects) == 0 {
			continue
		}
		// All covers for the pair land before any insertion so the new text
		// is drawn on a clean region. Covering never moves other content, so
		// the rectangles found above stay valid as anchors.
		p.cover(rects)
		for _, r := range rects {
			p.insert(r, pair.New, fontSize)
			replaced++
		}
	}
	return replaced
}

// covered returns every region painted over so far.
func (p *page) covered() []Rect {
	var out []Rect
	for _, o := range p.ops {
		if o.kind == opCover {
			out = append(out, o.rect)
		}
	}
	return out
}

type line struct {
	text  []byte
	owner []int // glyph index per byte of text, -1 for an inferred space
}

// lines groups the visible glyphs into reading-order lines. The page's own
// text is split into rows by baseline and into columns at wide gaps; every
// inserted run is a line of its own even where it overlaps other text.
func (p *page) lines() []line {
	var (
		units    [][]int
		original []int
		byRun    = make(map[int]int)
	)
	for i, g := range p.glyphs {
		if g.run < 0 {
			original = append(original, i)
			continue
		}
		u, ok := byRun[g.run]
		if !ok {
			u = len(units)
			byRun[g.run] = u
			units = append(units, nil)
		}
		units[u] = append(units[u], i)
	}
	units = append(units, p.rows(original)...)

	sort.SliceStable(units, func(a, b int) bool {
		ga, gb := p.glyphs[units[a][0]], p.glyphs[units[b][0]]
		if math.Abs(ga.Y-gb.Y) > lineTolerance*math.Max(ga.Size, gb.Size) {
			return ga.Y > gb.Y
		}
		return ga.X < gb.X
	})

	out := make([]line, 0, len(units))
	for _, u := range units {
		out = append(out, p.line(u))
	}
	return out
}

// rows groups idx by baseline, orders each row left to right and splits it
// where the gap between neighbours is wide enough to separate columns.
func (p *page) rows(idx []int) [][]int {
	sort.SliceStable(idx, func(a, b int) bool {
		return p.glyphs[idx[a]].Y > p.glyphs[idx[b]].Y
	})
	var groups [][]int
	for _, i := range idx {
		g := p.glyphs[i]
		if n := len(groups); n > 0 {
			head := p.glyphs[groups[n-1][0]]
			if math.Abs(head.Y-g.Y) <= lineTolerance*math.Max(head.Size, g.Size) {
				groups[n-1] = append(groups[n-1], i)
				continue
			}
		}
		groups = append(groups, []int{i})
	}

	var out [][]int
	for _, group := range groups {
		sort.SliceStable(group, func(a, b int) bool {
			return p.glyphs[group[a]].X < p.glyphs[group[b]].X
		})
		start := 0
		for k := 1; k < len(group); k++ {
			prev, g := p.glyphs[group[k-1]], p.glyphs[group[k]]
			if g.X-(prev.X+prev.W) > columnGap*math.Max(prev.Size, g.Size) {
				out = append(out, group[start:k])
				start = k
			}
		}
		out = append(out, group[start:])
	}
	return out
}

func (p *page) line(unit []int) line {
	var ln line
	for k, idx := range unit {
		g := p.glyphs[idx]
		if k > 0 {
			prev := p.glyphs[unit[k-1]]
			gap := g.X - (prev.X + prev.W)
			if gap > wordGap*g.Size && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " ") {
				ln.text = append(ln.text, ' ')
				ln.owner = append(ln.owner, -1)
			}
		}
		ln.text = append(ln.text, g.S...)
		for range len(g.S) {
			ln.owner = append(ln.owner, idx)
		}
	}
	return ln
}

// search returns the region of every non-overlapping literal occurrence of
// needle on the page as it currently reads.
func (p *page) search(needle string) []Rect {
	var rects []Rect
	for _, ln := range p.lines() {
		text := string(ln.text)
		for start := 0; start < len(text); {
			i := strings.Index(text[start:], needle)
			if i < 0 {
				break
			}
			begin, end := start+i, start+i+len(needle)
			if r, ok := p.bounds(ln, begin, end); ok {
				rects = append(rects, r)
			}
			start = end
		}
	}
	return rects
}

func (p *page) bounds(ln line, begin, end int) (Rect, bool) {
	var (
		r    Rect
		ok   bool
		last = -1
	)
	for _, idx := range ln.owner[begin:end] {
		if idx < 0 || idx == last {
			continue
		}
		last = idx
		box := glyphBox(p.glyphs[idx].Glyph)
		if !ok {
			r, ok = box, true
			continue
		}
		r = r.union(box)
	}
	return r, ok
}

// hides reports whether the centre of a glyph drawn at (x, y) lies inside
// one of rects.
func hides(rects []Rect, x, y, w, size float64) bool {
	cx := x + w/2
	cy := y + (ascent-descent)/2*size
	for _, r := range rects {
		if r.contains(cx, cy) {
			return true
		}
	}
	return false
}

// cover paints each region opaque and drops the glyphs it hides from the
// page's visible text.
func (p *page) cover(rects []Rect) {
	for _, r := range rects {
		p.ops = append(p.ops, op{kind: opCover, rect: r})
	}
	kept := p.glyphs[:0]
	for _, g := range p.glyphs {
		if !hides(rects, g.X, g.Y, g.W, g.Size) {
			kept = append(kept, g)
			continue
		}
		if g.run >= 0 {
			p.ops[g.run].hidden[g.pos] = true
		}
	}
	p.glyphs = kept
}

// insert draws text left-aligned on the baseline of r and makes it part of the
// page's visible text.
func (p *page) insert(r Rect, text string, size float64) {
	baseline := r.Y0 + descent*(r.Y1-r.Y0)
	chars := []rune(text)
	run := len(p.ops)
	p.ops = append(p.ops, op{kind: opText, x: r.X0, y: baseline, size: size, text: chars, hidden: make([]bool, len(chars))})
	x := r.X0
	for i, ch := range chars {
		w := float64(pdfutil.HelveticaWidth(ch)) * size / 1000
		p.glyphs = append(p.glyphs, glyph{
			Glyph: pdfutil.Glyph{X: x, Y: baseline, W: w, Size: size, S: string(ch)},
			run:   run,
			pos:   i,
		})
		x += w
	}
}

// content renders the page's operations as a content stream fragment. font is
// the resource name of a WinAnsi encoded Helvetica.
func (p *page) content(font string) []byte {
	var b bytes.Buffer
	for _, o := range p.ops {
		switch o.kind {
		case opCover:
			fmt.Fprintf(&b, "q 1 1 1 rg %s %s %s %s re f Q\n",
				num(o.rect.X0), num(o.rect.Y0), num(o.rect.X1-o.rect.X0), num(o.rect.Y1-o.rect.Y0))
		case opText:
			show, ok := o.show()
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "q BT /%s %s Tf 0 0 0 rg %s %s Td %s ET Q\n",
				font, num(o.size), num(o.x), num(o.y), show)
		}
	}
	return b.Bytes()
}

// show returns the text-showing operation for o. Characters a later cover
// hid are left out and replaced by their advance so the rest stays in place.
// ok is false when nothing of o is visible.
func (o op) show() (string, bool) {
	var (
		parts   []string
		pending []rune
		adjust  float64
		shown   bool
		trimmed bool
	)
	flushText := func() {
		if len(pending) > 0 {
			parts = append(parts, "("+winAnsiLiteral(string(pending))+")")
			pending = pending[:0]
		}
	}
	for i, ch := range o.text {
		if o.hidden[i] {
			flushText()
			adjust -= float64(pdfutil.HelveticaWidth(ch))
			trimmed = true
			continue
		}
		if adjust != 0 {
			parts = append(parts, num(adjust))
			adjust = 0
		}
		pending = append(pending, ch)
		shown = true
	}
	flushText()
	if !shown {
		return "", false
	}
	if !trimmed {
		return parts[0] + " Tj", true
	}
	return "[" + strings.Join(parts, " ") + "] TJ", true
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// winAnsiLiteral encodes s for a PDF literal string in WinAnsiEncoding.
// Characters outside the code page become '?'.
func winAnsiLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
