package redact

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdfutil "github.com/dharsanguruparan/DocScrub/internal/pdf"
)

// matrix is a PDF transformation [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m×n, applying m first.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2], m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2], m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4], m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// fontMetrics holds the advance widths of one font resource, in 1/1000 of
// text space.
type fontMetrics struct {
	twoByte    bool
	first      int
	widths     []float64
	missing    float64
	hasMissing bool
	dw         float64
	cid        map[int]float64
}

// width of code. Fonts without a width table fall back to Helvetica metrics,
// the same estimate the layout reader uses.
func (f *fontMetrics) width(code int) float64 {
	if f == nil {
		return float64(pdfutil.HelveticaWidth(rune(code)))
	}
	if f.twoByte {
		if w, ok := f.cid[code]; ok {
			return w
		}
		return f.dw
	}
	if i := code - f.first; f.widths != nil && i >= 0 && i < len(f.widths) {
		return f.widths[i]
	}
	if f.hasMissing {
		return f.missing
	}
	return float64(pdfutil.HelveticaWidth(rune(code)))
}

// loadFonts reads the metrics of every font in a resource dictionary. A font
// that cannot be read is left out and measured with the fallback.
func loadFonts(ctx *pdfmodel.Context, res types.Dict) map[string]*fontMetrics {
	out := make(map[string]*fontMetrics)
	if res == nil {
		return out
	}
	fonts, err := ctx.DereferenceDict(res["Font"])
	if err != nil || fonts == nil {
		return out
	}
	for name, obj := range fonts {
		fd, err := ctx.DereferenceDict(obj)
		if err != nil || fd == nil {
			continue
		}
		out[name] = readFont(ctx, fd)
	}
	return out
}

func readFont(ctx *pdfmodel.Context, fd types.Dict) *fontMetrics {
	f := &fontMetrics{dw: 1000}
	if sub := fd.NameEntry("Subtype"); sub != nil && *sub == "Type0" {
		f.twoByte = true
		f.cid = make(map[int]float64)
		desc, err := ctx.DereferenceArray(fd["DescendantFonts"])
		if err != nil || len(desc) == 0 {
			return f
		}
		cfd, err := ctx.DereferenceDict(desc[0])
		if err != nil || cfd == nil {
			return f
		}
		if dw, err := ctx.DereferenceNumber(cfd["DW"]); err == nil {
			f.dw = dw
		}
		if w, err := ctx.DereferenceArray(cfd["W"]); err == nil {
			readCIDWidths(ctx, w, f.cid)
		}
		return f
	}

	if first, err := ctx.DereferenceNumber(fd["FirstChar"]); err == nil {
		f.first = int(first)
	}
	if widths, err := ctx.DereferenceArray(fd["Widths"]); err == nil && widths != nil {
		f.widths = make([]float64, len(widths))
		for i, o := range widths {
			f.widths[i], _ = ctx.DereferenceNumber(o)
		}
	}
	if desc, err := ctx.DereferenceDict(fd["FontDescriptor"]); err == nil && desc != nil {
		if mw, err := ctx.DereferenceNumber(desc["MissingWidth"]); err == nil {
			f.missing, f.hasMissing = mw, true
		}
	}
	return f
}

// readCIDWidths decodes a W array: "c [w1 w2 ...]" and "first last w" forms.
func readCIDWidths(ctx *pdfmodel.Context, w types.Array, into map[int]float64) {
	for i := 0; i+1 < len(w); {
		first, err := ctx.DereferenceNumber(w[i])
		if err != nil {
			return
		}
		next, _ := ctx.Dereference(w[i+1])
		if arr, ok := next.(types.Array); ok {
			for j, o := range arr {
				if v, err := ctx.DereferenceNumber(o); err == nil {
					into[int(first)+j] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			return
		}
		last, err := ctx.DereferenceNumber(w[i+1])
		if err != nil {
			return
		}
		v, err := ctx.DereferenceNumber(w[i+2])
		if err != nil {
			return
		}
		for c := int(first); c <= int(last) && c-int(first) <= 0xFFFF; c++ {
			into[c] = v
		}
		i += 3
	}
}

type tokKind int

const (
	tokNumber tokKind = iota
	tokString
	tokName
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
	tokKeyword
)

type token struct {
	kind       tokKind
	start, end int
	num        float64
	str        []byte
	text       string
}

type lexer struct {
	data []byte
	pos  int
}

func isWhite(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(b byte) bool {
	return strings.IndexByte("()<>[]{}/%", b) >= 0
}

func (l *lexer) skipSpace() {
	d := l.data
	for l.pos < len(d) {
		switch {
		case isWhite(d[l.pos]):
			l.pos++
		case d[l.pos] == '%':
			for l.pos < len(d) && d[l.pos] != '\n' && d[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

// next returns the next token, or ok=false at the end of the data.
func (l *lexer) next() (tok token, ok bool, err error) {
	l.skipSpace()
	d := l.data
	if l.pos >= len(d) {
		return token{}, false, nil
	}
	start := l.pos
	tok.start = start
	switch c := d[start]; {
	case c == '(':
		depth := 0
		i := start
		for ; i < len(d); i++ {
			switch d[i] {
			case '\\':
				i++
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if i >= len(d) {
			return tok, false, fmt.Errorf("unterminated string at offset %d", start)
		}
		raw, err := types.Unescape(string(d[start+1 : i]))
		if err != nil {
			return tok, false, fmt.Errorf("string at offset %d: %w", start, err)
		}
		tok.kind, tok.str, l.pos = tokString, raw, i+1
	case c == '<' && start+1 < len(d) && d[start+1] == '<':
		tok.kind, l.pos = tokDictOpen, start+2
	case c == '>' && start+1 < len(d) && d[start+1] == '>':
		tok.kind, l.pos = tokDictClose, start+2
	case c == '<':
		end := bytes.IndexByte(d[start:], '>')
		if end < 0 {
			return tok, false, fmt.Errorf("unterminated hex string at offset %d", start)
		}
		digits := bytes.Map(func(r rune) rune {
			if r < 128 && isWhite(byte(r)) {
				return -1
			}
			return r
		}, d[start+1:start+end])
		if len(digits)%2 == 1 {
			digits = append(digits, '0')
		}
		raw, err := hex.DecodeString(string(digits))
		if err != nil {
			return tok, false, fmt.Errorf("hex string at offset %d: %w", start, err)
		}
		tok.kind, tok.str, l.pos = tokString, raw, start+end+1
	case c == '[':
		tok.kind, l.pos = tokArrayOpen, start+1
	case c == ']':
		tok.kind, l.pos = tokArrayClose, start+1
	case c == '/':
		i := start + 1
		for i < len(d) && !isWhite(d[i]) && !isDelim(d[i]) {
			i++
		}
		tok.kind, tok.text, l.pos = tokName, string(d[start+1:i]), i
	case c == '{' || c == '}' || c == ')' || c == '>':
		tok.kind, tok.text, l.pos = tokKeyword, string(c), start+1
	default:
		i := start
		for i < len(d) && !isWhite(d[i]) && !isDelim(d[i]) {
			i++
		}
		word := string(d[start:i])
		l.pos = i
		if v, err := strconv.ParseFloat(word, 64); err == nil {
			tok.kind, tok.num = tokNumber, v
		} else {
			tok.kind, tok.text = tokKeyword, word
		}
	}
	tok.end = l.pos
	return tok, true, nil
}

// skipInlineImage moves past the dictionary and data of an inline image whose
// BI operator was just read.
func (l *lexer) skipInlineImage() error {
	for {
		tok, ok, err := l.next()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("inline image without data")
		}
		if tok.kind == tokKeyword && tok.text == "ID" {
			break
		}
	}
	d := l.data
	for i := l.pos + 1; i+1 < len(d); i++ {
		if d[i] == 'E' && d[i+1] == 'I' && isWhite(d[i-1]) && (i+2 == len(d) || isWhite(d[i+2]) || isDelim(d[i+2])) {
			l.pos = i + 2
			return nil
		}
	}
	return fmt.Errorf("inline image without EI")
}

type operand struct {
	kind  tokKind
	num   float64
	str   []byte
	name  string
	items []operand
}

type textState struct {
	ctm        matrix
	tc, tw, th float64
	tl, trise  float64
	font       *fontMetrics
	size       float64
}

// scrubber rewrites a content stream so that text drawn under any of the
// covered regions is no longer part of it.
type scrubber struct {
	data    []byte
	fonts   map[string]*fontMetrics
	covered []Rect

	gs      textState
	stack   []textState
	tm, tlm matrix

	out    bytes.Buffer
	copied int
	hidden int
}

// scrub returns content with every glyph whose centre lies in covered removed.
// Removed glyphs become TJ adjustments of the same advance so the remaining
// text keeps its position. It also returns the number of glyphs removed.
func scrub(content []byte, fonts map[string]*fontMetrics, covered []Rect) ([]byte, int, error) {
	s := &scrubber{
		data:    content,
		fonts:   fonts,
		covered: covered,
		gs:      textState{ctm: identity, th: 1},
		tm:      identity,
		tlm:     identity,
	}
	if err := s.run(); err != nil {
		return nil, 0, err
	}
	s.out.Write(s.data[s.copied:])
	return s.out.Bytes(), s.hidden, nil
}

func (s *scrubber) run() error {
	var (
		l       = &lexer{data: s.data}
		args    []operand
		nest    [][]operand
		dicts   int
		opStart = -1
	)
	push := func(o operand) {
		if n := len(nest); n > 0 {
			nest[n-1] = append(nest[n-1], o)
			return
		}
		args = append(args, o)
	}
	for {
		tok, ok, err := l.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if opStart < 0 {
			opStart = tok.start
		}
		if dicts > 0 {
			switch tok.kind {
			case tokDictOpen:
				dicts++
			case tokDictClose:
				dicts--
				if dicts == 0 {
					push(operand{kind: tokDictOpen})
				}
			}
			continue
		}
		switch tok.kind {
		case tokDictOpen:
			dicts++
		case tokDictClose:
			return fmt.Errorf("unbalanced >> at offset %d", tok.start)
		case tokArrayOpen:
			nest = append(nest, []operand{})
		case tokArrayClose:
			n := len(nest)
			if n == 0 {
				return fmt.Errorf("unbalanced ] at offset %d", tok.start)
			}
			items := nest[n-1]
			nest = nest[:n-1]
			push(operand{kind: tokArrayOpen, items: items})
		case tokNumber:
			push(operand{kind: tokNumber, num: tok.num})
		case tokString:
			push(operand{kind: tokString, str: tok.str})
		case tokName:
			push(operand{kind: tokName, name: tok.text})
		case tokKeyword:
			switch tok.text {
			case "true", "false", "null":
				push(operand{kind: tokKeyword, name: tok.text})
				continue
			}
			if len(nest) > 0 {
				return fmt.Errorf("operator %s inside array at offset %d", tok.text, tok.start)
			}
			s.operator(tok.text, args, opStart, tok.end)
			if tok.text == "BI" {
				if err := l.skipInlineImage(); err != nil {
					return err
				}
			}
			args = args[:0]
			opStart = -1
		}
	}
}

func numbers(args []operand, n int) ([]float64, bool) {
	if len(args) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, a := range args {
		if a.kind != tokNumber {
			return nil, false
		}
		out[i] = a.num
	}
	return out, true
}

func (s *scrubber) operator(name string, args []operand, start, end int) {
	switch name {
	case "q":
		s.stack = append(s.stack, s.gs)
	case "Q":
		if n := len(s.stack); n > 0 {
			s.gs = s.stack[n-1]
			s.stack = s.stack[:n-1]
		}
	case "cm":
		if v, ok := numbers(args, 6); ok {
			s.gs.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(s.gs.ctm)
		}
	case "BT":
		s.tm, s.tlm = identity, identity
	case "Tc":
		if v, ok := numbers(args, 1); ok {
			s.gs.tc = v[0]
		}
	case "Tw":
		if v, ok := numbers(args, 1); ok {
			s.gs.tw = v[0]
		}
	case "Tz":
		if v, ok := numbers(args, 1); ok {
			s.gs.th = v[0] / 100
		}
	case "TL":
		if v, ok := numbers(args, 1); ok {
			s.gs.tl = v[0]
		}
	case "Ts":
		if v, ok := numbers(args, 1); ok {
			s.gs.trise = v[0]
		}
	case "Tf":
		if len(args) == 2 && args[0].kind == tokName && args[1].kind == tokNumber {
			s.gs.font = s.fonts[args[0].name]
			s.gs.size = args[1].num
		}
	case "TD":
		if v, ok := numbers(args, 2); ok {
			s.gs.tl = -v[1]
		}
		fallthrough
	case "Td":
		if v, ok := numbers(args, 2); ok {
			s.tlm = translate(v[0], v[1]).mul(s.tlm)
			s.tm = s.tlm
		}
	case "Tm":
		if v, ok := numbers(args, 6); ok {
			s.tlm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			s.tm = s.tlm
		}
	case "T*":
		s.nextLine()
	case "Tj":
		if len(args) == 1 && args[0].kind == tokString {
			s.show(args, "", start, end)
		}
	case "TJ":
		if len(args) == 1 && args[0].kind == tokArrayOpen {
			s.show(args[0].items, "", start, end)
		}
	case "'":
		if len(args) == 1 && args[0].kind == tokString {
			s.nextLine()
			s.show(args, "T* ", start, end)
		}
	case "\"":
		if v, ok := numbers(args[:min(len(args), 2)], 2); ok && len(args) == 3 && args[2].kind == tokString {
			s.gs.tw, s.gs.tc = v[0], v[1]
			s.nextLine()
			s.show(args[2:], fmtNum(v[0])+" Tw "+fmtNum(v[1])+" Tc T* ", start, end)
		}
	}
}

func (s *scrubber) nextLine() {
	s.tlm = translate(0, -s.gs.tl).mul(s.tlm)
	s.tm = s.tlm
}

// show lays out a text-showing operation and, when any glyph falls under a
// covered region, replaces the operation in the output with a TJ that leaves
// those glyphs out. prefix carries the line move of ' and ".
func (s *scrubber) show(elems []operand, prefix string, start, end int) {
	gs := &s.gs
	var (
		parts   []string
		run     []byte
		adjust  float64
		changed bool
	)
	flushRun := func() {
		if len(run) > 0 {
			lit, _ := types.Escape(string(run))
			parts = append(parts, "("+*lit+")")
			run = run[:0]
		}
	}
	flushAdjust := func() {
		if adjust != 0 {
			parts = append(parts, fmtNum(adjust))
			adjust = 0
		}
	}
	for _, el := range elems {
		switch el.kind {
		case tokNumber:
			s.tm = translate(-el.num/1000*gs.size*gs.th, 0).mul(s.tm)
			flushRun()
			adjust += el.num
		case tokString:
			step := 1
			if gs.font != nil && gs.font.twoByte {
				step = 2
			}
			for i := 0; i < len(el.str); i += step {
				codeBytes := el.str[i:min(i+step, len(el.str))]
				code := 0
				for _, b := range codeBytes {
					code = code<<8 | int(b)
				}
				w0 := gs.font.width(code)
				trm := matrix{gs.size * gs.th, 0, 0, gs.size, 0, gs.trise}.mul(s.tm).mul(gs.ctm)
				size := trm[0]
				if size <= 0 {
					size = 1
				}
				advance := w0/1000*gs.size + gs.tc
				if step == 1 && code == ' ' {
					advance += gs.tw
				}
				advance *= gs.th
				s.tm = translate(advance, 0).mul(s.tm)

				scale := gs.size * gs.th
				if scale != 0 && hides(s.covered, trm[4], trm[5], w0/1000*trm[0], size) {
					flushRun()
					adjust -= advance * 1000 / scale
					changed = true
					s.hidden++
					continue
				}
				flushAdjust()
				run = append(run, codeBytes...)
			}
		}
	}
	if !changed {
		return
	}
	flushRun()
	flushAdjust()
	s.out.Write(s.data[s.copied:start])
	s.out.WriteString(prefix + "[" + strings.Join(parts, " ") + "] TJ")
	s.copied = end
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
