// Package pdfutil reads the positioned text of a PDF so callers can locate
// literal strings on a page.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Glyph is one decoded piece of text drawn on a page. Coordinates are PDF
// user-space points with Y increasing upwards; Y is the baseline.
type Glyph struct {
	X, Y float64
	W    float64
	Size float64
	S    string
}

// Page holds the glyphs of a single page in content-stream order.
type Page struct {
	Number int
	Glyphs []Glyph
}

// ReadPages parses data and returns the glyphs of every page in page order.
// The underlying reader panics on malformed input, so panics are reported as
// errors.
func ReadPages(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	pages = make([]Page, 0, total)
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		page := Page{Number: n}
		if !p.V.IsNull() {
			page.Glyphs = normalize(p.Content().Text)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// normalize drops line-break markers and fills in widths for fonts that carry
// no width table. Such fonts do not advance the text position either, so the
// following glyphs of the same run are laid out from the estimated widths.
func normalize(texts []pdf.Text) []Glyph {
	out := make([]Glyph, 0, len(texts))
	prev := -1
	for _, t := range texts {
		if strings.Trim(t.S, "\r\n") == "" {
			prev = -1
			continue
		}
		g := Glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S}
		if g.Size <= 0 {
			g.Size = 1
		}
		estimated := g.W <= 0
		if estimated {
			g.W = StringWidth(g.S, g.Size)
		}
		if prev >= 0 {
			p := out[prev]
			if p.Y == g.Y && p.Size == g.Size && g.X <= p.X {
				g.X = p.X + p.W
			}
		}
		out = append(out, g)
		if estimated {
			prev = len(out) - 1
		} else {
			prev = -1
		}
	}
	return out
}
