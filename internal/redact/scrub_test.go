package redact

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdfutil "github.com/dharsanguruparan/DocScrub/internal/pdf"
)

// boxOf is the region search reports for s drawn in 12pt Helvetica at (x, y).
func boxOf(x, y float64, s string) Rect {
	return Rect{X0: x, Y0: y - descent*12, X1: x + pdfutil.StringWidth(s, 12), Y1: y + ascent*12}
}

func advance(s string) string {
	total := 0
	for _, r := range s {
		total += pdfutil.HelveticaWidth(r)
	}
	return strconv.Itoa(-total)
}

func TestScrubRemovesCoveredGlyphs(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 700 Td (Acme Corp) Tj ET")
	out, n, err := scrub(content, nil, []Rect{boxOf(72, 700, "Acme")})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "BT /F1 12 Tf 72 700 Td ["+advance("Acme")+" ( Corp)] TJ ET", string(out))
}

func TestScrubLeavesUncoveredContentAlone(t *testing.T) {
	content := []byte("q 0 0 1 rg\nBT /F1 12 Tf 72 700 Td (Acme) Tj ET\n% comment (Acme)\nQ")
	out, n, err := scrub(content, nil, []Rect{boxOf(72, 500, "Acme")})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, string(content), string(out))
}

func TestScrubFollowsTextPosition(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 720 Td (Acme) Tj 0 -20 Td [(Ac) -10 (me)] TJ ET")
	out, n, err := scrub(content, nil, []Rect{boxOf(72, 700, "Acme")})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, string(out), "720 Td (Acme) Tj 0 -20 Td [")
	assert.NotContains(t, string(out), "(Ac)")
}

func TestScrubAppliesTransformationMatrix(t *testing.T) {
	content := []byte("q 1 0 0 1 100 0 cm BT /F1 12 Tf 0 700 Td (Acme) Tj ET Q BT /F1 12 Tf 0 700 Td (Acme) Tj ET")
	out, n, err := scrub(content, nil, []Rect{boxOf(100, 700, "Acme")})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, string(out), "0 700 Td ["+advance("Acme")+"] TJ ET Q")
	assert.Contains(t, string(out), "Q BT /F1 12 Tf 0 700 Td (Acme) Tj ET")
}

func TestScrubNextLineOperators(t *testing.T) {
	content := []byte("BT /F1 12 Tf 14 TL 72 714 Td (Acme) ' 1 2 (Corp) \" ET")
	out, n, err := scrub(content, nil, []Rect{boxOf(72, 700, "A"), boxOf(72, 686, "C")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	// The hidden C still advances by its width plus the 2pt character spacing.
	skipC := fmtNum(-(float64(pdfutil.HelveticaWidth('C'))*12/1000 + 2) * 1000 / 12)
	assert.Equal(t, "BT /F1 12 Tf 14 TL 72 714 Td T* ["+advance("A")+" (cme)] TJ 1 Tw 2 Tc T* ["+skipC+" (orp)] TJ ET", string(out))
}

func TestScrubSkipsDictionariesAndInlineImages(t *testing.T) {
	content := []byte("/P <</MCID 0 /Alt (x)>> BDC BT /F1 12 Tf 72 700 Td <41636d65> Tj ET EMC\nBI /W 1 /H 1 /BPC 8 /CS /G ID \x00(\xff EI\nBT /F1 12 Tf 72 600 Td (tail) Tj ET")
	out, n, err := scrub(content, nil, []Rect{boxOf(72, 700, "Acme")})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, string(out), "/P <</MCID 0 /Alt (x)>> BDC BT")
	assert.Contains(t, string(out), "ID \x00(\xff EI\nBT /F1 12 Tf 72 600 Td (tail) Tj ET")
	assert.NotContains(t, string(out), "<41636d65>")
}

func TestScrubUsesFontWidths(t *testing.T) {
	widths := make([]float64, 95)
	for i := range widths {
		widths[i] = 1000
	}
	fonts := map[string]*fontMetrics{"Mono": {first: 32, widths: widths}}
	content := []byte("BT /Mono 10 Tf 0 0 Td (abcd) Tj ET")
	// Each glyph is 10pt wide, so only c falls under a box spanning 20..30.
	out, n, err := scrub(content, fonts, []Rect{{X0: 20, Y0: -2, X1: 30, Y1: 8}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "BT /Mono 10 Tf 0 0 Td [(ab) -1000 (d)] TJ ET", string(out))
}

func TestScrubMalformedContent(t *testing.T) {
	for _, content := range []string{
		"BT /F1 12 Tf (unterminated Tj ET",
		"BT /F1 12 Tf <4142 Tj ET",
		"BT [(a) Tj ET",
		"BI /W 1 ID \x00\x00",
	} {
		_, _, err := scrub([]byte(content), nil, []Rect{{X0: 0, Y0: 0, X1: 1000, Y1: 1000}})
		assert.Error(t, err, content)
	}
}

func TestFontMetricsWidth(t *testing.T) {
	var missing *fontMetrics
	assert.Equal(t, float64(pdfutil.HelveticaWidth('A')), missing.width('A'))

	simple := &fontMetrics{first: 65, widths: []float64{600, 700}, missing: 250, hasMissing: true}
	assert.Equal(t, 700.0, simple.width('B'))
	assert.Equal(t, 250.0, simple.width('z'))

	cid := &fontMetrics{twoByte: true, dw: 1000, cid: map[int]float64{0x0102: 500}}
	assert.Equal(t, 500.0, cid.width(0x0102))
	assert.Equal(t, 1000.0, cid.width(7))
}

func TestMatrixMul(t *testing.T) {
	m := translate(10, 0).mul(matrix{2, 0, 0, 2, 5, 5})
	assert.Equal(t, matrix{2, 0, 0, 2, 25, 5}, m)
}
