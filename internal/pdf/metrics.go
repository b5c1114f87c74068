package pdfutil

// helveticaWidths holds the Helvetica advance widths, in 1/1000 em, for the
// printable ASCII range starting at the space character.
var helveticaWidths = [...]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space to /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0 to ?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @ to O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P to _
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // ` to o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p to ~
}

const (
	helveticaFirstChar    = 32
	helveticaDefaultWidth = 556
)

// HelveticaWidth returns the advance width of r in 1/1000 em.
func HelveticaWidth(r rune) int {
	i := int(r) - helveticaFirstChar
	if i < 0 || i >= len(helveticaWidths) {
		return helveticaDefaultWidth
	}
	return helveticaWidths[i]
}

// HelveticaWidths returns the width table for codes 32 through 126, in the
// form expected by a font dictionary's Widths array.
func HelveticaWidths() []int {
	out := make([]int, len(helveticaWidths))
	copy(out, helveticaWidths[:])
	return out
}

// StringWidth estimates the rendered width of s in points at the given size.
func StringWidth(s string, size float64) float64 {
	var total int
	for _, r := range s {
		total += HelveticaWidth(r)
	}
	return float64(total) * size / 1000
}
