package textpatch

import (
	"strings"
	"unicode/utf8"
)

// TextMetrics measures text in the coordinate system used by a Patch.
// Rows are separated by '\n'.
type TextMetrics interface {
	// Extent returns the rows and columns spanned by text.
	Extent(text string) Point

	// CharIndexForPoint returns the byte offset of p within text. It fails with
	// a *RangeError if p lies beyond the end of text or past the end of its row.
	CharIndexForPoint(text string, p Point) (int, error)
}

// ByteMetrics measures columns in bytes. This is the default.
type ByteMetrics struct{}

// RuneMetrics measures columns in Unicode code points.
type RuneMetrics struct{}

var (
	_ TextMetrics = ByteMetrics{}
	_ TextMetrics = RuneMetrics{}
)

func (ByteMetrics) Extent(text string) Point {
	rows := strings.Count(text, "\n")
	last := strings.LastIndexByte(text, '\n')
	return Point{uint32(rows), uint32(len(text) - last - 1)}
}

func (ByteMetrics) CharIndexForPoint(text string, p Point) (int, error) {
	off, ok := rowOffset(text, p.Row)
	if !ok {
		return 0, rangeErrf(p, p, "row beyond end of %d-byte text", len(text))
	}
	rowLen := strings.IndexByte(text[off:], '\n')
	if rowLen < 0 {
		rowLen = len(text) - off
	}
	if int(p.Column) > rowLen {
		return 0, rangeErrf(p, p, "column beyond end of row %d (%d bytes)", p.Row, rowLen)
	}
	return off + int(p.Column), nil
}

func (RuneMetrics) Extent(text string) Point {
	rows := strings.Count(text, "\n")
	last := strings.LastIndexByte(text, '\n')
	return Point{uint32(rows), uint32(utf8.RuneCountInString(text[last+1:]))}
}

func (RuneMetrics) CharIndexForPoint(text string, p Point) (int, error) {
	off, ok := rowOffset(text, p.Row)
	if !ok {
		return 0, rangeErrf(p, p, "row beyond end of %d-byte text", len(text))
	}
	col := p.Column
	for col > 0 {
		if off >= len(text) || text[off] == '\n' {
			return 0, rangeErrf(p, p, "column beyond end of row %d", p.Row)
		}
		_, n := utf8.DecodeRuneInString(text[off:])
		off += n
		col--
	}
	return off, nil
}

// rowOffset returns the byte offset at which the given row starts.
func rowOffset(text string, row uint32) (int, bool) {
	off := 0
	for ; row > 0; row-- {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return 0, false
		}
		off += i + 1
	}
	return off, true
}

// sliceText returns the portion of text between two points measured from the
// start of text.
func sliceText(m TextMetrics, text string, from, to Point) string {
	i := must(m.CharIndexForPoint(text, from))
	j := must(m.CharIndexForPoint(text, to))
	return text[i:j]
}

func textPrefix(m TextMetrics, text string, end Point) string {
	return text[:must(m.CharIndexForPoint(text, end))]
}

func textSuffix(m TextMetrics, text string, start Point) string {
	return text[must(m.CharIndexForPoint(text, start)):]
}
