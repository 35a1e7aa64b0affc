package textpatch

import "fmt"

// Point is a zero-based (row, column) position in a document, or a delta
// between two positions when used as an extent.
type Point struct {
	Row    uint32
	Column uint32
}

var ZeroPoint = Point{}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Column)
}

func (p Point) IsZero() bool {
	return p.Row == 0 && p.Column == 0
}

// Compare orders points row-major, returning -1, 0 or +1.
func (p Point) Compare(o Point) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	default:
		return 0
	}
}

func (p Point) Less(o Point) bool {
	return p.Compare(o) < 0
}

func ComparePoints(a, b Point) int {
	return a.Compare(b)
}

func Min(a, b Point) Point {
	if b.Less(a) {
		return b
	}
	return a
}

func Max(a, b Point) Point {
	if a.Less(b) {
		return b
	}
	return a
}

// Traverse moves from start by delta. A delta with a non-zero row moves down
// that many rows and lands on delta.Column of the resulting row; otherwise
// the column offset is added to start's column.
func Traverse(start, delta Point) Point {
	if delta.Row == 0 {
		return Point{start.Row, start.Column + delta.Column}
	}
	return Point{start.Row + delta.Row, delta.Column}
}

// TraversalDistance returns the delta d such that Traverse(start, d) == end.
// It panics if end precedes start.
func TraversalDistance(end, start Point) Point {
	if end.Less(start) {
		panic(fmt.Errorf("textpatch: traversal distance from %v back to %v", start, end))
	}
	if end.Row == start.Row {
		return Point{0, end.Column - start.Column}
	}
	return Point{end.Row - start.Row, end.Column}
}
