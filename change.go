package textpatch

import "fmt"

// Change is one tracked replacement: OldExtent of old text at OldStart was
// replaced by NewExtent of new text at NewStart.
type Change struct {
	OldStart  Point
	NewStart  Point
	OldExtent Point
	NewExtent Point
	OldText   string
	NewText   string
}

// Hunk is a Change expressed with end points instead of extents.
type Hunk struct {
	OldStart Point
	OldEnd   Point
	NewStart Point
	NewEnd   Point
	OldText  string
	NewText  string
}

func (c Change) OldEnd() Point {
	return Traverse(c.OldStart, c.OldExtent)
}

func (c Change) NewEnd() Point {
	return Traverse(c.NewStart, c.NewExtent)
}

func (c Change) Hunk() Hunk {
	return Hunk{
		OldStart: c.OldStart,
		OldEnd:   c.OldEnd(),
		NewStart: c.NewStart,
		NewEnd:   c.NewEnd(),
		OldText:  c.OldText,
		NewText:  c.NewText,
	}
}

// Inverted swaps the old and new sides.
func (c Change) Inverted() Change {
	return Change{
		OldStart:  c.NewStart,
		NewStart:  c.OldStart,
		OldExtent: c.NewExtent,
		NewExtent: c.OldExtent,
		OldText:   c.NewText,
		NewText:   c.OldText,
	}
}

func (c Change) String() string {
	return fmt.Sprintf("{old %v+%v %q, new %v+%v %q}", c.OldStart, c.OldExtent, c.OldText, c.NewStart, c.NewExtent, c.NewText)
}

func (h Hunk) OldExtent() Point {
	return TraversalDistance(h.OldEnd, h.OldStart)
}

func (h Hunk) NewExtent() Point {
	return TraversalDistance(h.NewEnd, h.NewStart)
}

func (h Hunk) Change() Change {
	return Change{
		OldStart:  h.OldStart,
		NewStart:  h.NewStart,
		OldExtent: h.OldExtent(),
		NewExtent: h.NewExtent(),
		OldText:   h.OldText,
		NewText:   h.NewText,
	}
}

func (h Hunk) String() string {
	return fmt.Sprintf("{Hunk old: %v - %v, new: %v - %v, text: %q}", h.OldStart, h.OldEnd, h.NewStart, h.NewEnd, h.NewText)
}
