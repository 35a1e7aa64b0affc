package textpatch

import "testing"

func TestChange_HunkAndInverted(t *testing.T) {
	c := Change{
		OldStart:  Point{1, 4},
		NewStart:  Point{1, 2},
		OldExtent: Point{0, 2},
		NewExtent: Point{1, 3},
		OldText:   "ab",
		NewText:   "x\nyz",
	}
	deepEqual(t, c.OldEnd(), Point{1, 6})
	deepEqual(t, c.NewEnd(), Point{2, 3})

	h := c.Hunk()
	deepEqual(t, h, Hunk{OldStart: Point{1, 4}, OldEnd: Point{1, 6}, NewStart: Point{1, 2}, NewEnd: Point{2, 3}, OldText: "ab", NewText: "x\nyz"})
	deepEqual(t, h.OldExtent(), c.OldExtent)
	deepEqual(t, h.NewExtent(), c.NewExtent)
	deepEqual(t, h.Change(), c)

	inv := c.Inverted()
	deepEqual(t, inv.OldStart, c.NewStart)
	deepEqual(t, inv.NewExtent, c.OldExtent)
	deepEqual(t, inv.OldText, c.NewText)
	deepEqual(t, inv.Inverted(), c)
}

func TestChange_String(t *testing.T) {
	c := Change{OldStart: Point{0, 1}, NewStart: Point{0, 1}, OldExtent: Point{0, 1}, OldText: "a"}
	deepEqual(t, c.String(), `{old (0, 1)+(0, 1) "a", new (0, 1)+(0, 0) ""}`)
	deepEqual(t, c.Hunk().String(), `{Hunk old: (0, 1) - (0, 2), new: (0, 1) - (0, 1), text: ""}`)
}
