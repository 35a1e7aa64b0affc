package textpatch

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

type patchState uint8

const (
	stateMutable patchState = iota
	stateFrozen
)

type Options struct {
	// Metrics measures splice texts. Defaults to ByteMetrics.
	Metrics TextMetrics

	Logger  *slog.Logger
	Verbose bool

	// Strict verifies tree invariants after every splice and panics on
	// violation. Meant for tests and debugging.
	Strict bool
}

// Patch records a sequence of splices as an ordered list of non-overlapping
// changes.
//
// A mutable Patch must not be accessed concurrently. A frozen Patch (after
// Serialize, or one returned by Compose, Invert, FromChange or Deserialize)
// never changes and is safe for concurrent reads.
type Patch struct {
	tree    tree
	state   patchState
	metrics TextMetrics
	logger  *slog.Logger
	verbose bool
	strict  bool

	cachedChanges []Change
	serialized    []byte
}

func New() *Patch {
	return NewWithOptions(Options{})
}

func NewWithOptions(o Options) *Patch {
	if o.Metrics == nil {
		o.Metrics = ByteMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Patch{
		metrics: o.Metrics,
		logger:  o.Logger,
		verbose: o.Verbose,
		strict:  o.Strict,
	}
}

func newFrozen(changes []Change, serialized []byte, metrics TextMetrics) *Patch {
	p := NewWithOptions(Options{Metrics: metrics})
	if changes == nil {
		changes = []Change{}
	}
	p.cachedChanges = changes
	// Encoded up front: a frozen patch is never written to again, so that
	// concurrent readers need no locking.
	if serialized == nil {
		serialized = encodeChanges(changes, p.metrics)
	}
	p.serialized = serialized
	p.state = stateFrozen
	return p
}

func (p *Patch) IsFrozen() bool {
	return p.state == stateFrozen
}

func (p *Patch) Metrics() TextMetrics {
	return p.metrics
}

// Len returns the number of changes.
func (p *Patch) Len() int {
	if p.cachedChanges != nil {
		return len(p.cachedChanges)
	}
	return p.tree.count
}

// SpliceWithText is Splice with extents measured from the texts.
func (p *Patch) SpliceWithText(start Point, oldText, newText string) error {
	return p.Splice(start, p.metrics.Extent(oldText), p.metrics.Extent(newText), oldText, newText)
}

// Splice records that oldExtent of text at start (in the current, new
// coordinates) was replaced by newExtent of text. oldText must be the
// replaced text and newText the inserted one.
func (p *Patch) Splice(start, oldExtent, newExtent Point, oldText, newText string) error {
	if p.state == stateFrozen {
		return ErrFrozenPatch
	}
	if oldExtent.IsZero() && newExtent.IsZero() {
		return nil
	}
	oldEnd := Traverse(start, oldExtent)
	newEnd := Traverse(start, newExtent)
	if e := p.metrics.Extent(oldText); e != oldExtent {
		return rangeErrf(start, oldEnd, "old text spans %v, expected %v", e, oldExtent)
	}
	if e := p.metrics.Extent(newText); e != newExtent {
		return rangeErrf(start, newEnd, "new text spans %v, expected %v", e, newExtent)
	}

	if p.verbose {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "splice",
			slog.String("start", start.String()),
			slog.String("old_extent", oldExtent.String()),
			slog.String("new_extent", newExtent.String()),
			slog.Int("changes", p.tree.count))
	}

	t := &p.tree
	a := t.splayContaining(start)
	b := t.splayContaining(oldEnd)

	if a == b {
		// The splice lies within one change; only its new side is affected.
		n := &t.nodes[b]
		nStart := t.newStart(ZeroPoint, b)
		nEnd := Traverse(nStart, n.newExtent)
		n.newText = textPrefix(p.metrics, n.newText, TraversalDistance(start, nStart)) +
			newText +
			textSuffix(p.metrics, n.newText, TraversalDistance(oldEnd, nStart))
		n.newExtent = Traverse(TraversalDistance(newEnd, nStart), TraversalDistance(nEnd, oldEnd))
		t.recalc(b)
	} else {
		p.merge(a, b, start, oldEnd, newEnd, oldText, newText)
	}

	if t.nodes[b].isEmpty() {
		t.deleteNode(b)
	}

	p.cachedChanges = nil
	if p.strict {
		p.checkInvariants()
	}
	return nil
}

// merge replaces the changes from a (containing start) to b (containing
// oldEnd) inclusive, and everything between them, with a single change stored
// in b. b must be the root.
func (p *Patch) merge(a, b nodeID, start, oldEnd, newEnd Point, oldText, newText string) {
	t := &p.tree
	t.splayNode(a, b)
	an, bn := &t.nodes[a], &t.nodes[b]

	aNewStart := t.newStart(ZeroPoint, a)
	aOldStart := Traverse(t.nodes[an.left].oldTotal, an.gap)
	aNewEnd := Traverse(aNewStart, an.newExtent)
	bNewStart := t.newStart(ZeroPoint, b)
	bOldStart := Traverse(t.nodes[bn.left].oldTotal, bn.gap)
	bNewEnd := Traverse(bNewStart, bn.newExtent)
	bOldEnd := Traverse(bOldStart, bn.oldExtent)

	// The splice's old text may contain text inserted by earlier splices, so
	// the merged old text is rebuilt from the original text of every change
	// in range plus the unchanged gaps between them.
	var buf strings.Builder
	buf.WriteString(an.oldText)
	pos := aNewEnd
	t.walk(an.right, func(id nodeID) {
		c := &t.nodes[id]
		cStart := Traverse(pos, c.gap)
		buf.WriteString(sliceText(p.metrics, oldText, TraversalDistance(pos, start), TraversalDistance(cStart, start)))
		buf.WriteString(c.oldText)
		pos = Traverse(cStart, c.newExtent)
	})
	buf.WriteString(sliceText(p.metrics, oldText, TraversalDistance(pos, start), TraversalDistance(bNewStart, start)))
	buf.WriteString(bn.oldText)

	bn.newText = textPrefix(p.metrics, an.newText, TraversalDistance(start, aNewStart)) +
		newText +
		textSuffix(p.metrics, bn.newText, TraversalDistance(oldEnd, bNewStart))
	bn.oldText = buf.String()
	bn.oldExtent = TraversalDistance(bOldEnd, aOldStart)
	bn.newExtent = Traverse(TraversalDistance(newEnd, aNewStart), TraversalDistance(bNewEnd, oldEnd))
	bn.gap = an.gap

	left := an.left
	t.releaseSubtree(an.right)
	t.release(a)
	t.count--
	t.nodes[b].left = nilNode
	t.setLeft(b, left)
	t.recalc(b)
}

// Changes returns the changes in ascending order. The result is shared and
// must not be modified.
func (p *Patch) Changes() []Change {
	if p.cachedChanges == nil {
		p.cachedChanges = p.tree.changes()
	}
	return p.cachedChanges
}

func (p *Patch) Hunks() []Hunk {
	changes := p.Changes()
	hunks := make([]Hunk, len(changes))
	for i, c := range changes {
		hunks[i] = c.Hunk()
	}
	return hunks
}

// HunksInNewRange returns the hunks overlapping [start, end) in new
// coordinates: those with NewEnd > start and NewStart < end.
func (p *Patch) HunksInNewRange(start, end Point) []Hunk {
	changes := p.Changes()
	i := sort.Search(len(changes), func(i int) bool {
		return start.Less(changes[i].NewEnd())
	})
	var hunks []Hunk
	for ; i < len(changes) && changes[i].NewStart.Less(end); i++ {
		hunks = append(hunks, changes[i].Hunk())
	}
	return hunks
}

// HunkForOldPosition returns the last hunk starting at or before pos in old
// coordinates.
func (p *Patch) HunkForOldPosition(pos Point) (Hunk, bool) {
	changes := p.Changes()
	i := sort.Search(len(changes), func(i int) bool {
		return pos.Less(changes[i].OldStart)
	})
	if i == 0 {
		return Hunk{}, false
	}
	return changes[i-1].Hunk(), true
}

// HunkForNewPosition returns the last hunk starting at or before pos in new
// coordinates.
func (p *Patch) HunkForNewPosition(pos Point) (Hunk, bool) {
	changes := p.Changes()
	i := sort.Search(len(changes), func(i int) bool {
		return pos.Less(changes[i].NewStart)
	})
	if i == 0 {
		return Hunk{}, false
	}
	return changes[i-1].Hunk(), true
}

// TranslateOldPosition maps a position in old coordinates to new ones.
// Positions inside a replaced range map into the replacement, clipped to its
// end.
func (p *Patch) TranslateOldPosition(pos Point) Point {
	h, ok := p.HunkForOldPosition(pos)
	if !ok {
		return pos
	}
	if !pos.Less(h.OldEnd) {
		return Traverse(h.NewEnd, TraversalDistance(pos, h.OldEnd))
	}
	return Min(h.NewEnd, Traverse(h.NewStart, TraversalDistance(pos, h.OldStart)))
}

// TranslateNewPosition maps a position in new coordinates to old ones.
func (p *Patch) TranslateNewPosition(pos Point) Point {
	h, ok := p.HunkForNewPosition(pos)
	if !ok {
		return pos
	}
	if !pos.Less(h.NewEnd) {
		return Traverse(h.OldEnd, TraversalDistance(pos, h.NewEnd))
	}
	return Min(h.OldEnd, Traverse(h.OldStart, TraversalDistance(pos, h.NewStart)))
}

// Serialize encodes the change list and freezes the patch. Later calls
// return the same bytes. Serializing a patch that is already frozen never
// modifies it.
func (p *Patch) Serialize() []byte {
	if p.serialized == nil {
		p.serialized = encodeChanges(p.Changes(), p.metrics)
		p.state = stateFrozen
	}
	return p.serialized
}
