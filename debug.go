package textpatch

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpChanges = DumpFlags(1 << iota)
	DumpTree
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the patch for debugging.
func (p *Patch) Dump(f DumpFlags) string {
	var buf strings.Builder
	if f.Contains(DumpStats) {
		fmt.Fprintf(&buf, "changes = %d, nodes = %d, frozen = %v, serialized = %d bytes\n", p.Len(), p.tree.count, p.IsFrozen(), len(p.serialized))
	}
	if f.Contains(DumpChanges) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&buf, dumpSep)
		}
		for i, c := range p.Changes() {
			h := c.Hunk()
			fmt.Fprintf(&buf, "%d: old %v-%v %q => new %v-%v %q\n", i+1, h.OldStart, h.OldEnd, h.OldText, h.NewStart, h.NewEnd, h.NewText)
		}
	}
	if f.Contains(DumpTree) && p.tree.root != nilNode {
		if f.Contains(DumpStats) || f.Contains(DumpChanges) {
			fmt.Fprintln(&buf, dumpSep)
		}
		p.tree.dumpNode(&buf, "", "root", p.tree.root)
	}
	return buf.String()
}

func (t *tree) dumpNode(w *strings.Builder, indent, label string, id nodeID) {
	if id == nilNode {
		return
	}
	n := &t.nodes[id]
	fmt.Fprintf(w, "%s%s #%d gap=%v old=%v new=%v total=%v/%v size=%d\n", indent, label, id, n.gap, n.oldExtent, n.newExtent, n.oldTotal, n.newTotal, n.size)
	t.dumpNode(w, indent+indentStep, "L", n.left)
	t.dumpNode(w, indent+indentStep, "R", n.right)
}

// checkInvariants panics if the tree links, aggregates or texts are
// inconsistent.
func (p *Patch) checkInvariants() {
	t := &p.tree
	if t.root != nilNode && t.nodes[t.root].parent != nilNode {
		panic(fmt.Errorf("textpatch: root #%d has parent #%d", t.root, t.nodes[t.root].parent))
	}
	count := p.checkSubtree(t.root)
	if count != t.count {
		panic(fmt.Errorf("textpatch: tree holds %d nodes, count is %d", count, t.count))
	}
	if len(t.nodes) > 0 && t.nodes[nilNode] != (node{}) {
		z := t.nodes[nilNode]
		panic(fmt.Errorf("textpatch: sentinel node modified: %+v", z))
	}
}

func (p *Patch) checkSubtree(id nodeID) int {
	if id == nilNode {
		return 0
	}
	t := &p.tree
	n := t.nodes[id]
	for _, c := range [2]nodeID{n.left, n.right} {
		if c != nilNode && t.nodes[c].parent != id {
			panic(fmt.Errorf("textpatch: node #%d has parent #%d, expected #%d", c, t.nodes[c].parent, id))
		}
	}
	count := 1 + p.checkSubtree(n.left) + p.checkSubtree(n.right)

	expected := n
	t.recalc(id)
	if actual := t.nodes[id]; actual.oldTotal != expected.oldTotal || actual.newTotal != expected.newTotal || actual.size != expected.size {
		panic(fmt.Errorf("textpatch: node #%d aggregates %v/%v/%d, expected %v/%v/%d", id, expected.oldTotal, expected.newTotal, expected.size, actual.oldTotal, actual.newTotal, actual.size))
	}
	if n.isEmpty() {
		panic(fmt.Errorf("textpatch: node #%d is an empty change", id))
	}
	if e := p.metrics.Extent(n.oldText); e != n.oldExtent {
		panic(fmt.Errorf("textpatch: node #%d old text spans %v, extent is %v", id, e, n.oldExtent))
	}
	if e := p.metrics.Extent(n.newText); e != n.newExtent {
		panic(fmt.Errorf("textpatch: node #%d new text spans %v, extent is %v", id, e, n.newExtent))
	}
	if count != n.size {
		panic(fmt.Errorf("textpatch: node #%d has %d nodes, size is %d", id, count, n.size))
	}
	return count
}
