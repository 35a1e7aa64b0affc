package textpatch

type nodeID uint32

// nilNode is the handle of the sentinel at index 0 of every arena. Its
// aggregates are always zero so it can be read like an empty subtree.
const nilNode nodeID = 0

// node is a single change in the tree.
//
// A node does not store its position. It stores gap, the extent of the
// unchanged text between the end of the preceding change and the start of
// this one (identical in both coordinate spaces), and the aggregate extents of
// its subtree measured from the end of the change preceding the subtree.
type node struct {
	left, right, parent nodeID

	gap       Point
	oldExtent Point
	newExtent Point

	oldTotal Point
	newTotal Point
	size     int

	oldText string
	newText string
}

// arena owns the nodes of one tree. Handles are reused via a free list and
// are never shared between patches.
type arena struct {
	nodes []node
	free  []nodeID
}

func (a *arena) alloc() nodeID {
	if len(a.nodes) == 0 {
		a.nodes = append(a.nodes, node{})
	}
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[id] = node{}
		return id
	}
	a.nodes = append(a.nodes, node{})
	return nodeID(len(a.nodes) - 1)
}

func (a *arena) release(id nodeID) {
	if id == nilNode {
		panic("textpatch: releasing nil node")
	}
	a.nodes[id] = node{}
	a.free = append(a.free, id)
}

// isEmpty reports a change that neither removes nor inserts anything.
func (n *node) isEmpty() bool {
	return n.oldExtent.IsZero() && n.newExtent.IsZero()
}
