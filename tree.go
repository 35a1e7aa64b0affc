package textpatch

import "fmt"

// tree is a splay tree of changes ordered by position.
type tree struct {
	arena
	root  nodeID
	count int

	// scratch space for splayContaining
	leftSpine  []nodeID
	rightSpine []nodeID
}

func (t *tree) recalc(id nodeID) {
	n := &t.nodes[id]
	l, r := &t.nodes[n.left], &t.nodes[n.right]
	n.oldTotal = Traverse(Traverse(Traverse(l.oldTotal, n.gap), n.oldExtent), r.oldTotal)
	n.newTotal = Traverse(Traverse(Traverse(l.newTotal, n.gap), n.newExtent), r.newTotal)
	n.size = l.size + 1 + r.size
}

func (t *tree) recalcUp(id nodeID) {
	for ; id != nilNode; id = t.nodes[id].parent {
		t.recalc(id)
	}
}

func (t *tree) setLeft(parent, child nodeID) {
	t.nodes[parent].left = child
	if child != nilNode {
		t.nodes[child].parent = parent
	}
}

func (t *tree) setRight(parent, child nodeID) {
	t.nodes[parent].right = child
	if child != nilNode {
		t.nodes[child].parent = parent
	}
}

func (t *tree) replaceChild(parent, old, new nodeID) {
	if parent == nilNode {
		t.root = new
	} else if t.nodes[parent].left == old {
		t.nodes[parent].left = new
	} else {
		t.nodes[parent].right = new
	}
	t.nodes[new].parent = parent
}

func (t *tree) isLeftChild(id nodeID) bool {
	p := t.nodes[id].parent
	return p != nilNode && t.nodes[p].left == id
}

func (t *tree) isRightChild(id nodeID) bool {
	p := t.nodes[id].parent
	return p != nilNode && t.nodes[p].right == id
}

// newStart returns the new-coordinate start of id given the new-coordinate
// position at which its subtree span begins.
func (t *tree) newStart(base Point, id nodeID) Point {
	n := &t.nodes[id]
	return Traverse(Traverse(base, t.nodes[n.left].newTotal), n.gap)
}

// rotateLeft moves pivot, a right child, into its parent's place.
func (t *tree) rotateLeft(pivot nodeID) {
	root := t.nodes[pivot].parent
	t.replaceChild(t.nodes[root].parent, root, pivot)
	t.setRight(root, t.nodes[pivot].left)
	t.setLeft(pivot, root)
	t.recalc(root)
	t.recalc(pivot)
}

// rotateRight moves pivot, a left child, into its parent's place.
func (t *tree) rotateRight(pivot nodeID) {
	root := t.nodes[pivot].parent
	t.replaceChild(t.nodes[root].parent, root, pivot)
	t.setLeft(root, t.nodes[pivot].right)
	t.setRight(pivot, root)
	t.recalc(root)
	t.recalc(pivot)
}

// splayNode rotates id upwards until its parent is top; top == nilNode makes
// id the root.
func (t *tree) splayNode(id, top nodeID) {
	for {
		p := t.nodes[id].parent
		if p == top {
			return
		}
		if t.nodes[p].parent == top {
			if t.isLeftChild(id) {
				t.rotateRight(id)
			} else {
				t.rotateLeft(id)
			}
			return
		}
		switch {
		case t.isLeftChild(p) && t.isLeftChild(id): // zig-zig
			t.rotateRight(p)
			t.rotateRight(id)
		case t.isRightChild(p) && t.isRightChild(id): // zig-zig
			t.rotateLeft(p)
			t.rotateLeft(id)
		case t.isLeftChild(p): // zig-zag
			t.rotateLeft(id)
			t.rotateRight(id)
		default: // zig-zag
			t.rotateRight(id)
			t.rotateLeft(id)
		}
	}
}

// splayContaining makes the change containing target (in new coordinates,
// ends inclusive) the root, creating an empty placeholder change at target
// if there is none. Top-down: nodes passed on the way are linked into a left
// tree (everything before target) and a right tree (everything after), which
// become the children of the result.
func (t *tree) splayContaining(target Point) nodeID {
	if t.root == nilNode {
		id := t.alloc()
		t.nodes[id].gap = target
		t.recalc(id)
		t.root = id
		t.count++
		return id
	}

	var leftRoot, leftMax, rightRoot, rightMin nodeID
	t.leftSpine = t.leftSpine[:0]
	t.rightSpine = t.rightSpine[:0]

	linkLeft := func(id nodeID) nodeID {
		if leftMax == nilNode {
			leftRoot = id
		} else {
			t.setRight(leftMax, id)
		}
		leftMax = id
		t.leftSpine = append(t.leftSpine, id)
		next := t.nodes[id].right
		t.nodes[id].right = nilNode
		if next != nilNode {
			t.nodes[next].parent = nilNode
		}
		return next
	}
	linkRight := func(id nodeID) nodeID {
		if rightMin == nilNode {
			rightRoot = id
		} else {
			t.setLeft(rightMin, id)
		}
		rightMin = id
		t.rightSpine = append(t.rightSpine, id)
		next := t.nodes[id].left
		t.nodes[id].left = nilNode
		if next != nilNode {
			t.nodes[next].parent = nilNode
		}
		return next
	}

	// base is the new-coordinate end of everything linked into the left tree,
	// i.e. where the span of the current subtree begins.
	base := ZeroPoint
	cur := t.root
	t.nodes[cur].parent = nilNode
	var found nodeID
	for {
		start := t.newStart(base, cur)
		end := Traverse(start, t.nodes[cur].newExtent)

		if target.Less(start) {
			l := t.nodes[cur].left
			if l == nilNode {
				found = t.alloc()
				t.nodes[found].gap = TraversalDistance(target, base)
				t.nodes[cur].gap = TraversalDistance(start, target)
				linkRight(cur)
				t.count++
				break
			}
			if target.Less(t.newStart(base, l)) && t.nodes[l].left != nilNode {
				t.rotateRight(l)
				cur = l
			}
			cur = linkRight(cur)
		} else if end.Less(target) {
			r := t.nodes[cur].right
			if r == nilNode {
				linkLeft(cur)
				found = t.alloc()
				t.nodes[found].gap = TraversalDistance(target, end)
				if rightMin != nilNode {
					succ := &t.nodes[rightMin]
					succ.gap = TraversalDistance(Traverse(end, succ.gap), target)
				}
				t.count++
				break
			}
			rStart := t.newStart(end, r)
			rEnd := Traverse(rStart, t.nodes[r].newExtent)
			if rEnd.Less(target) && t.nodes[r].right != nilNode {
				t.rotateLeft(r)
				cur = r
				end = rEnd
			}
			base = end
			cur = linkLeft(cur)
		} else {
			found = cur
			break
		}
	}

	f := &t.nodes[found]
	if leftMax != nilNode {
		t.setRight(leftMax, f.left)
		t.setLeft(found, leftRoot)
	}
	if rightMin != nilNode {
		t.setLeft(rightMin, t.nodes[found].right)
		t.setRight(found, rightRoot)
	}
	for i := len(t.leftSpine) - 1; i >= 0; i-- {
		t.recalc(t.leftSpine[i])
	}
	for i := len(t.rightSpine) - 1; i >= 0; i-- {
		t.recalc(t.rightSpine[i])
	}
	t.nodes[found].parent = nilNode
	t.recalc(found)
	t.root = found
	return found
}

// successor returns the in-order successor of id, or nilNode.
func (t *tree) successor(id nodeID) nodeID {
	if r := t.nodes[id].right; r != nilNode {
		for t.nodes[r].left != nilNode {
			r = t.nodes[r].left
		}
		return r
	}
	for t.isRightChild(id) {
		id = t.nodes[id].parent
	}
	return t.nodes[id].parent
}

// bubbleDown rotates the heavier child of id upwards until id is a leaf.
func (t *tree) bubbleDown(id nodeID) {
	for {
		n := &t.nodes[id]
		l, r := n.left, n.right
		switch {
		case l != nilNode && (r == nilNode || t.nodes[l].size >= t.nodes[r].size):
			t.rotateRight(l)
		case r != nilNode:
			t.rotateLeft(r)
		default:
			return
		}
	}
}

// deleteNode removes an empty change from the tree. Its gap is folded into
// the following change so that positions after it do not move.
func (t *tree) deleteNode(id nodeID) {
	n := &t.nodes[id]
	if !n.isEmpty() {
		panic(fmt.Errorf("textpatch: deleting non-empty change %v/%v", n.oldExtent, n.newExtent))
	}
	if succ := t.successor(id); succ != nilNode {
		t.nodes[succ].gap = Traverse(t.nodes[id].gap, t.nodes[succ].gap)
		t.recalcUp(succ)
	}

	t.bubbleDown(id)
	parent := t.nodes[id].parent
	if parent == nilNode {
		t.root = nilNode
	} else {
		if t.nodes[parent].left == id {
			t.nodes[parent].left = nilNode
		} else {
			t.nodes[parent].right = nilNode
		}
		t.recalcUp(parent)
		t.splayNode(parent, nilNode)
	}
	t.release(id)
	t.count--
}

// releaseSubtree frees every node under id, inclusive.
func (t *tree) releaseSubtree(id nodeID) {
	if id == nilNode {
		return
	}
	stack := []nodeID{id}
	for len(stack) > 0 {
		id = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]
		if n.left != nilNode {
			stack = append(stack, n.left)
		}
		if n.right != nilNode {
			stack = append(stack, n.right)
		}
		t.release(id)
		t.count--
	}
}

// walk calls f for each node under id in order.
func (t *tree) walk(id nodeID, f func(id nodeID)) {
	var stack []nodeID
	for id != nilNode || len(stack) > 0 {
		for id != nilNode {
			stack = append(stack, id)
			id = t.nodes[id].left
		}
		id = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		f(id)
		id = t.nodes[id].right
	}
}

// changes flattens the tree into absolute positions.
func (t *tree) changes() []Change {
	result := make([]Change, 0, t.count)
	oldPos, newPos := ZeroPoint, ZeroPoint
	t.walk(t.root, func(id nodeID) {
		n := &t.nodes[id]
		c := Change{
			OldStart:  Traverse(oldPos, n.gap),
			NewStart:  Traverse(newPos, n.gap),
			OldExtent: n.oldExtent,
			NewExtent: n.newExtent,
			OldText:   n.oldText,
			NewText:   n.newText,
		}
		oldPos, newPos = c.OldEnd(), c.NewEnd()
		result = append(result, c)
	})
	return result
}
