/*
Package textpatch tracks the combined effect of many edits ("splices") to a
text document as a minimal ordered list of non-overlapping changes, and maps
positions between the old and the new text.

We implement:

1. Patch, a mutable record of splices. Each splice is given in the
coordinates of the current (new) text, and is merged with any change it
touches.

2. Compose, Invert and FromChange, producing read-only patches.

3. Serialization of a change list, and persistence of patches in a Store
(Bolt or in-memory), in memory-mapped patch files, and in an append-only
History.

4. Apply, and conversion to and from unified diffs.

# Technical Details

**Points.**
Positions are (row, column) pairs. Rows are separated by '\n'. Columns are
bytes by default; RuneMetrics measures them in code points instead. An extent
is a Point used as a delta: traversing by an extent with a non-zero row moves
down that many rows and sets the column, otherwise it adds to the column.

**Change tree.**
Changes live in a splay tree whose nodes sit in an arena and refer to each
other by index. A node does not store its position. It stores the gap since
the end of the previous change, which is the same in old and new coordinates
because unchanged text is unchanged, plus its own old and new extents, plus
the aggregate extents of its subtree. Positions are accumulated while
descending, so rotations only need to recompute the aggregates of the two
nodes involved.

**Splicing.**
A splice from start to oldEnd (both in new coordinates) brings the change
containing start, then the one containing oldEnd, to the top of the tree,
creating empty placeholder changes when no change contains a point. Ends are
inclusive, so touching changes merge. If both points fall in one change, only
its new text is rewritten. Otherwise everything from the first change to the
second is replaced by a single change whose old text is rebuilt from the old
texts of the replaced changes and the unchanged text between them, taken from
the splice's own old text. A change whose extents both end up empty is
removed.

## Binary encoding

**Serialized patch**:
1. Flags (uvarint): format version in the low 4 bits, then a bit set
when columns are counted in code points (RuneMetrics).
2. Number of changes (uvarint).
3. Body size (uvarint).
4. Body: msgpack array of changes, each an array of 8 integers (old start,
new start, old extent, new extent) and 2 strings (old text, new text).
5. xxhash64 of everything above, big-endian.

Deserialize validates all of it, including change ordering, before returning
a patch, and keeps the input bytes so that Serialize can return them as is.
*/
package textpatch
