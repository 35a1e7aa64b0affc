package textpatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

func TestSerialize_RoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewPCG(11, 11))
	p := newTestPatch()
	doc := randomText(rnd, 100)
	for range 40 {
		doc = randomSplice(t, rnd, p, doc)
	}

	data := p.Serialize()
	q, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !q.IsFrozen() {
		t.Fatalf("deserialized patch is not frozen")
	}
	deepEqual(t, q.Changes(), p.Changes())
	if !bytes.Equal(q.Serialize(), data) {
		t.Fatalf("Serialize after Deserialize returned different bytes")
	}
	if !bytes.Equal(encodeChanges(q.Changes(), q.Metrics()), data) {
		t.Fatalf("re-encoding changes returned different bytes")
	}
}

func TestSerialize_Empty(t *testing.T) {
	data := New().Serialize()
	q, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	isempty(t, q.Changes())
	deepEqual(t, q.Len(), 0)
}

func TestDeserialize_Corrupted(t *testing.T) {
	p := newTestPatch()
	ensure(p.SpliceWithText(Point{0, 1}, "a", "bc"))
	ensure(p.SpliceWithText(Point{2, 0}, "x\ny", ""))
	data := p.Serialize()

	for i := range data {
		bad := bytes.Clone(data)
		bad[i] ^= 0x10
		expectDataError(t, bad)
	}
	for n := range len(data) {
		expectDataError(t, data[:n])
	}
	expectDataError(t, nil)
}

func TestDeserialize_Malformed(t *testing.T) {
	r1 := makeChangeRecord(Change{OldStart: Point{0, 5}, NewStart: Point{0, 5}, OldExtent: Point{0, 3}, NewExtent: Point{0, 3}, OldText: "abc", NewText: "xyz"})
	r2 := makeChangeRecord(Change{OldStart: Point{0, 6}, NewStart: Point{0, 6}, OldExtent: Point{0, 1}, NewExtent: Point{0, 1}, OldText: "b", NewText: "q"})
	overlapping := must(msgpack.Marshal([]changeRecord{r1, r2}))
	single := must(msgpack.Marshal([]changeRecord{r1}))

	tests := []struct {
		name string
		data []byte
	}{
		{"bad msgpack", sealedPatch([]byte{0xc1}, 1)},
		{"count mismatch", sealedPatch(single, 2)},
		{"overlap", sealedPatch(overlapping, 2)},
		{"unsupported flags", withChecksum([]byte{0x02, 0x00, 0x01, 0x90})},
		{"unknown flag bit", withChecksum([]byte{0x21, 0x00, 0x01, 0x90})},
		{"extra bytes", withChecksum([]byte{0x01, 0x00, 0x01, 0x90, 0x00})},
		{"short body", withChecksum([]byte{0x01, 0x00, 0x05, 0x90})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectDataError(t, tt.data)
		})
	}

	// Sanity check for the helpers.
	q, err := Deserialize(sealedPatch(single, 1))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	deepEqual(t, q.Changes(), []Change{r1.change()})
}

func expectDataError(t testing.TB, data []byte) {
	t.Helper()
	p, err := Deserialize(data)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Deserialize(%x) = (%v, %v), wanted *DataError", data, p, err)
	}
}

func sealedPatch(body []byte, count int) []byte {
	buf := make([]byte, maxHeaderSize, maxHeaderSize+len(body)+checksumSize)
	buf = append(buf, body...)
	return withChecksum(putHeader(buf, pfDefault, count))
}

func withChecksum(buf []byte) []byte {
	return binary.BigEndian.AppendUint64(bytes.Clone(buf), xxhash.Sum64(buf))
}

func TestSerialize_KeepsRuneMetrics(t *testing.T) {
	p := NewWithOptions(Options{Metrics: RuneMetrics{}, Strict: true})
	ensure(p.SpliceWithText(Point{0, 1}, "a", "X"))
	deepEqual(t, must(p.Apply("éab")), "éXb")

	data := p.Serialize()
	deepEqual(t, patchFlags(data[0]), pfVer1|pfRuneColumns)

	q := must(Deserialize(data))
	deepEqual(t, q.Metrics(), TextMetrics(RuneMetrics{}))
	deepEqual(t, must(q.Apply("éab")), "éXb")

	b := must(Deserialize(New().Serialize()))
	deepEqual(t, b.Metrics(), TextMetrics(ByteMetrics{}))
}
