package textpatch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Serialized form:
//
//  1. flags (uvarint): format version in the low 4 bits, pfRuneColumns;
//  2. number of changes (uvarint);
//  3. body size (uvarint);
//  4. body: msgpack array of changeRecord;
//  5. xxhash64 of 1-4, big-endian.

type patchFlags uint64

const (
	pfVerBit0 = patchFlags(1 << iota)
	pfVerBit1
	pfVerBit2
	pfVerBit3

	// pfRuneColumns marks a patch measured with RuneMetrics. Without it,
	// columns are bytes.
	pfRuneColumns

	pfVerMask       = pfVerBit0 | pfVerBit1 | pfVerBit2 | pfVerBit3
	pfVer1          = pfVerBit0
	pfSupportedMask = pfVer1 | pfRuneColumns
	pfDefault       = pfVer1

	maxHeaderSize  = binary.MaxVarintLen64 * 3
	checksumSize   = 8
	minEncodedSize = 3 + 1 + checksumSize
	maxChangeCount = 1 << 28 // sanity limit
)

func (pf patchFlags) ver() patchFlags {
	return pf & pfVerMask
}

// metricsFlags records m in the header. Metrics other than RuneMetrics are
// stored as byte columns.
func metricsFlags(m TextMetrics) patchFlags {
	switch m.(type) {
	case RuneMetrics, *RuneMetrics:
		return pfRuneColumns
	default:
		return 0
	}
}

func (pf patchFlags) metrics() TextMetrics {
	if pf&pfRuneColumns != 0 {
		return RuneMetrics{}
	}
	return ByteMetrics{}
}

type changeRecord struct {
	_msgpack struct{} `msgpack:",as_array"`

	OldStartRow  uint32
	OldStartCol  uint32
	NewStartRow  uint32
	NewStartCol  uint32
	OldExtentRow uint32
	OldExtentCol uint32
	NewExtentRow uint32
	NewExtentCol uint32
	OldText      string
	NewText      string
}

func makeChangeRecord(c Change) changeRecord {
	return changeRecord{
		OldStartRow:  c.OldStart.Row,
		OldStartCol:  c.OldStart.Column,
		NewStartRow:  c.NewStart.Row,
		NewStartCol:  c.NewStart.Column,
		OldExtentRow: c.OldExtent.Row,
		OldExtentCol: c.OldExtent.Column,
		NewExtentRow: c.NewExtent.Row,
		NewExtentCol: c.NewExtent.Column,
		OldText:      c.OldText,
		NewText:      c.NewText,
	}
}

func (r *changeRecord) change() Change {
	return Change{
		OldStart:  Point{r.OldStartRow, r.OldStartCol},
		NewStart:  Point{r.NewStartRow, r.NewStartCol},
		OldExtent: Point{r.OldExtentRow, r.OldExtentCol},
		NewExtent: Point{r.NewExtentRow, r.NewExtentCol},
		OldText:   r.OldText,
		NewText:   r.NewText,
	}
}

// encodeChanges returns the serialized form of changes measured with m.
func encodeChanges(changes []Change, m TextMetrics) []byte {
	records := make([]changeRecord, len(changes))
	for i, c := range changes {
		records[i] = makeChangeRecord(c)
	}

	// The body is encoded after space reserved for the header, whose size
	// depends on the body's.
	w := make(appendWriter, maxHeaderSize, maxHeaderSize+len(changes)*16+checksumSize)
	enc := msgpack.GetEncoder()
	enc.Reset(&w)
	err := enc.Encode(records)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("textpatch: failed to encode %d changes using MsgPack: %w", len(records), err))
	}

	buf := putHeader(w, pfDefault|metricsFlags(m), len(records))
	return binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

// putHeader fills the reserved header space before the body and returns the
// slice starting at the header.
func putHeader(buf []byte, flags patchFlags, count int) []byte {
	if (flags &^ pfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}
	bodySize := len(buf) - maxHeaderSize

	var header [maxHeaderSize]byte
	off := binary.PutUvarint(header[:], uint64(flags))
	off += binary.PutUvarint(header[off:], uint64(count))
	off += binary.PutUvarint(header[off:], uint64(bodySize))

	start := maxHeaderSize - off
	copy(buf[start:maxHeaderSize], header[:off])
	return buf[start:]
}

// decodeChanges returns the changes and the metrics they were measured with.
func decodeChanges(data []byte) ([]Change, TextMetrics, error) {
	if len(data) < minEncodedSize {
		return nil, nil, dataErrf(data, 0, nil, "invalid patch: at least %d bytes required", minEncodedSize)
	}
	payload := data[:len(data)-checksumSize]
	sum := binary.BigEndian.Uint64(data[len(payload):])
	if actual := xxhash.Sum64(payload); actual != sum {
		return nil, nil, dataErrf(data, len(payload), nil, "invalid patch: checksum %016x, expected %016x", actual, sum)
	}

	r := newFieldReader(payload)
	v, err := r.uvarint("flags")
	if err != nil {
		return nil, nil, err
	}
	flags := patchFlags(v)
	if (flags &^ pfSupportedMask) != 0 || flags.ver() != pfVer1 {
		return nil, nil, dataErrf(data, 0, nil, "invalid patch: unsupported flags %x", v)
	}
	count, err := r.length("change count")
	if err != nil {
		return nil, nil, err
	}
	if count > maxChangeCount {
		return nil, nil, dataErrf(data, r.off(), nil, "invalid patch: %d changes", count)
	}
	size, err := r.length("body size")
	if err != nil {
		return nil, nil, err
	}
	bodyOff := r.off()
	body, err := r.bytes(size)
	if err != nil {
		return nil, nil, err
	}
	if len(r.rest) != 0 {
		return nil, nil, dataErrf(data, r.off(), nil, "invalid patch: %d extra bytes after body", len(r.rest))
	}

	var records []changeRecord
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(body))
	err = dec.Decode(&records)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, nil, dataErrf(data, bodyOff, err, "failed to decode msgpack changes")
	}
	if len(records) != count {
		return nil, nil, dataErrf(data, bodyOff, nil, "invalid patch: got %d changes, header says %d", len(records), count)
	}

	changes := make([]Change, len(records))
	var oldEnd, newEnd Point
	for i := range records {
		c := records[i].change()
		if c.OldStart.Less(oldEnd) || c.NewStart.Less(newEnd) {
			return nil, nil, dataErrf(data, bodyOff, nil, "invalid patch: change %d overlaps its predecessor", i)
		}
		oldEnd, newEnd = c.OldEnd(), c.NewEnd()
		changes[i] = c
	}
	return changes, flags.metrics(), nil
}
