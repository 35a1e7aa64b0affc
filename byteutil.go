package textpatch

import (
	"encoding/binary"
	"math"
)

// appendWriter is an io.Writer (and io.ByteWriter, which msgpack prefers)
// that appends to a slice.
type appendWriter []byte

func (w *appendWriter) Write(b []byte) (int, error) {
	*w = append(*w, b...)
	return len(b), nil
}

func (w *appendWriter) WriteByte(v byte) error {
	*w = append(*w, v)
	return nil
}

// fieldReader consumes header fields, reporting failures as *DataError with
// the offset into the whole input.
type fieldReader struct {
	data []byte
	rest []byte
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{data, data}
}

func (r *fieldReader) off() int {
	return len(r.data) - len(r.rest)
}

func (r *fieldReader) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(r.rest)
	if n <= 0 {
		return 0, dataErrf(r.data, r.off(), nil, "invalid %s", what)
	}
	r.rest = r.rest[n:]
	return v, nil
}

// length reads a uvarint that must fit in an int32.
func (r *fieldReader) length(what string) (int, error) {
	v, err := r.uvarint(what)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, dataErrf(r.data, r.off(), nil, "%s out of range: %d", what, v)
	}
	return int(v), nil
}

func (r *fieldReader) bytes(n int) ([]byte, error) {
	if len(r.rest) < n {
		return nil, dataErrf(r.data, r.off(), nil, "not enough data: %d bytes remaining, %d wanted", len(r.rest), n)
	}
	v := r.rest[:n]
	r.rest = r.rest[n:]
	return v, nil
}
