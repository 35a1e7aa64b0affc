package textpatch

import (
	"errors"
	"fmt"
)

var (
	// ErrFrozenPatch is returned by Splice on a read-only patch.
	ErrFrozenPatch = errors.New("textpatch: cannot splice into a read-only patch")

	// ErrPatchNotFound is returned by Store.Get for unknown names.
	ErrPatchNotFound = errors.New("textpatch: patch not found")

	errReadOnlyTx  = errors.New("textpatch: read-only transaction")
	errStoreClosed = errors.New("textpatch: store closed")
)

// DataError reports malformed serialized data.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("textpatch: %s at offset %d: %v: %s", e.Msg, e.Off, e.Err, data)
	}
	return fmt.Sprintf("textpatch: %s at offset %d: %s", e.Msg, e.Off, data)
}

// RangeError reports coordinates that violate ordering or text bounds.
type RangeError struct {
	Start Point
	End   Point
	Msg   string
}

func rangeErrf(start, end Point, format string, args ...any) error {
	return &RangeError{start, end, fmt.Sprintf(format, args...)}
}

func (e *RangeError) Error() string {
	if e.Start == e.End {
		return fmt.Sprintf("textpatch: invalid position %v: %s", e.Start, e.Msg)
	}
	return fmt.Sprintf("textpatch: invalid range %v-%v: %s", e.Start, e.End, e.Msg)
}
