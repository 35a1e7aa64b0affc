//go:build !unix && !windows

package mmap

import (
	"io"
	"os"
)

// Platforms without mmap get a private copy of the file.
func mmap(f *os.File, size int, _ Options) ([]byte, error) {
	b := make([]byte, size)
	if _, err := f.ReadAt(b, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return b, nil
}

func munmap(b []byte) error {
	return nil
}
