package textpatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreyvit/textpatch/mmap"
)

// WriteFile serializes p (freezing it) and atomically replaces path with
// the result.
func WriteFile(path string, p *Patch) error {
	data := p.Serialize()

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("textpatch: write %s: %w", path, err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("textpatch: write %s: %w", path, err)
	}
	if err := mmap.Fdatasync(f); err != nil {
		return fmt.Errorf("textpatch: write %s: sync: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("textpatch: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("textpatch: write %s: %w", path, err)
	}
	ok = true
	return nil
}

// File is a patch read from a memory-mapped file.
type File struct {
	Patch *Patch
	data  []byte
}

// OpenFile maps the patch file at path and deserializes it.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("textpatch: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.SequentialAccess)
	if err != nil {
		return nil, fmt.Errorf("textpatch: open %s: %w", path, err)
	}
	p, err := Deserialize(data)
	if err != nil {
		// The error must not reference the mapping once it is gone.
		var derr *DataError
		if errors.As(err, &derr) {
			derr.Data = bytes.Clone(derr.Data)
		}
		mmap.Unmap(data)
		return nil, fmt.Errorf("textpatch: open %s: %w", path, err)
	}
	return &File{Patch: p, data: data}, nil
}

// Close releases the mapping. Patch stays usable, and Serialize returns a
// fresh encoding of its changes instead of the mapped bytes. Close must not
// run concurrently with reads of Patch.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	f.Patch.serialized = encodeChanges(f.Patch.Changes(), f.Patch.metrics)
	err := mmap.Unmap(f.data)
	f.data = nil
	return err
}
