package mmap

import "os"

// Fdatasync flushes the file's data to stable storage. Where the platform
// allows, metadata that is not needed to read the data back (such as the
// modification time) is not flushed.
//
// After a failed Fdatasync the file contents are unknown.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
