package textpatch

// storage is the backend of a Store: a sorted table of serialized patches
// keyed by name, with transactions.
type storage interface {
	Begin(writable bool) (storageTx, error)
	Close() error
}

type storageTx interface {
	// Load returns the serialized patch stored under name, or nil. The slice
	// is only valid until the transaction ends.
	Load(name string) []byte

	Save(name string, data []byte) error

	// Remove deletes name and reports whether it was present.
	Remove(name string) (bool, error)

	// Scan calls f for every name with the given prefix in ascending order
	// until f returns false.
	Scan(prefix string, f func(name string, data []byte) bool)

	Stats() StoreStats

	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit.
	Rollback() error
}
