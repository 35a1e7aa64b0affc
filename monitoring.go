package textpatch

// StoreStats describes the contents of a Store. FileSize is zero for
// in-memory stores.
type StoreStats struct {
	Patches int

	DataSize  int64
	DataAlloc int64
	FileSize  int64
}

func (s *Store) Stats() (StoreStats, error) {
	var result StoreStats
	err := s.read(func(tx storageTx) error {
		result = tx.Stats()
		return nil
	})
	return result, err
}
