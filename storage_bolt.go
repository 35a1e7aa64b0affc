package textpatch

import (
	"bytes"
	"errors"
	"unsafe"

	"go.etcd.io/bbolt"
)

var patchesBucket = []byte("patches")

type boltStorage struct {
	bdb *bbolt.DB
}

func (s *boltStorage) Begin(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx: btx}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	btx *bbolt.Tx
}

// patches returns nil until the first Save creates the bucket.
func (tx *boltTx) patches() *bbolt.Bucket {
	return tx.btx.Bucket(patchesBucket)
}

func (tx *boltTx) Load(name string) []byte {
	b := tx.patches()
	if b == nil {
		return nil
	}
	return b.Get(unsafeBytesFromString(name))
}

func (tx *boltTx) Save(name string, data []byte) error {
	if !tx.btx.Writable() {
		return errReadOnlyTx
	}
	b, err := tx.btx.CreateBucketIfNotExists(patchesBucket)
	if err != nil {
		return err
	}
	// Bolt keeps the key until commit, so it must not alias name.
	return b.Put([]byte(name), data)
}

func (tx *boltTx) Remove(name string) (bool, error) {
	if !tx.btx.Writable() {
		return false, errReadOnlyTx
	}
	b := tx.patches()
	key := unsafeBytesFromString(name)
	if b == nil || b.Get(key) == nil {
		return false, nil
	}
	return true, b.Delete(key)
}

func (tx *boltTx) Scan(prefix string, f func(name string, data []byte) bool) {
	b := tx.patches()
	if b == nil {
		return
	}
	p := []byte(prefix)
	c := b.Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		if !f(string(k), v) {
			return
		}
	}
}

func (tx *boltTx) Stats() StoreStats {
	result := StoreStats{FileSize: tx.btx.Size()}
	b := tx.patches()
	if b == nil {
		return result
	}
	s := b.Stats()
	result.Patches = s.KeyN
	// Small buckets live inline in their parent page and report no leaf
	// pages of their own.
	result.DataSize = int64(s.LeafInuse + s.InlineBucketInuse)
	result.DataAlloc = int64(s.BranchAlloc + s.LeafAlloc)
	return result
}

func (tx *boltTx) Commit() error { return tx.btx.Commit() }

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if errors.Is(err, bbolt.ErrTxClosed) {
		return nil
	}
	return err
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
