package textpatch

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// memStorage keeps patches in a map. A write transaction works on a private
// copy that Commit swaps in, while read transactions share the committed map.
// Writers are serialized.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	patches map[string][]byte
	writing bool
	closed  bool
}

func newMemStorage() *memStorage {
	s := &memStorage{patches: make(map[string][]byte)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) Begin(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for writable && s.writing && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, errStoreClosed
	}
	if !writable {
		// Committed maps are swapped in, never modified, so readers can
		// share the current one.
		return &memTx{s: s, patches: s.patches}, nil
	}
	s.writing = true
	// Values are never mutated in place, so a shallow copy is a snapshot.
	return &memTx{s: s, writable: true, patches: maps.Clone(s.patches)}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.patches = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	s        *memStorage
	writable bool
	done     bool
	patches  map[string][]byte
}

func (tx *memTx) Load(name string) []byte {
	return tx.patches[name]
}

func (tx *memTx) Save(name string, data []byte) error {
	if !tx.writable {
		return errReadOnlyTx
	}
	tx.patches[name] = slices.Clone(data)
	return nil
}

func (tx *memTx) Remove(name string) (bool, error) {
	if !tx.writable {
		return false, errReadOnlyTx
	}
	_, found := tx.patches[name]
	delete(tx.patches, name)
	return found, nil
}

func (tx *memTx) Scan(prefix string, f func(name string, data []byte) bool) {
	var names []string
	for name := range tx.patches {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if !f(name, tx.patches[name]) {
			return
		}
	}
}

func (tx *memTx) Stats() StoreStats {
	var size int64
	for name, data := range tx.patches {
		size += int64(len(name) + len(data))
	}
	return StoreStats{Patches: len(tx.patches), DataSize: size, DataAlloc: size}
}

func (tx *memTx) Commit() error {
	if !tx.writable {
		return errReadOnlyTx
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.finishLocked()
	if tx.s.closed {
		return errStoreClosed
	}
	tx.s.patches = tx.patches
	return nil
}

func (tx *memTx) Rollback() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	tx.finishLocked()
	return nil
}

func (tx *memTx) finishLocked() {
	if tx.done {
		return
	}
	tx.done = true
	if tx.writable {
		tx.s.writing = false
		tx.s.cond.Signal()
	}
}
