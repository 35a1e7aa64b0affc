package textpatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

type StoreOptions struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int
	Timeout   time.Duration
}

// Store keeps named patches in serialized form. It is safe for concurrent
// use.
type Store struct {
	st      storage
	logger  *slog.Logger
	verbose bool
}

// OpenStore opens or creates a Bolt-backed store at path.
func OpenStore(path string, opt StoreOptions) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("textpatch: opening store: %w", err)
	}
	s := newStore(&boltStorage{bdb: bdb}, opt)
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store opened", slog.String("path", path))
	}
	return s, nil
}

// NewMemStore returns a transient in-memory store.
func NewMemStore(opt StoreOptions) *Store {
	return newStore(newMemStorage(), opt)
}

func newStore(st storage, opt StoreOptions) *Store {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Store{st: st, logger: opt.Logger, verbose: opt.Verbose}
}

func (s *Store) Close() error {
	return s.st.Close()
}

func (s *Store) read(f func(tx storageTx) error) error {
	tx, err := s.st.Begin(false)
	if err != nil {
		return fmt.Errorf("textpatch: store: %w", err)
	}
	defer tx.Rollback()
	return f(tx)
}

func (s *Store) write(f func(tx storageTx) error) error {
	tx, err := s.st.Begin(true)
	if err != nil {
		return fmt.Errorf("textpatch: store: %w", err)
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("textpatch: store: commit: %w", err)
	}
	return nil
}

// Put stores p under name, serializing (and therefore freezing) it.
func (s *Store) Put(name string, p *Patch) error {
	data := p.Serialize()
	err := s.write(func(tx storageTx) error {
		return tx.Save(name, data)
	})
	if err != nil {
		return fmt.Errorf("textpatch: put %q: %w", name, err)
	}
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "patch stored", slog.String("name", name), slog.Int("changes", p.Len()), slog.Int("bytes", len(data)))
	}
	return nil
}

// Get loads the patch stored under name, or fails with ErrPatchNotFound.
func (s *Store) Get(name string) (*Patch, error) {
	var data []byte
	err := s.read(func(tx storageTx) error {
		data = bytes.Clone(tx.Load(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %q", ErrPatchNotFound, name)
	}
	p, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("textpatch: get %q: %w", name, err)
	}
	return p, nil
}

// Append composes the patch stored under name (if any) with p and stores
// the result, returning it.
func (s *Store) Append(name string, p *Patch) (*Patch, error) {
	var combined *Patch
	err := s.write(func(tx storageTx) error {
		combined = p
		if v := tx.Load(name); v != nil {
			prev, err := Deserialize(bytes.Clone(v))
			if err != nil {
				return err
			}
			combined, err = Compose(prev, p)
			if err != nil {
				return err
			}
		}
		return tx.Save(name, combined.Serialize())
	})
	if err != nil {
		return nil, fmt.Errorf("textpatch: append %q: %w", name, err)
	}
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "patch appended", slog.String("name", name), slog.Int("changes", combined.Len()))
	}
	return combined, nil
}

func (s *Store) Delete(name string) error {
	var found bool
	err := s.write(func(tx storageTx) error {
		var err error
		found, err = tx.Remove(name)
		return err
	})
	if err != nil {
		return fmt.Errorf("textpatch: delete %q: %w", name, err)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrPatchNotFound, name)
	}
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "patch deleted", slog.String("name", name))
	}
	return nil
}

// Names lists stored patch names with the given prefix in ascending order.
func (s *Store) Names(prefix string) ([]string, error) {
	var names []string
	err := s.read(func(tx storageTx) error {
		tx.Scan(prefix, func(name string, _ []byte) bool {
			names = append(names, name)
			return true
		})
		return nil
	})
	return names, err
}
