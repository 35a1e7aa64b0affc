package textpatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/textpatch/journal"
)

var historyInvariant = [32]byte{'t', 'e', 'x', 't', 'p', 'a', 't', 'c', 'h', ' ', 'h', 'i', 's', 't', 'o', 'r', 'y', ' ', 'v', '1'}

type HistoryOptions struct {
	MaxFileSize int64
	NoSync      bool
	Logger      *slog.Logger
	Verbose     bool
}

// History is a durable, append-only sequence of patches stored as journal
// segments in a directory. It is safe for concurrent use.
type History struct {
	j       *journal.Journal
	logger  *slog.Logger
	verbose bool
}

func OpenHistory(dir string, opt HistoryOptions) (*History, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	j, err := journal.Open(dir, journal.Options{
		FileName:    "history-*.jrnl",
		MaxFileSize: opt.MaxFileSize,
		DebugName:   "history",
		Invariant:   historyInvariant,
		NoSync:      opt.NoSync,
		Logger:      opt.Logger,
		Verbose:     opt.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("textpatch: opening history: %w", err)
	}
	return &History{j: j, logger: opt.Logger, verbose: opt.Verbose}, nil
}

func (h *History) Close() error {
	return h.j.Close()
}

// Record appends p, serializing (and therefore freezing) it.
func (h *History) Record(p *Patch) error {
	data := p.Serialize()
	if err := h.j.Append(data); err != nil {
		return fmt.Errorf("textpatch: history: %w", err)
	}
	if h.verbose {
		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "patch recorded", slog.Int("changes", p.Len()), slog.Int("bytes", len(data)))
	}
	return nil
}

// Patches returns every recorded patch, oldest first.
func (h *History) Patches() ([]*Patch, error) {
	var patches []*Patch
	err := h.j.Records(func(data []byte) error {
		// Record data is reused by the reader, and Deserialize keeps it.
		p, err := Deserialize(append([]byte(nil), data...))
		if err != nil {
			return fmt.Errorf("record %d: %w", len(patches), err)
		}
		patches = append(patches, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("textpatch: history: %w", err)
	}
	return patches, nil
}

// Replay composes every recorded patch into one.
func (h *History) Replay() (*Patch, error) {
	patches, err := h.Patches()
	if err != nil {
		return nil, err
	}
	return Compose(patches...)
}
