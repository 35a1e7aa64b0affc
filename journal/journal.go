// Package journal implements append-only record files split into numbered
// segments.
//
// Each record is checksummed, and the checksum chains through the whole
// segment, so a torn write at the end of the last segment is detected and
// trimmed when the journal is reopened. Corruption anywhere else is an error.
//
// File format:
//
//   - segment = segmentHeader record*
//   - segmentHeader = magic:64 version:8 pad:24 segmentOrdinal:32 invariant:256 checksum:64
//   - record = size:uvarint bytes* checksum:64
//
// Checksums are xxhash64 over everything in the segment that precedes them,
// little-endian.
package journal

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/textpatch/mmap"
)

var (
	ErrIncompatible       = errors.New("incompatible journal")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrClosed             = errors.New("journal closed")
	errCorruptedFile      = errors.New("corrupted journal segment file")
)

type Options struct {
	Context     context.Context
	FileName    string // e.g. "history-*.jrnl"
	MaxFileSize int64  // new segment after this size
	DebugName   string

	// Invariant identifies the kind of data stored; opening a journal
	// written with a different invariant fails with ErrIncompatible.
	Invariant [32]byte

	// NoSync skips fdatasync after each record. Meant for tests.
	NoSync bool

	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const MaxRecordSize = 1 << 30

const (
	magic          = 0x54414c4e52554f4a // "JOURNLAT" as little-endian uint64
	version0 uint8 = 0
)

const segmentHeaderSize = 7 * 8

type segmentHeader struct {
	Magic          uint64
	Version        uint8
	_              [3]uint8
	SegmentOrdinal uint32
	Invariant      [32]byte
	Checksum       uint64
}

const checksumSize = 8

// Journal is a set of segment files in one directory. It is safe for
// concurrent use.
type Journal struct {
	context        context.Context
	maxFileSize    int64
	fileNamePrefix string
	fileNameSuffix string
	debugName      string
	dir            string
	logger         *slog.Logger
	verbose        bool
	noSync         bool
	invariant      [32]byte

	lock      sync.Mutex
	closed    bool
	writeErr  error
	writeSeg  uint32
	segWriter *segmentWriter
}

// Open prepares the journal in dir for reading and appending, trimming an
// incomplete record at the end of the last segment if there is one.
func Open(dir string, o Options) (*Journal, error) {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.FileName == "" {
		o.FileName = "*"
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	if o.DebugName == "" {
		o.DebugName = "journal"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	j := &Journal{
		context:        o.Context,
		maxFileSize:    o.MaxFileSize,
		fileNamePrefix: prefix,
		fileNameSuffix: suffix,
		debugName:      o.DebugName,
		dir:            dir,
		logger:         o.Logger,
		verbose:        o.Verbose,
		noSync:         o.NoSync,
		invariant:      o.Invariant,
	}

	ds, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !ds.IsDir() {
		return nil, fmt.Errorf("%v: %s is not a directory", j.debugName, dir)
	}

	if err := j.prepareToWrite(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) String() string {
	return j.debugName
}

// prepareToWrite validates the last segment and positions the writer at the
// end of its last intact record.
func (j *Journal) prepareToWrite() error {
	names, err := j.segmentNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	lastName := names[len(names)-1]
	seg, err := j.parseSegmentName(lastName)
	if err != nil {
		return err
	}
	j.writeSeg = seg

	f, err := j.openFile(lastName, true)
	if err != nil {
		return err
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	sr := newSegmentReader(f)
	err = sr.readHeader(j, seg)
	if err == errCorruptedFile {
		// A crash while creating the segment; nothing in it was committed.
		j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: deleting corrupted file", slog.String("jrnl", j.debugName), slog.String("file", lastName), slog.Int64("size", stat.Size()))
		f.Close()
		ok = true
		if err := os.Remove(filepath.Join(j.dir, lastName)); err != nil {
			return fmt.Errorf("journal: failed to delete corrupted file: %w", err)
		}
		j.writeSeg = seg - 1
		return nil
	} else if err != nil {
		return err
	}

	for {
		_, err := sr.next()
		if err == io.EOF {
			break
		} else if err == errCorruptedFile {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: trimming incomplete record", slog.String("jrnl", j.debugName), slog.String("file", lastName), slog.Int64("size", stat.Size()), slog.Int64("valid", sr.off))
			if err := f.Truncate(sr.off); err != nil {
				return fmt.Errorf("journal: failed to trim %s: %w", lastName, err)
			}
			break
		} else if err != nil {
			return err
		}
	}

	if sr.off >= j.maxFileSize {
		return nil
	}
	if _, err := f.Seek(sr.off, io.SeekStart); err != nil {
		return err
	}
	j.segWriter = &segmentWriter{
		f:    f,
		name: lastName,
		seg:  seg,
		size: sr.off,
		hash: sr.hash,
	}
	ok = true
	return nil
}

// Append writes data as one record and, unless NoSync is set, makes it
// durable before returning.
func (j *Journal) Append(data []byte) error {
	if len(data) > MaxRecordSize {
		return fmt.Errorf("%v: record of %d bytes exceeds the limit", j.debugName, len(data))
	}

	j.lock.Lock()
	defer j.lock.Unlock()

	if j.closed {
		return ErrClosed
	}
	if j.writeErr != nil {
		return j.writeErr
	}

	if j.segWriter == nil {
		sw, err := startSegment(j, j.writeSeg+1)
		if err != nil {
			return j.fail(err)
		}
		j.writeSeg++
		j.segWriter = sw
		if j.verbose {
			j.logger.LogAttrs(j.context, slog.LevelDebug, "journal: new segment", slog.String("jrnl", j.debugName), slog.String("file", sw.name))
		}
	}

	sw := j.segWriter
	if err := sw.writeRecord(data); err != nil {
		return j.fail(err)
	}
	if !j.noSync {
		if err := mmap.Fdatasync(sw.f); err != nil {
			return j.fail(err)
		}
	}
	if sw.size >= j.maxFileSize {
		j.rotate_locked()
	}
	return nil
}

// Rotate makes the next Append start a new segment.
func (j *Journal) Rotate() {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.rotate_locked()
}

func (j *Journal) rotate_locked() {
	if j.segWriter != nil {
		j.segWriter.close()
		j.segWriter = nil
	}
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}

	j.logger.LogAttrs(j.context, slog.LevelError, "journal: failed", slog.String("jrnl", j.debugName), slog.Any("err", err))

	j.rotate_locked()

	if j.writeErr == nil {
		j.writeErr = err
	}
	return err
}

func (j *Journal) Close() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.closed = true
	j.rotate_locked()
	return nil
}

// Records calls f with every record in order. The data slice is only valid
// until f returns.
func (j *Journal) Records(f func(data []byte) error) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return ErrClosed
	}

	names, err := j.segmentNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := j.context.Err(); err != nil {
			return err
		}
		seg, err := j.parseSegmentName(name)
		if err != nil {
			return err
		}
		if err := j.readSegment(name, seg, f); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) readSegment(name string, seg uint32, f func(data []byte) error) error {
	file, err := j.openFile(name, false)
	if err != nil {
		return err
	}
	defer file.Close()

	sr := newSegmentReader(file)
	if err := sr.readHeader(j, seg); err != nil {
		return fmt.Errorf("%v: %s: %w", j.debugName, name, err)
	}
	for {
		data, err := sr.next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("%v: %s at offset %d: %w", j.debugName, name, sr.off, err)
		}
		if err := f(data); err != nil {
			return err
		}
	}
}

// FileNames returns the segment file names in order.
func (j *Journal) FileNames() ([]string, error) {
	return j.segmentNames()
}

func (j *Journal) openFile(name string, writable bool) (*os.File, error) {
	fn := filepath.Join(j.dir, name)
	if writable {
		return os.OpenFile(fn, os.O_RDWR|os.O_CREATE, 0o666)
	} else {
		return os.Open(fn)
	}
}

func (j *Journal) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if _, err := j.parseSegmentName(name); err != nil {
			continue
		}
		names = append(names, name)
	}
	// Fixed-width ordinals make lexicographic order numeric.
	slices.Sort(names)
	return names, nil
}

func (j *Journal) formatSegmentName(seg uint32) string {
	return fmt.Sprintf("%s%012d%s", j.fileNamePrefix, seg, j.fileNameSuffix)
}

func (j *Journal) parseSegmentName(name string) (uint32, error) {
	s, ok := strings.CutPrefix(name, j.fileNamePrefix)
	if ok {
		s, ok = strings.CutSuffix(s, j.fileNameSuffix)
	}
	if !ok || len(s) != 12 {
		return 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	return uint32(v), nil
}

type segmentWriter struct {
	f    *os.File
	name string
	seg  uint32
	size int64
	hash *xxhash.Digest
}

func startSegment(j *Journal, seg uint32) (*segmentWriter, error) {
	name := j.formatSegmentName(seg)

	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{
		f:    f,
		name: name,
		seg:  seg,
		size: segmentHeaderSize,
		hash: xxhash.New(),
	}

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], j, seg, sw.hash)

	_, err = f.Write(hbuf[:])
	if err != nil {
		return nil, err
	}

	ok = true
	return sw, nil
}

func (sw *segmentWriter) writeRecord(data []byte) error {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(data)+checksumSize)
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	buf = append(buf, data...)
	sw.hash.Write(buf)
	buf = binary.LittleEndian.AppendUint64(buf, sw.hash.Sum64())
	sw.hash.Write(buf[len(buf)-checksumSize:])

	_, err := sw.f.Write(buf)
	if err != nil {
		return err
	}
	sw.size += int64(len(buf))
	return nil
}

func (sw *segmentWriter) close() {
	if sw.f == nil {
		return
	}
	sw.f.Close()
	sw.f = nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, j *Journal, seg uint32, hash *xxhash.Digest) {
	h := segmentHeader{
		Magic:          magic,
		Version:        version0,
		SegmentOrdinal: seg,
		Invariant:      j.invariant,
	}

	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	hash.Write(buf[:segmentHeaderSize-checksumSize])
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-checksumSize:], hash.Sum64())
	hash.Write(buf[segmentHeaderSize-checksumSize:])
}

type segmentReader struct {
	r    *bufio.Reader
	off  int64 // end of the last intact record
	hash *xxhash.Digest
	buf  []byte
}

func newSegmentReader(f *os.File) *segmentReader {
	return &segmentReader{
		r:    bufio.NewReader(f),
		hash: xxhash.New(),
	}
}

func (sr *segmentReader) readHeader(j *Journal, expectedSeg uint32) error {
	var buf [segmentHeaderSize]byte
	_, err := io.ReadFull(sr.r, buf[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return errCorruptedFile
	} else if err != nil {
		return err
	}
	var h segmentHeader
	n, err := binary.Decode(buf[:], binary.LittleEndian, &h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	sr.hash.Write(buf[:segmentHeaderSize-checksumSize])
	if sr.hash.Sum64() != h.Checksum || h.Magic != magic {
		return errCorruptedFile
	}
	sr.hash.Write(buf[segmentHeaderSize-checksumSize:])
	if expectedSeg != h.SegmentOrdinal {
		return errCorruptedFile
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.Invariant != j.invariant {
		return ErrIncompatible
	}
	sr.off = segmentHeaderSize
	return nil
}

// next returns the following record, io.EOF at a clean end of segment, or
// errCorruptedFile for a truncated or damaged record.
func (sr *segmentReader) next() ([]byte, error) {
	br := byteRecorder{r: sr.r}
	size, err := binary.ReadUvarint(&br)
	if br.err != nil && br.err != io.EOF {
		return nil, br.err
	} else if err == io.EOF {
		return nil, io.EOF
	} else if err != nil || size > MaxRecordSize {
		return nil, errCorruptedFile
	}

	n := int(size)
	sr.buf = slices.Grow(sr.buf[:0], n+checksumSize)[:n+checksumSize]
	if _, err := io.ReadFull(sr.r, sr.buf); err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, errCorruptedFile
	} else if err != nil {
		return nil, err
	}

	// The running hash only advances past intact records, so that a writer
	// can continue from it after trimming.
	h := *sr.hash
	h.Write(br.buf[:br.n])
	h.Write(sr.buf[:n])
	if h.Sum64() != binary.LittleEndian.Uint64(sr.buf[n:]) {
		return nil, errCorruptedFile
	}
	h.Write(sr.buf[n:])
	*sr.hash = h
	sr.off += int64(br.n + n + checksumSize)
	return sr.buf[:n], nil
}

// byteRecorder keeps the bytes of a uvarint for hashing, and the underlying
// read error, which binary.ReadUvarint does not always pass through.
type byteRecorder struct {
	r   io.ByteReader
	buf [binary.MaxVarintLen64]byte
	n   int
	err error
}

func (br *byteRecorder) ReadByte() (byte, error) {
	b, err := br.r.ReadByte()
	if err != nil {
		br.err = err
		return 0, err
	}
	if br.n < len(br.buf) {
		br.buf[br.n] = b
		br.n++
	}
	return b, nil
}
