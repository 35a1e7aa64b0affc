package textpatch

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestSplice_Single(t *testing.T) {
	p := newTestPatch()
	ensure(p.Splice(Point{0, 5}, Point{0, 2}, Point{0, 3}, "ab", "xyz"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 5}, NewStart: Point{0, 5}, OldExtent: Point{0, 2}, NewExtent: Point{0, 3}, OldText: "ab", NewText: "xyz"},
	})
}

func TestSplice_MergeAcrossChanges(t *testing.T) {
	p := newTestPatch()
	// 0123456789abcdefghij -> 01X456789abcdefghij
	ensure(p.SpliceWithText(Point{0, 2}, "23", "X"))
	// -> 01X45678YYbcdefghij
	ensure(p.SpliceWithText(Point{0, 8}, "9a", "YY"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 2}, NewStart: Point{0, 2}, OldExtent: Point{0, 2}, NewExtent: Point{0, 1}, OldText: "23", NewText: "X"},
		{OldStart: Point{0, 9}, NewStart: Point{0, 8}, OldExtent: Point{0, 2}, NewExtent: Point{0, 2}, OldText: "9a", NewText: "YY"},
	})

	// -> 0ZYbcdefghij
	ensure(p.SpliceWithText(Point{0, 1}, "1X45678Y", "Z"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 1}, NewStart: Point{0, 1}, OldExtent: Point{0, 10}, NewExtent: Point{0, 2}, OldText: "123456789a", NewText: "ZY"},
	})
}

func TestSplice_InsideChange(t *testing.T) {
	p := newTestPatch()
	ensure(p.SpliceWithText(Point{1, 2}, "abc", "hello"))
	ensure(p.SpliceWithText(Point{1, 3}, "ell", "ipp\ny"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{1, 2}, NewStart: Point{1, 2}, OldExtent: Point{0, 3}, NewExtent: Point{1, 2}, OldText: "abc", NewText: "hipp\nyo"},
	})
}

func TestSplice_TouchingChangesMerge(t *testing.T) {
	p := newTestPatch()
	ensure(p.SpliceWithText(Point{0, 2}, "cd", "X"))
	ensure(p.SpliceWithText(Point{0, 3}, "e", "Y"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 2}, NewStart: Point{0, 2}, OldExtent: Point{0, 3}, NewExtent: Point{0, 2}, OldText: "cde", NewText: "XY"},
	})

	ensure(p.SpliceWithText(Point{0, 1}, "b", ""))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 1}, NewStart: Point{0, 1}, OldExtent: Point{0, 4}, NewExtent: Point{0, 2}, OldText: "bcde", NewText: "XY"},
	})
}

func TestSplice_Multiline(t *testing.T) {
	p := newTestPatch()
	// "abc\ndef\nghi" -> "abc\nd\nXe\nf\nghi"
	ensure(p.SpliceWithText(Point{1, 1}, "e", "\nXe\n"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{1, 1}, NewStart: Point{1, 1}, OldExtent: Point{0, 1}, NewExtent: Point{2, 0}, OldText: "e", NewText: "\nXe\n"},
	})
	// A splice on a later row lands after the change in old coordinates.
	// "abc\nd\nXe\nf\nghi" -> "abc\nd\nXe\nf\ngHi"
	ensure(p.SpliceWithText(Point{4, 1}, "h", "H"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{1, 1}, NewStart: Point{1, 1}, OldExtent: Point{0, 1}, NewExtent: Point{2, 0}, OldText: "e", NewText: "\nXe\n"},
		{OldStart: Point{2, 1}, NewStart: Point{4, 1}, OldExtent: Point{0, 1}, NewExtent: Point{0, 1}, OldText: "h", NewText: "H"},
	})
}

func TestSplice_UndoRemovesChange(t *testing.T) {
	p := newTestPatch()
	ensure(p.SpliceWithText(Point{0, 3}, "", "abc"))
	ensure(p.SpliceWithText(Point{0, 10}, "x", "y"))
	ensure(p.SpliceWithText(Point{0, 3}, "abc", ""))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 7}, NewStart: Point{0, 7}, OldExtent: Point{0, 1}, NewExtent: Point{0, 1}, OldText: "x", NewText: "y"},
	})
	deepEqual(t, p.Len(), 1)

	ensure(p.SpliceWithText(Point{0, 7}, "y", "x"))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 7}, NewStart: Point{0, 7}, OldExtent: Point{0, 1}, NewExtent: Point{0, 1}, OldText: "x", NewText: "x"},
	})

	p = newTestPatch()
	ensure(p.SpliceWithText(Point{2, 0}, "", "q\n"))
	ensure(p.SpliceWithText(Point{2, 0}, "q\n", ""))
	isempty(t, p.Changes())
	deepEqual(t, p.Len(), 0)
}

func TestSplice_NoOp(t *testing.T) {
	p := newTestPatch()
	ensure(p.Splice(Point{3, 3}, ZeroPoint, ZeroPoint, "", ""))
	isempty(t, p.Changes())
}

func TestSplice_InvalidText(t *testing.T) {
	p := newTestPatch()
	err := p.Splice(Point{0, 1}, Point{0, 2}, Point{0, 1}, "abc", "x")
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("Splice err = %v, wanted *RangeError", err)
	}
	isempty(t, p.Changes())

	err = p.Splice(Point{0, 1}, Point{0, 1}, Point{1, 0}, "a", "x")
	if !errors.As(err, &re) {
		t.Fatalf("Splice err = %v, wanted *RangeError", err)
	}
	isempty(t, p.Changes())
}

func TestSplice_Frozen(t *testing.T) {
	p := newTestPatch()
	ensure(p.SpliceWithText(Point{0, 1}, "a", "b"))
	data := p.Serialize()
	if !p.IsFrozen() {
		t.Fatalf("IsFrozen = false after Serialize")
	}
	if err := p.SpliceWithText(Point{0, 5}, "", "x"); !errors.Is(err, ErrFrozenPatch) {
		t.Fatalf("Splice err = %v, wanted ErrFrozenPatch", err)
	}
	if again := p.Serialize(); &again[0] != &data[0] {
		t.Fatalf("second Serialize re-encoded the patch")
	}
}

func TestQueries(t *testing.T) {
	p := newTestPatch()
	// "0123456789" -> "01X456789"
	ensure(p.SpliceWithText(Point{0, 2}, "23", "X"))
	// -> "01X45YYY89"
	ensure(p.SpliceWithText(Point{0, 5}, "67", "YYY"))

	h1 := Hunk{OldStart: Point{0, 2}, OldEnd: Point{0, 4}, NewStart: Point{0, 2}, NewEnd: Point{0, 3}, OldText: "23", NewText: "X"}
	h2 := Hunk{OldStart: Point{0, 6}, OldEnd: Point{0, 8}, NewStart: Point{0, 5}, NewEnd: Point{0, 8}, OldText: "67", NewText: "YYY"}
	deepEqual(t, p.Hunks(), []Hunk{h1, h2})

	deepEqual(t, p.HunksInNewRange(Point{0, 0}, Point{0, 2}), []Hunk(nil))
	deepEqual(t, p.HunksInNewRange(Point{0, 0}, Point{0, 3}), []Hunk{h1})
	deepEqual(t, p.HunksInNewRange(Point{0, 3}, Point{0, 5}), []Hunk(nil))
	deepEqual(t, p.HunksInNewRange(Point{0, 2}, Point{0, 6}), []Hunk{h1, h2})
	deepEqual(t, p.HunksInNewRange(Point{0, 7}, Point{9, 0}), []Hunk{h2})

	h, ok := p.HunkForOldPosition(Point{0, 1})
	if ok {
		t.Errorf("HunkForOldPosition(0,1) = %v, wanted none", h)
	}
	h, _ = p.HunkForOldPosition(Point{0, 5})
	deepEqual(t, h, h1)
	h, _ = p.HunkForOldPosition(Point{0, 6})
	deepEqual(t, h, h2)
	h, _ = p.HunkForNewPosition(Point{0, 4})
	deepEqual(t, h, h1)
	h, _ = p.HunkForNewPosition(Point{3, 0})
	deepEqual(t, h, h2)

	deepEqual(t, p.TranslateOldPosition(Point{0, 1}), Point{0, 1})
	deepEqual(t, p.TranslateOldPosition(Point{0, 3}), Point{0, 3})
	deepEqual(t, p.TranslateOldPosition(Point{0, 5}), Point{0, 4})
	deepEqual(t, p.TranslateOldPosition(Point{0, 7}), Point{0, 6})
	deepEqual(t, p.TranslateOldPosition(Point{0, 9}), Point{0, 9})
	deepEqual(t, p.TranslateOldPosition(Point{2, 4}), Point{2, 4})

	deepEqual(t, p.TranslateNewPosition(Point{0, 3}), Point{0, 4})
	deepEqual(t, p.TranslateNewPosition(Point{0, 7}), Point{0, 8})
	deepEqual(t, p.TranslateNewPosition(Point{0, 9}), Point{0, 9})
}

func TestSplice_RuneMetrics(t *testing.T) {
	p := NewWithOptions(Options{Metrics: RuneMetrics{}, Strict: true})
	// "жжж\nééé" -> "жXж\nééé"
	ensure(p.SpliceWithText(Point{0, 1}, "ж", "X"))
	// -> "жXé"
	ensure(p.SpliceWithText(Point{0, 2}, "ж\néé", ""))
	deepEqual(t, p.Changes(), []Change{
		{OldStart: Point{0, 1}, NewStart: Point{0, 1}, OldExtent: Point{1, 2}, NewExtent: Point{0, 1}, OldText: "жж\néé", NewText: "X"},
	})
}

func TestSplice_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewWithOptions(Options{Verbose: true, Logger: logger})
	ensure(p.SpliceWithText(Point{0, 1}, "a", "b"))
	if s := buf.String(); !strings.Contains(s, "msg=splice") || !strings.Contains(s, "old_extent=\"(0, 1)\"") {
		t.Fatalf("log = %q, wanted a splice record", s)
	}
}

func TestFrozen_ConcurrentReads(t *testing.T) {
	rnd := rand.New(rand.NewPCG(5, 5))
	orig := randomText(rnd, 40)
	p := newTestPatch()
	doc := orig
	for range 10 {
		doc = randomSplice(t, rnd, p, doc)
	}
	ensure(p.SpliceWithText(ZeroPoint, "", "Q"))

	for _, frozen := range []*Patch{Invert(p), must(Compose(p, Invert(p))), FromChange(p.Changes()[0])} {
		want := encodeChanges(frozen.Changes(), frozen.Metrics())
		hunks := frozen.HunksInNewRange(ZeroPoint, Point{100, 0})

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 10 {
					if !bytes.Equal(frozen.Serialize(), want) {
						t.Errorf("** Serialize returned different bytes")
					}
					if !reflect.DeepEqual(frozen.HunksInNewRange(ZeroPoint, Point{100, 0}), hunks) {
						t.Errorf("** HunksInNewRange returned different hunks")
					}
				}
			}()
		}
		wg.Wait()
	}
}

func TestSplice_Random(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rnd := rand.New(rand.NewPCG(seed, 42))
			orig := randomText(rnd, 40)
			p := newTestPatch()
			doc := orig
			for i := 0; i < 30; i++ {
				doc = randomSplice(t, rnd, p, doc)
				verifyPatch(t, p, orig, doc)
				if t.Failed() {
					t.Logf("after splice %d:\n%s", i, p.Dump(DumpAll))
					return
				}
			}
			verifyNewRangeQueries(t, rnd, p)
		})
	}
}

// randomSplice applies a random edit to doc, records it in p and returns the
// edited doc.
func randomSplice(t testing.TB, rnd *rand.Rand, p *Patch, doc string) string {
	t.Helper()
	i := rnd.IntN(len(doc) + 1)
	j := i + rnd.IntN(min(len(doc)-i, 8)+1)
	newText := randomText(rnd, rnd.IntN(6))
	start := ByteMetrics{}.Extent(doc[:i])
	if err := p.SpliceWithText(start, doc[i:j], newText); err != nil {
		t.Fatalf("SpliceWithText(%v, %q, %q): %v", start, doc[i:j], newText, err)
	}
	return doc[:i] + newText + doc[j:]
}

func randomText(rnd *rand.Rand, n int) string {
	var buf strings.Builder
	for range n {
		if rnd.IntN(5) == 0 {
			buf.WriteByte('\n')
		} else {
			buf.WriteByte(byte('a' + rnd.IntN(26)))
		}
	}
	return buf.String()
}

// verifyPatch checks that p transforms orig into doc and that every change
// records the exact original and current text of its range.
func verifyPatch(t testing.TB, p *Patch, orig, doc string) {
	t.Helper()
	m := ByteMetrics{}
	var rebuilt strings.Builder
	var oldOff, newOff int
	var prevOld, prevNew Point
	for i, c := range p.Changes() {
		if c.OldStart.Less(prevOld) || c.NewStart.Less(prevNew) {
			t.Errorf("change %d %v overlaps its predecessor", i, c)
			return
		}
		if c.OldExtent.IsZero() && c.NewExtent.IsZero() {
			t.Errorf("change %d is empty", i)
		}
		prevOld, prevNew = c.OldEnd(), c.NewEnd()

		oStart, err1 := m.CharIndexForPoint(orig, c.OldStart)
		oEnd, err2 := m.CharIndexForPoint(orig, c.OldEnd())
		nStart, err3 := m.CharIndexForPoint(doc, c.NewStart)
		nEnd, err4 := m.CharIndexForPoint(doc, c.NewEnd())
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			t.Errorf("change %d %v out of bounds: %v", i, c, err)
			return
		}
		if orig[oStart:oEnd] != c.OldText {
			t.Errorf("change %d old text = %q, original has %q", i, c.OldText, orig[oStart:oEnd])
		}
		if doc[nStart:nEnd] != c.NewText {
			t.Errorf("change %d new text = %q, document has %q", i, c.NewText, doc[nStart:nEnd])
		}
		if orig[oldOff:oStart] != doc[newOff:nStart] {
			t.Errorf("unchanged text before change %d differs: %q vs %q", i, orig[oldOff:oStart], doc[newOff:nStart])
		}
		rebuilt.WriteString(orig[oldOff:oStart])
		rebuilt.WriteString(c.NewText)
		oldOff, newOff = oEnd, nEnd
	}
	rebuilt.WriteString(orig[oldOff:])
	if rebuilt.String() != doc {
		t.Errorf("applying changes gives %q, wanted %q", rebuilt.String(), doc)
	}
}

func verifyNewRangeQueries(t testing.TB, rnd *rand.Rand, p *Patch) {
	t.Helper()
	changes := p.Changes()
	for range 20 {
		a := Point{uint32(rnd.IntN(10)), uint32(rnd.IntN(10))}
		b := Point{uint32(rnd.IntN(10)), uint32(rnd.IntN(10))}
		a, b = Min(a, b), Max(a, b)
		var e []Hunk
		for _, c := range changes {
			if a.Less(c.NewEnd()) && c.NewStart.Less(b) {
				e = append(e, c.Hunk())
			}
		}
		deepEqual(t, p.HunksInNewRange(a, b), e)
	}
}

func newTestPatch() *Patch {
	return NewWithOptions(Options{Strict: true})
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}
