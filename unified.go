package textpatch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// lineRange maps old lines [oldFirst, oldLast) to new lines
// [newFirst, newLast), zero-based.
type lineRange struct {
	oldFirst, oldLast int
	newFirst, newLast int
}

// UnifiedDiff renders the patch as a unified diff of old, with context
// unchanged lines around each hunk.
func (p *Patch) UnifiedDiff(origName, newName, old string, context int) ([]byte, error) {
	updated, err := p.Apply(old)
	if err != nil {
		return nil, fmt.Errorf("textpatch: unified diff: %w", err)
	}
	oldLines, newLines := splitLines(old), splitLines(updated)

	fd := &diff.FileDiff{
		OrigName: origName,
		NewName:  newName,
	}
	for _, group := range groupLineRanges(changedLines(p.Changes()), context) {
		fd.Hunks = append(fd.Hunks, makeHunk(group, oldLines, newLines, context))
	}
	return diff.PrintFileDiff(fd)
}

// changedLines returns the line ranges touched by each change, merging
// changes that share a line.
func changedLines(changes []Change) []lineRange {
	var result []lineRange
	for _, c := range changes {
		oldEnd, newEnd := c.OldEnd(), c.NewEnd()
		r := lineRange{
			oldFirst: int(c.OldStart.Row),
			oldLast:  int(oldEnd.Row) + 1,
			newFirst: int(c.NewStart.Row),
			newLast:  int(newEnd.Row) + 1,
		}
		// A change ending at the start of a line on both sides leaves that
		// line alone.
		if oldEnd.Column == 0 && newEnd.Column == 0 {
			r.oldLast--
			r.newLast--
		}
		if n := len(result); n > 0 && r.oldFirst < result[n-1].oldLast {
			result[n-1].oldLast = max(result[n-1].oldLast, r.oldLast)
			result[n-1].newLast = max(result[n-1].newLast, r.newLast)
			continue
		}
		result = append(result, r)
	}
	return result
}

// groupLineRanges splits ranges into hunks, joining ranges whose context
// would overlap.
func groupLineRanges(ranges []lineRange, context int) [][]lineRange {
	var groups [][]lineRange
	for i, r := range ranges {
		if i > 0 && r.oldFirst-ranges[i-1].oldLast <= 2*context {
			groups[len(groups)-1] = append(groups[len(groups)-1], r)
		} else {
			groups = append(groups, []lineRange{r})
		}
	}
	return groups
}

func makeHunk(group []lineRange, oldLines, newLines []string, context int) *diff.Hunk {
	first, last := group[0], group[len(group)-1]
	lead := min(context, first.oldFirst)
	trail := max(0, min(context, len(oldLines)-last.oldLast))
	span := lineRange{
		oldFirst: first.oldFirst - lead,
		oldLast:  last.oldLast + trail,
		newFirst: first.newFirst - lead,
		newLast:  last.newLast + trail,
	}

	var body bytes.Buffer
	writeLines(&body, ' ', oldLines, span.oldFirst, first.oldFirst)
	for i, r := range group {
		if i > 0 {
			writeLines(&body, ' ', oldLines, group[i-1].oldLast, r.oldFirst)
		}
		writeLines(&body, '-', oldLines, r.oldFirst, r.oldLast)
		writeLines(&body, '+', newLines, r.newFirst, r.newLast)
	}
	writeLines(&body, ' ', oldLines, last.oldLast, span.oldLast)

	h := &diff.Hunk{
		OrigStartLine: int32(span.oldFirst + 1),
		OrigLines:     int32(span.oldLast - span.oldFirst),
		NewStartLine:  int32(span.newFirst + 1),
		NewLines:      int32(span.newLast - span.newFirst),
		Body:          body.Bytes(),
	}
	// An empty range is numbered by the line before it.
	if h.OrigLines == 0 {
		h.OrigStartLine--
	}
	if h.NewLines == 0 {
		h.NewStartLine--
	}
	return h
}

func writeLines(buf *bytes.Buffer, prefix byte, lines []string, from, to int) {
	to = min(to, len(lines))
	for _, line := range lines[min(from, to):to] {
		buf.WriteByte(prefix)
		buf.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			buf.WriteByte('\n')
		}
	}
}

// splitLines splits text after each '\n'. A final line without a newline is
// kept as is.
func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// FromUnifiedDiff builds a patch from a single-file unified diff. Unchanged
// context lines at the edges of each hunk are not recorded as changed. Every
// line is taken to end with a newline.
func FromUnifiedDiff(data []byte) (*Patch, error) {
	fd, err := diff.ParseFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("textpatch: parsing unified diff: %w", err)
	}

	p := New()
	for i, h := range fd.Hunks {
		row := h.NewStartLine - 1
		if h.NewLines == 0 {
			row = h.NewStartLine
		}
		if row < 0 {
			return nil, fmt.Errorf("textpatch: unified diff: hunk %d: invalid start line %d", i, h.NewStartLine)
		}

		lines := hunkLines(h.Body)
		for len(lines) > 0 && lines[0][0] == ' ' {
			lines = lines[1:]
			row++
		}
		for len(lines) > 0 && lines[len(lines)-1][0] == ' ' {
			lines = lines[:len(lines)-1]
		}

		var oldText, newText strings.Builder
		for _, line := range lines {
			text := line[1:] + "\n"
			switch line[0] {
			case ' ':
				oldText.WriteString(text)
				newText.WriteString(text)
			case '-':
				oldText.WriteString(text)
			case '+':
				newText.WriteString(text)
			default:
				return nil, fmt.Errorf("textpatch: unified diff: hunk %d: invalid line %q", i, line)
			}
		}
		if err := p.SpliceWithText(Point{Row: uint32(row)}, oldText.String(), newText.String()); err != nil {
			return nil, fmt.Errorf("textpatch: unified diff: hunk %d: %w", i, err)
		}
	}
	return p, nil
}

// hunkLines returns the body lines without newlines, treating empty lines as
// empty context and skipping "\ No newline at end of file" markers.
func hunkLines(body []byte) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSuffix(string(body), "\n"), "\n") {
		switch {
		case line == "":
			lines = append(lines, " ")
		case line[0] == '\\':
		default:
			lines = append(lines, line)
		}
	}
	return lines
}
