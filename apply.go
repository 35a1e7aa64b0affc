package textpatch

import "strings"

// Apply returns old with every change applied. Each change's old text must
// match old at its position, otherwise Apply fails with a *RangeError.
func (p *Patch) Apply(old string) (string, error) {
	var buf strings.Builder
	buf.Grow(len(old))
	off := 0
	for _, c := range p.Changes() {
		oldEnd := c.OldEnd()
		i, err := p.metrics.CharIndexForPoint(old, c.OldStart)
		if err != nil {
			return "", err
		}
		j, err := p.metrics.CharIndexForPoint(old, oldEnd)
		if err != nil {
			return "", err
		}
		if old[i:j] != c.OldText {
			return "", rangeErrf(c.OldStart, oldEnd, "text is %q, patch expects %q", old[i:j], c.OldText)
		}
		buf.WriteString(old[off:i])
		buf.WriteString(c.NewText)
		off = j
	}
	buf.WriteString(old[off:])
	return buf.String(), nil
}
