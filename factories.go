package textpatch

import (
	"fmt"
	"reflect"
)

// Compose combines patches applied one after another into a single frozen
// patch. All patches must use the same kind of TextMetrics, otherwise
// Compose fails with a *RangeError.
func Compose(patches ...*Patch) (*Patch, error) {
	var metrics TextMetrics
	if len(patches) > 0 {
		metrics = patches[0].metrics
	}
	acc := NewWithOptions(Options{Metrics: metrics})
	for i, patch := range patches {
		if reflect.TypeOf(patch.metrics) != reflect.TypeOf(metrics) {
			return nil, fmt.Errorf("textpatch: compose: patch %d: %w", i, rangeErrf(ZeroPoint, ZeroPoint, "measured with %T, patch 0 with %T", patch.metrics, metrics))
		}
		changes := patch.Changes()
		if i&1 == 0 {
			for _, c := range changes {
				err := acc.Splice(c.NewStart, c.OldExtent, c.NewExtent, c.OldText, c.NewText)
				if err != nil {
					return nil, fmt.Errorf("textpatch: compose: patch %d: %w", i, err)
				}
			}
		} else {
			// Back to front, so that each change's old start is still valid in
			// the accumulated new coordinates.
			for j := len(changes) - 1; j >= 0; j-- {
				c := changes[j]
				err := acc.Splice(c.OldStart, c.OldExtent, c.NewExtent, c.OldText, c.NewText)
				if err != nil {
					return nil, fmt.Errorf("textpatch: compose: patch %d: %w", i, err)
				}
			}
		}
	}
	return newFrozen(acc.Changes(), nil, acc.metrics), nil
}

// Invert returns a frozen patch that undoes p.
func Invert(p *Patch) *Patch {
	changes := p.Changes()
	inverted := make([]Change, len(changes))
	for i, c := range changes {
		inverted[i] = c.Inverted()
	}
	return newFrozen(inverted, nil, p.metrics)
}

// FromChange returns a frozen patch holding a single change. The change's
// new start is used as its old start too.
func FromChange(c Change) *Patch {
	c.OldStart = c.NewStart
	return newFrozen([]Change{c}, nil, nil)
}

// Deserialize decodes a patch produced by Serialize. The returned patch is
// frozen and keeps data, so it must not be modified afterwards.
func Deserialize(data []byte) (*Patch, error) {
	changes, metrics, err := decodeChanges(data)
	if err != nil {
		return nil, err
	}
	return newFrozen(changes, data, metrics), nil
}
