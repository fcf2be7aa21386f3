// Package sequencer issues entry identifiers.
//
// Identifiers are strictly increasing and never reused. Zero is reserved as the
// "no entry" sentinel, so the first identifier a fresh Counter issues is 1.
package sequencer

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrExhausted is returned once the identifier space has been used up.
// The counter does not wrap.
var ErrExhausted = errors.New("sequencer: identifier space exhausted")

// Sequencer issues identifiers.
type Sequencer interface {
	// Next returns a previously unissued identifier.
	Next() (uint64, error)
	// Last returns the most recently issued identifier, or the seed if none was issued.
	Last() uint64
}

// Counter is a monotonic Sequencer. It is safe for concurrent use.
type Counter struct {
	last atomic.Uint64
}

var _ Sequencer = (*Counter)(nil)

// NewCounter returns a counter whose first identifier is seed+1.
func NewCounter(seed uint64) *Counter {
	c := &Counter{}
	c.last.Store(seed)
	return c
}

func (c *Counter) Next() (uint64, error) {
	for {
		cur := c.last.Load()
		if cur == math.MaxUint64 {
			return 0, ErrExhausted
		}
		if c.last.CompareAndSwap(cur, cur+1) {
			return cur + 1, nil
		}
	}
}

func (c *Counter) Last() uint64 { return c.last.Load() }
