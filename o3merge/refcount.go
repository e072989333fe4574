package o3merge

import "sync/atomic"

// RefCounter is a decrement-to-zero counter used for both partCounter
// (outstanding copy tasks for one column) and columnCounter (outstanding
// columns for one partition) in §4.3. The worker whose Dec call observes
// zero is, by construction, the only one that ever observes it — every
// other caller sees a strictly positive remainder — so "last one out"
// logic never races.
type RefCounter struct {
	v atomic.Int64
}

// NewRefCounter returns a counter initialised to n outstanding units.
func NewRefCounter(n int64) *RefCounter {
	c := &RefCounter{}
	c.v.Store(n)
	return c
}

// Dec removes one outstanding unit and reports whether this call drove
// the counter to zero.
func (c *RefCounter) Dec() bool {
	return c.v.Add(-1) == 0
}

// Value returns the current count, for diagnostics and tests only.
func (c *RefCounter) Value() int64 {
	return c.v.Load()
}
