package o3merge

import (
	"expvar"
	"sync"
)

// QueueDepth is a process-wide gauge of how many tasks are currently
// published-but-not-yet-acked across every Ring, surfaced through the
// obs package's /metrics endpoint (§10 "queue depth... counters")
// without o3merge needing to import obs.
var QueueDepth = expvar.NewInt("o3merge_queue_depth")

// Cursor identifies a reserved slot in the job-queue abstraction §6.3
// describes.
type Cursor int64

// Queue is the job-queue contract the O3 Copy Job consumes from
// (§6.3): fetch the task reserved at a cursor, then release the slot.
// The worker-pool / ring substrate itself (how producers claim slots,
// how they handle backpressure) is out of scope — this package only
// ever calls Get followed by Done, exactly as §4.3's consumer ordering
// protocol requires. Ring below is a reference implementation.
type Queue interface {
	Get(c Cursor) CopyTask
	Done(c Cursor)
}

// Ring is a bounded task queue satisfying Queue. Next hands each
// cursor to exactly one caller, so several consumers (WorkerPool) may
// share one Ring. It is deliberately simple (mutex-guarded, not
// lock-free) since the spec treats the ring substrate as an external
// collaborator specified only by its interface (§6.3); what matters
// here is that Get and Done are distinct steps, so callers can
// release a slot before doing the work it described (§4.3 step 2).
type Ring struct {
	mu      sync.Mutex
	notFull *sync.Cond
	slots   []CopyTask
	ready   []bool
	head    Cursor // next cursor to publish
	next    Cursor // next cursor to hand out via Next
	tail    Cursor // oldest not-yet-Done cursor, for capacity accounting
	closed  bool
}

// NewRing returns a ring with room for capacity in-flight tasks.
func NewRing(capacity int) *Ring {
	r := &Ring{
		slots: make([]CopyTask, capacity),
		ready: make([]bool, capacity),
	}
	r.notFull = sync.NewCond(&r.mu)
	return r
}

func (r *Ring) idx(c Cursor) int {
	return int(c) % len(r.slots)
}

// Publish claims the next slot, blocking while the ring is full, and
// returns the cursor a consumer will later Get/Done.
func (r *Ring) Publish(t CopyTask) Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.head-r.tail >= Cursor(len(r.slots)) {
		r.notFull.Wait()
	}
	c := r.head
	r.slots[r.idx(c)] = t
	r.ready[r.idx(c)] = true
	r.head++
	QueueDepth.Add(1)
	r.notFull.Broadcast()
	return c
}

// Get returns the task reserved at cursor c without releasing the
// slot.
func (r *Ring) Get(c Cursor) CopyTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[r.idx(c)]
}

// Done releases the slot at cursor c, letting the producer reuse it.
// Per §4.3 this must be called before the consumer executes the copy
// the task described.
func (r *Ring) Done(c Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready[r.idx(c)] = false
	r.slots[r.idx(c)] = CopyTask{}
	for r.tail < r.head && !r.ready[r.idx(r.tail)] {
		r.tail++
	}
	QueueDepth.Add(-1)
	r.notFull.Broadcast()
}

// Next blocks until the next undispensed cursor has a task ready, then
// claims it — advancing r.next before releasing the lock — and
// returns it. Claiming is what makes Next safe to call concurrently
// from multiple workers sharing one Ring (WorkerPool.Run): without it,
// two callers could both observe the same cursor before either called
// Done, and both would Dispatch the identical task.
func (r *Ring) Next() (Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.next < r.head && r.ready[r.idx(r.next)] {
			c := r.next
			r.next++
			return c, true
		}
		if r.closed && r.next >= r.head {
			return 0, false
		}
		r.notFull.Wait()
	}
}

// Close marks the ring as drained; Next returns false once every
// published task has been consumed.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.notFull.Broadcast()
}
