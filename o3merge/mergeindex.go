package o3merge

import "sync/atomic"

// Side selects which side of an O3 merge a row comes from (§3.2).
type Side uint8

const (
	// SideOOO is the out-of-order batch side (bit value 0).
	SideOOO Side = 0
	// SideData is the existing on-disk partition side (bit value 1).
	SideData Side = 1
)

const rowMask = uint64(1)<<63 - 1

// DecodeMergeEntry masks row and extracts side from a packed merge-index
// entry (§3.2). Callers must never interpret the raw uint64 themselves —
// this is the one place that does (§9 REDESIGN FLAGS).
func DecodeMergeEntry(e uint64) (side Side, row int64) {
	return Side(e >> 63), int64(e & rowMask)
}

// EncodeMergeEntry packs side and row into the wire format DecodeMergeEntry
// reads back. Present mainly so tests can build fixtures without poking at
// bit layout directly.
func EncodeMergeEntry(side Side, row int64) uint64 {
	return uint64(side)<<63 | uint64(row)&rowMask
}

// MergeIndex is the dense, read-only array of packed row descriptors
// produced by the upstream sort+merge pass (§3.2). It is shared by every
// copy task of a partition and released exactly once, by whichever
// worker's columnCounter reaches zero last (§4.3).
type MergeIndex struct {
	entries []uint64
	freed   atomic.Bool
}

// NewMergeIndex wraps entries, which the caller must not mutate or reuse
// after construction.
func NewMergeIndex(entries []uint64) *MergeIndex {
	return &MergeIndex{entries: entries}
}

// Len returns the number of rows the index describes.
func (m *MergeIndex) Len() int64 {
	if m == nil {
		return 0
	}
	return int64(len(m.entries))
}

// Entry returns the packed descriptor for output row i.
func (m *MergeIndex) Entry(i int64) uint64 {
	return m.entries[i]
}

// Free releases the backing array. It is safe to call at most once in
// the sense that only the first call has any effect; later calls are a
// no-op, matching the defensive posture §9 asks for around the
// source's double-free/double-close defects elsewhere.
func (m *MergeIndex) Free() {
	if m == nil {
		return
	}
	if m.freed.CompareAndSwap(false, true) {
		m.entries = nil
	}
}
