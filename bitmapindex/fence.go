package bitmapindex

import "sync/atomic"

// fenceVar has no meaning of its own; bumping it atomically forces a full
// memory barrier on every architecture Go targets; see storeFence.
var fenceVar atomic.Int64

// storeFence orders the writes preceding it before the writes following
// it, from the point of view of any other thread or process mapping the
// same file (§4.4.3, §5). Go has no standalone fence primitive, but an
// atomic op on an unrelated word is a full barrier on every platform the
// toolchain supports, so it is used here purely for its ordering effect.
func storeFence() {
	fenceVar.Add(1)
}
