package o3merge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_GetReturnsTaskWithoutReleasingSlot(t *testing.T) {
	r := NewRing(4)
	want := CopyTask{BlockType: BlockOO, SrcOooHi: 9}
	c := r.Publish(want)

	got := r.Get(c)
	require.Equal(t, want.BlockType, got.BlockType)
	require.Equal(t, want.SrcOooHi, got.SrcOooHi)

	// Slot is still occupied until Done is called.
	r.Done(c)
}

func TestRing_PublishBlocksUntilSlotFreedByDone(t *testing.T) {
	r := NewRing(1)
	c0 := r.Publish(CopyTask{SrcOooHi: 1})

	published := make(chan Cursor, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		published <- r.Publish(CopyTask{SrcOooHi: 2})
	}()

	select {
	case <-published:
		t.Fatal("second Publish must block while the ring is full")
	default:
	}

	r.Done(c0)
	wg.Wait()
	c1 := <-published
	require.NotEqual(t, c0, c1)
}

func TestRing_NextClaimsDistinctCursorsForConcurrentWorkers(t *testing.T) {
	r := NewRing(8)
	for i := int64(0); i < 8; i++ {
		r.Publish(CopyTask{SrcOooHi: i})
	}
	r.Close()

	var mu sync.Mutex
	var seen []Cursor
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, ok := r.Next()
				if !ok {
					return
				}
				r.Get(c)
				mu.Lock()
				seen = append(seen, c)
				mu.Unlock()
				r.Done(c)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 8, "every published cursor must be claimed exactly once")
	unique := make(map[Cursor]bool, len(seen))
	for _, c := range seen {
		require.False(t, unique[c], "cursor %d claimed by more than one worker", c)
		unique[c] = true
	}
}

func TestRing_NextDrainsInOrderThenClosesCleanly(t *testing.T) {
	r := NewRing(4)
	r.Publish(CopyTask{SrcOooHi: 1})
	r.Publish(CopyTask{SrcOooHi: 2})
	r.Close()

	var seen []int64
	for {
		c, ok := r.Next()
		if !ok {
			break
		}
		seen = append(seen, r.Get(c).SrcOooHi)
		r.Done(c)
	}
	require.Equal(t, []int64{1, 2}, seen)
}
