package bitmapindex

import (
	"context"
	"testing"

	"github.com/columnardb/o3engine/sys"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, blockValueCount int64) *Writer {
	t.Helper()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, t.TempDir(), "idx", blockValueCount)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWriter_NewKeyThenRead(t *testing.T) {
	w := newTestWriter(t, 4)
	require.NoError(t, w.Add(context.Background(), 0, 42))
	require.Equal(t, int64(1), w.KeyCount())
}

func TestWriter_SparseKeyHoles(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, dir, "idx", 4)
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), 0, 10))
	require.NoError(t, w.Add(context.Background(), 5, 20))
	require.NoError(t, w.Add(context.Background(), 5, 21))
	require.NoError(t, w.Close())

	r, err := OpenReader(ff, dir, "idx")
	require.NoError(t, err)
	defer r.Close()

	k, err := r.keyCount()
	require.NoError(t, err)
	require.Equal(t, int64(6), k)

	for key := int32(1); key <= 4; key++ {
		vals, err := r.Values(key)
		require.NoError(t, err)
		require.Empty(t, vals)
	}

	vals, err := r.Values(5)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 21}, vals)

	vals, err = r.Values(0)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, vals)
}

func TestWriter_BlockOverflowLinksChain(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, dir, "idx", 2)
	require.NoError(t, err)

	require.NoError(t, w.Add(context.Background(), 0, 1))
	require.NoError(t, w.Add(context.Background(), 0, 2))
	require.NoError(t, w.Add(context.Background(), 0, 3))
	require.NoError(t, w.Close())

	r, err := OpenReader(ff, dir, "idx")
	require.NoError(t, err)
	defer r.Close()

	vals, err := r.Values(0)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, vals)
}

func TestWriter_InsertionOrderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, dir, "idx", 8)
	require.NoError(t, err)

	want := []int64{5, 3, 9, 1, 100, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 42}
	for _, v := range want {
		require.NoError(t, w.Add(context.Background(), 7, v))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(ff, dir, "idx")
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Values(7)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestWriter_ReopenExistingIndex(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()

	w, err := Open(ff, nil, nil, dir, "idx", 4)
	require.NoError(t, err)
	require.NoError(t, w.Add(context.Background(), 1, 7))
	require.NoError(t, w.Close())

	w2, err := Open(ff, nil, nil, dir, "idx", 4)
	require.NoError(t, err)
	require.Equal(t, int64(2), w2.KeyCount())
	require.NoError(t, w2.Add(context.Background(), 1, 8))
	require.NoError(t, w2.Close())

	r, err := OpenReader(ff, dir, "idx")
	require.NoError(t, err)
	defer r.Close()
	vals, err := r.Values(1)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8}, vals)
}

func TestWriter_CloseTruncatesKeyFileToInvariantSize(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, dir, "idx", 4)
	require.NoError(t, err)
	require.NoError(t, w.Add(context.Background(), 2, 1))
	keyCount := w.KeyCount()
	require.NoError(t, w.Close())

	info, err := ff.OpenRW(keyFileName(dir, "idx"))
	require.NoError(t, err)
	stat, err := info.Stat()
	require.NoError(t, err)
	require.Equal(t, KeyFileReserved+keyCount*KeyEntrySize, stat.Size())
	require.NoError(t, info.Close())
}

func TestWriter_RejectsNegativeKey(t *testing.T) {
	w := newTestWriter(t, 4)
	err := w.Add(context.Background(), -1, 1)
	require.Error(t, err)
}

func TestOpen_RejectsCorruptSignature(t *testing.T) {
	dir := t.TempDir()
	ff := sys.NewFacade()
	w, err := Open(ff, nil, nil, dir, "idx", 4)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := ff.OpenRW(keyFileName(dir, "idx"))
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(ff, nil, nil, dir, "idx", 4)
	require.Error(t, err)
}
