package o3merge

import (
	"context"
	"testing"

	"github.com/columnardb/o3engine/sys"
	"github.com/stretchr/testify/require"
)

func TestO3PartitionTask_CopyTasks_Cardinalities(t *testing.T) {
	ff := sys.NewFacade()
	dir := t.TempDir()

	dstA := mappedFile(t, ff, dir, "a.d", 16)
	dstB := mappedFile(t, ff, dir, "b.d", 16)

	latch := NewCompletionLatch()
	task := &O3PartitionTask{
		FS:            ff,
		PartitionPath: dir,
		PartitionBy:   PartitionByDay,
		Columns: []ColumnEntry{
			{
				Spec:   ColumnSpec{Kind: KindFixed, SizeClass: SizeClass8},
				SrcOoo: append(u64le(1), u64le(2)...),
				DstFix: dstA,
				Blocks: []ColumnBlock{
					{BlockType: BlockOO, SrcOooLo: 0, SrcOooHi: 1, DstFixOffset: 0},
				},
			},
			{
				Spec:   ColumnSpec{Kind: KindFixed, SizeClass: SizeClass8},
				SrcOoo: append(u64le(3), u64le(4)...),
				DstFix: dstB,
				Blocks: []ColumnBlock{
					{BlockType: BlockOO, SrcOooLo: 0, SrcOooHi: 0, DstFixOffset: 0},
					{BlockType: BlockOO, SrcOooLo: 1, SrcOooHi: 1, DstFixOffset: 8},
				},
			},
		},
		TimestampLo: 100,
		TimestampHi: 200,
		Latch:       latch,
	}

	tasks := task.CopyTasks()
	require.Len(t, tasks, 3, "one task for column A's single block, two for column B's two blocks")

	for _, ct := range tasks {
		require.Equal(t, int64(2), ct.ColumnCounter.Value(), "columnCounter starts at the partition's column count")
	}
	require.Equal(t, int64(1), tasks[0].PartCounter.Value(), "column A has one block")
	require.Equal(t, int64(2), tasks[1].PartCounter.Value(), "column B has two blocks sharing one partCounter")
	require.Same(t, tasks[1].PartCounter, tasks[2].PartCounter)
	require.NotSame(t, tasks[0].PartCounter, tasks[1].PartCounter)
}

func TestO3PartitionTask_Publish_DrivesCompletionLatch(t *testing.T) {
	ff := sys.NewFacade()
	dir := t.TempDir()

	dstA := mappedFile(t, ff, dir, "a.d", 16)
	dstB := mappedFile(t, ff, dir, "b.d", 16)

	latch := NewCompletionLatch()
	task := &O3PartitionTask{
		FS:            ff,
		PartitionPath: dir,
		Columns: []ColumnEntry{
			{
				Spec:   ColumnSpec{Kind: KindFixed, SizeClass: SizeClass8},
				SrcOoo: append(u64le(10), u64le(20)...),
				DstFix: dstA,
				Blocks: []ColumnBlock{
					{BlockType: BlockOO, SrcOooLo: 0, SrcOooHi: 1, DstFixOffset: 0},
				},
			},
			{
				Spec:   ColumnSpec{Kind: KindFixed, SizeClass: SizeClass8},
				SrcOoo: append(u64le(30), u64le(40)...),
				DstFix: dstB,
				Blocks: []ColumnBlock{
					{BlockType: BlockOO, SrcOooLo: 0, SrcOooHi: 1, DstFixOffset: 0},
				},
			},
		},
		Latch: latch,
	}

	ring := NewRing(4)
	task.Publish(ring)
	ring.Close()

	job := NewCopyJob(ff, nil, nil)
	pool := NewWorkerPool(job, 2)
	require.NoError(t, pool.Run(context.Background(), ring))

	require.True(t, latch.Signaled(), "latch must fire once every column's last task has torn down")
}
