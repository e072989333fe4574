package o3merge

import (
	"github.com/columnardb/o3engine/sys"
)

// PartitionBy discriminates the time-partitioning granularity a
// partition path was laid out under. The engine never branches on it —
// directory layout belongs to a higher layer (§1 non-goals) — it is
// carried on the envelope purely so that layer can recover the
// partition's granularity from the task alone, mirroring the field
// OutOfOrderPartitionTask.java carries as a plain int.
type PartitionBy int

const (
	PartitionByNone PartitionBy = iota
	PartitionByDay
	PartitionByMonth
	PartitionByYear
)

// TableWriterCallback is the opaque collaborator a partition task is
// produced on behalf of. The engine never invokes it — invoking the
// table writer's transaction envelope is out of scope (§1) — it is
// simply carried through so whoever calls Wait() on the task's latch
// can hand the result back to the writer that queued the work.
type TableWriterCallback func(txn int64)

// ColumnEntry is one column's contribution to a partition task: its
// shape, its two source-side regions, its destination regions, and the
// block-type slices the fan-out splits it into. Exactly one, two, or
// three Blocks are expected per §2's "one per (column x block-type)".
type ColumnEntry struct {
	Spec ColumnSpec

	SrcData    MappedRegion
	SrcDataVar MappedRegion

	SrcOoo    []byte
	SrcOooVar []byte

	DstFix MappedRegion
	DstVar MappedRegion

	Index *IndexTarget

	Blocks []ColumnBlock
}

// ColumnBlock is one (column x block-type) slice of a column's output,
// with the destination byte offsets and source row ranges that slice
// occupies. A BlockMerge block leaves SrcDataLo/Hi and SrcOooLo/Hi at
// their zero value — the merge dispatch reads row provenance from the
// shared MergeIndex instead (§4.2), never from these ranges.
type ColumnBlock struct {
	BlockType BlockType

	SrcDataLo int64
	SrcDataHi int64

	SrcOooLo int64
	SrcOooHi int64

	DstFixOffset int64
	DstVarOffset int64
}

// O3PartitionTask is the immutable description of one partition's O3
// work (§2, §6.2), modeled on OutOfOrderPartitionTask.java: a files
// façade, the partition's path and granularity, the column list with
// its source/destination regions, the O3 batch's row range and
// timestamp bounds, the partition's own timestamp, the table's current
// max timestamp, the txn this partition belongs to, whether it is the
// last partition touched by that txn, the sorted timestamps backing the
// merge, a callback into the table writer, and the latch that signals
// when every column has been fully copied.
//
// Mutated only by the producer before Publish; read-only to every
// consumer thereafter.
type O3PartitionTask struct {
	FS            *sys.Facade
	PartitionPath string
	PartitionBy   PartitionBy

	Columns []ColumnEntry

	SrcOooLo int64
	SrcOooHi int64

	TimestampLo int64
	TimestampHi int64

	PartitionTimestamp int64
	MaxTimestamp       int64

	Txn  int64
	Last bool

	SortedTimestamps []int64

	TableWriter TableWriterCallback

	Latch *CompletionLatch

	MergeIndex *MergeIndex
}

// CopyTasks fans this partition task out into its constituent CopyTasks
// (§2: "each partition task fans out into multiple O3 Copy Tasks, one
// per (column x block-type)"), initializing PartCounter to the number
// of blocks the owning column was split into and ColumnCounter to the
// partition's total column count, so the O3 Copy Job's last-task and
// last-column teardown logic (§4.3) fires exactly once each.
func (t *O3PartitionTask) CopyTasks() []CopyTask {
	columnCounter := NewRefCounter(int64(len(t.Columns)))

	var tasks []CopyTask
	for _, col := range t.Columns {
		partCounter := NewRefCounter(int64(len(col.Blocks)))

		for _, b := range col.Blocks {
			task := CopyTask{
				BlockType: b.BlockType,
				Column:    col.Spec,

				SrcData:    col.SrcData,
				SrcDataVar: col.SrcDataVar,
				SrcDataLo:  b.SrcDataLo,
				SrcDataHi:  b.SrcDataHi,

				SrcOoo:    col.SrcOoo,
				SrcOooVar: col.SrcOooVar,
				SrcOooLo:  b.SrcOooLo,
				SrcOooHi:  b.SrcOooHi,

				DstFix:       col.DstFix,
				DstVar:       col.DstVar,
				DstFixOffset: b.DstFixOffset,
				DstVarOffset: b.DstVarOffset,

				MergeIndex: t.MergeIndex,
				Index:      col.Index,

				PartCounter:   partCounter,
				ColumnCounter: columnCounter,
				Latch:         t.Latch,
			}

			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Publish fans t out and enqueues every resulting CopyTask on ring, in
// column order. The producer must not touch t again afterward — per
// §6.2 it is read-only to the consumer from this point on.
func (t *O3PartitionTask) Publish(ring *Ring) []Cursor {
	tasks := t.CopyTasks()
	cursors := make([]Cursor, len(tasks))
	for i, task := range tasks {
		cursors[i] = ring.Publish(task)
	}
	return cursors
}
