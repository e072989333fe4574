package o3merge

import (
	"os"

	"github.com/columnardb/o3engine/bitmapindex"
)

// BlockType describes the provenance of the row range a CopyTask writes
// (§3.3).
type BlockType int

const (
	// BlockOO means the slice originates entirely from the out-of-order
	// batch.
	BlockOO BlockType = iota
	// BlockData means the slice originates entirely from the existing
	// on-disk partition.
	BlockData
	// BlockMerge means the two sides interleave under the merge index.
	BlockMerge
)

func (b BlockType) String() string {
	switch b {
	case BlockOO:
		return "OO"
	case BlockData:
		return "DATA"
	case BlockMerge:
		return "MERGE"
	default:
		return "UNKNOWN"
	}
}

// SizeClass is a fixed-width column's byte-width exponent (§3.1).
type SizeClass int

const (
	SizeClass1 SizeClass = 0 // bool/byte
	SizeClass2 SizeClass = 1 // char/short
	SizeClass4 SizeClass = 2 // int/float/symbol
	SizeClass8 SizeClass = 3 // long/date/double/timestamp
)

// Shift returns k such that one row occupies 1<<k bytes.
func (s SizeClass) Shift() int64 { return int64(s) }

// Width returns the byte width of one row.
func (s SizeClass) Width() int64 { return int64(1) << uint(s) }

// ColumnKind picks which Column Copier / MergeShuffle algorithm a
// CopyTask's column uses, replacing a runtime switch on a signed
// column-type tag with an explicit tagged variant (§9 REDESIGN FLAGS).
type ColumnKind int

const (
	// KindFixed is a plain fixed-width column; SizeClass picks the
	// algorithm.
	KindFixed ColumnKind = iota
	// KindString is a variable-width string column (§3.1, §4.1.2,
	// §4.2.1).
	KindString
	// KindBinary is a variable-width binary column (§3.1, §4.1.2,
	// §4.2.2).
	KindBinary
	// KindTimestampIndex is a timestamp-with-auxiliary-row-index column
	// (§4.1.3, §4.2 table) — the source holds 16-byte (timestamp,
	// rowId) pairs and only the timestamp half is ever written out.
	KindTimestampIndex
)

// ColumnSpec identifies a column's on-disk shape for dispatch purposes.
type ColumnSpec struct {
	Kind      ColumnKind
	SizeClass SizeClass // meaningful only when Kind == KindFixed
}

// MappedRegion is a memory-mapped file region together with the handle
// that owns it. Either field may be the zero value, in which case
// teardown skips the corresponding step (§4.3: "Unmap is skipped for a
// region whose address or size is zero; close is skipped for a
// non-positive fd").
type MappedRegion struct {
	File *os.File
	Data []byte
}

// Empty reports whether the region has nothing mapped.
func (r MappedRegion) Empty() bool { return len(r.Data) == 0 }

// IndexTarget names the bitmap index a column feeds once its copy
// completes (§4.3 step 4). RowBase is the absolute row number the first
// entry of the just-written destination range corresponds to.
type IndexTarget struct {
	Writer  *bitmapindex.Writer
	RowBase int64
}

// CopyTask is one unit of work consumed off the ring by the O3 Copy Job
// (§6.2, §4.3). It is intentionally a plain data carrier: mutated only
// by the producer before publish, read-only once a worker has it.
type CopyTask struct {
	BlockType BlockType
	Column    ColumnSpec

	// On-disk ("data") source side. SrcData.File/Data are closed and
	// unmapped by the last copy task for this column.
	SrcData    MappedRegion
	SrcDataVar MappedRegion // only for KindString/KindBinary
	SrcDataLo  int64
	SrcDataHi  int64

	// Out-of-order source side. Never closed here — owned by whoever
	// staged the O3 batch.
	SrcOoo    []byte
	SrcOooVar []byte
	SrcOooLo  int64
	SrcOooHi  int64

	// Destination. Closed and unmapped by the last copy task for this
	// column.
	DstFix       MappedRegion
	DstVar       MappedRegion // only for KindString/KindBinary
	DstFixOffset int64
	DstVarOffset int64

	// Shared per-partition state.
	MergeIndex *MergeIndex

	// Index describes the bitmap index this column feeds, or is nil if
	// the column is not indexed.
	Index *IndexTarget

	PartCounter   *RefCounter
	ColumnCounter *RefCounter
	Latch         *CompletionLatch
}
