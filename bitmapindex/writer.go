// Package bitmapindex implements the two-file (key, value) inverted
// index described in §3.5/§4.4 of the on-disk contract: a fixed-size key
// file holding one 32-byte entry per key, and a value file holding
// fixed-capacity, doubly-linked value blocks. Visibility to concurrent
// readers is governed by the sequence/sequence-check and count/
// count-check double-write protocol (§4.4.3, §7); this package keeps
// that protocol verbatim. The header (sequence) half is isolated behind
// commitHeader; the per-key count/count-check writes are made directly
// by the Add helpers.
package bitmapindex

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/columnardb/o3engine/core"
	"github.com/columnardb/o3engine/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Writer appends (key, rowId) pairs to a bitmap index. It is not safe
// for concurrent use by multiple goroutines (§5: "single-threaded per
// index instance").
type Writer struct {
	ff       *sys.Facade
	keyMem   *pagedMemory
	valueMem *pagedMemory

	blockValueCount    int64 // B
	blockValueCountMod int64 // B - 1
	blockCapacity      int64 // B*8 + 16

	valueMemSize int64 // V
	keyCount     int64 // K

	tracer trace.Tracer
	logger *slog.Logger

	addCalls atomic.Uint64
}

func keyFileName(dir, name string) string {
	return filepath.Join(dir, name+".k")
}

func valueFileName(dir, name string) string {
	return filepath.Join(dir, name+".v")
}

// Open opens or creates the bitmap index named name under dir. blockValueCount
// (B in §3.5) is used only when the key file does not yet exist; an
// existing index's block size is read back from its header.
func Open(ff *sys.Facade, tracer trace.Tracer, logger *slog.Logger, dir, name string, blockValueCount int64) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := int64(ff.GetMapPageSize())
	keyPath := keyFileName(dir, name)
	exists := ff.Exists(keyPath)

	keyMem, err := openPagedMemory(ff, keyPath, pageSize)
	if err != nil {
		return nil, err
	}

	w := &Writer{ff: ff, keyMem: keyMem, tracer: tracer, logger: logger}

	if !exists {
		if err := invariant(blockValueCount > 0 && blockValueCount&(blockValueCount-1) == 0,
			"block value count must be a power of two, got %d", blockValueCount); err != nil {
			keyMem.Close(keyMem.OrigSize())
			return nil, err
		}
		if err := w.initKeyFile(blockValueCount); err != nil {
			keyMem.Close(keyMem.OrigSize())
			return nil, err
		}
		w.blockValueCount = blockValueCount
	} else {
		if err := w.loadKeyFile(keyPath); err != nil {
			keyMem.Close(keyMem.OrigSize())
			return nil, err
		}
	}
	w.blockValueCountMod = w.blockValueCount - 1
	w.blockCapacity = BlockCapacity(w.blockValueCount)

	valuePath := valueFileName(dir, name)
	valueMem, err := openPagedMemory(ff, valuePath, pageSize)
	if err != nil {
		keyMem.Close(keyMem.OrigSize())
		return nil, err
	}
	if valueMem.OrigSize() < w.valueMemSize {
		valueMem.Close(valueMem.OrigSize())
		keyMem.Close(keyMem.OrigSize())
		return nil, &core.CorruptIndex{Path: valuePath, Message: "truncated value file"}
	}
	w.valueMem = valueMem

	return w, nil
}

func (w *Writer) initKeyFile(blockValueCount int64) error {
	w.keyMem.JumpTo(KeyOffsetSignature)
	if err := w.keyMem.PutByte(Signature); err != nil {
		return err
	}
	w.keyMem.JumpTo(KeyOffsetSequence)
	if err := w.keyMem.PutLong(1); err != nil { // S
		return err
	}
	w.keyMem.JumpTo(KeyOffsetValueMemSize)
	if err := w.keyMem.PutLong(0); err != nil { // V
		return err
	}
	w.keyMem.JumpTo(KeyOffsetBlockValueCnt)
	if err := w.keyMem.PutInt(int32(blockValueCount)); err != nil { // B
		return err
	}
	w.keyMem.JumpTo(KeyOffsetKeyCount)
	if err := w.keyMem.PutLong(0); err != nil { // K
		return err
	}
	w.keyMem.JumpTo(KeyOffsetSequenceCheck)
	if err := w.keyMem.PutLong(1); err != nil { // S'
		return err
	}
	w.keyCount = 0
	w.valueMemSize = 0
	return nil
}

func (w *Writer) loadKeyFile(keyPath string) error {
	if w.keyMem.OrigSize() < KeyFileReserved {
		return &core.CorruptIndex{Path: keyPath, Message: "key file is too small"}
	}
	if w.keyMem.GetByte(KeyOffsetSignature) != Signature {
		return &core.CorruptIndex{Path: keyPath, Message: "invalid header signature"}
	}
	w.keyCount = w.keyMem.GetLong(KeyOffsetKeyCount)
	wantLen := KeyFileReserved + w.keyCount*KeyEntrySize
	if w.keyMem.OrigSize() < wantLen {
		return &core.CorruptIndex{Path: keyPath, Message: "truncated key file"}
	}
	w.valueMemSize = w.keyMem.GetLong(KeyOffsetValueMemSize)
	w.blockValueCount = int64(w.keyMem.GetInt(KeyOffsetBlockValueCnt))
	return nil
}

// Add appends value to the posting list for key. See §4.4.2 for the four
// scenarios this dispatches across.
func (w *Writer) Add(ctx context.Context, key int32, value int64) error {
	var span trace.Span
	if w.tracer != nil {
		ctx, span = w.tracer.Start(ctx, "bitmapindex.Writer.Add")
		defer span.End()
		span.SetAttributes(attribute.Int64("bitmapindex.key", int64(key)))
	}
	w.addCalls.Add(1)

	if err := invariant(key >= 0, "bitmap index key must be non-negative, got %d", key); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	offset := KeyEntryOffset(int64(key))
	var err error
	switch {
	case int64(key) >= w.keyCount:
		// New key (scenario 1). key need not be the very next key: the
		// entries between the old keyCount and key become sparse holes,
		// left as the zero-filled bytes the key file's growth produced
		// (later filled by scenario 4).
		err = w.initValueBlockAndStoreValue(offset, value)
		if err == nil {
			err = w.updateKeyCount(key)
		}
	default:
		lastBlockOffset := w.keyMem.GetLong(offset + KeyEntryOffsetLastValueBlockOffset)
		valueCount := w.keyMem.GetLong(offset + KeyEntryOffsetValueCount)
		cellIndex := valueCount & w.blockValueCountMod
		switch {
		case cellIndex != 0:
			// scenario 2: room left in the last block.
			err = w.appendValue(offset, lastBlockOffset, valueCount, cellIndex, value)
		case valueCount == 0:
			// scenario 4: sparse hole, key already counted in K.
			err = w.initValueBlockAndStoreValue(offset, value)
		default:
			// scenario 3: last block is full.
			err = w.addValueBlockAndStoreValue(offset, lastBlockOffset, valueCount, value)
		}
	}

	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// initValueBlockAndStoreValue handles scenarios 1 and 4: the key entry's
// value list is empty, so a fresh block becomes both its first and last.
func (w *Writer) initValueBlockAndStoreValue(offset, value int64) error {
	newBlockOffset, err := w.allocateValueBlock(value)
	if err != nil {
		return err
	}

	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCount)
	if err := w.keyMem.PutLong(1); err != nil {
		return err
	}
	storeFence()
	w.keyMem.JumpTo(offset + KeyEntryOffsetFirstValueBlockOffset)
	if err := w.keyMem.PutLong(newBlockOffset); err != nil {
		return err
	}
	storeFence()
	if err := w.keyMem.PutLong(newBlockOffset); err != nil { // last block offset
		return err
	}
	storeFence()
	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCountCheck)
	if err := w.keyMem.PutLong(1); err != nil {
		return err
	}
	storeFence()
	return nil
}

// appendValue handles scenario 2: the last block has a free cell.
func (w *Writer) appendValue(offset, lastBlockOffset, valueCount, cellIndex, value int64) error {
	w.valueMem.JumpTo(lastBlockOffset + cellIndex*8)
	if err := w.valueMem.PutLong(value); err != nil {
		return err
	}

	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCount)
	if err := w.keyMem.PutLong(valueCount + 1); err != nil {
		return err
	}
	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCountCheck)
	return w.keyMem.PutLong(valueCount + 1)
}

// addValueBlockAndStoreValue handles scenario 3: the last block is full,
// so a new block is linked onto the chain and becomes the new last block.
//
// The upstream source writes the *old* lastBlockOffset back into the key
// entry here, which would point every reader at the block that is now
// full instead of the one just allocated. §9 note 3 requires writing the
// new offset; this implementation does that.
func (w *Writer) addValueBlockAndStoreValue(offset, lastBlockOffset, valueCount, value int64) error {
	newBlockOffset, err := w.allocateValueBlock(value)
	if err != nil {
		return err
	}

	// previous-link on the new block, then next-link on the old last
	// block — in that order, so a reader who observes the new
	// lastBlockOffset always finds a well-linked predecessor (§4.4.2).
	w.valueMem.JumpTo(newBlockOffset + w.blockCapacity - ValueBlockReserved)
	if err := w.valueMem.PutLong(lastBlockOffset); err != nil {
		return err
	}
	w.valueMem.JumpTo(lastBlockOffset + w.blockCapacity - ValueBlockReserved + 8)
	if err := w.valueMem.PutLong(newBlockOffset); err != nil {
		return err
	}

	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCount)
	if err := w.keyMem.PutLong(valueCount + 1); err != nil {
		return err
	}
	storeFence()
	w.keyMem.JumpTo(offset + KeyEntryOffsetLastValueBlockOffset)
	if err := w.keyMem.PutLong(newBlockOffset); err != nil {
		return err
	}
	storeFence()
	w.keyMem.JumpTo(offset + KeyEntryOffsetValueCountCheck)
	if err := w.keyMem.PutLong(valueCount + 1); err != nil {
		return err
	}
	storeFence()
	return nil
}

// allocateValueBlock reserves a fresh block at the current V, commits
// the header's new V via the sequence/sequence-check protocol (§4.4.3),
// and stores value at the start of the new block.
func (w *Writer) allocateValueBlock(value int64) (int64, error) {
	newBlockOffset := w.valueMemSize
	newV := w.valueMemSize + w.blockCapacity

	if err := w.commitHeader(func() error {
		w.keyMem.JumpTo(KeyOffsetValueMemSize)
		return w.keyMem.PutLong(newV)
	}); err != nil {
		return 0, err
	}
	w.valueMemSize = newV

	w.valueMem.JumpTo(newBlockOffset)
	if err := w.valueMem.PutLong(value); err != nil {
		return 0, err
	}
	return newBlockOffset, nil
}

// updateKeyCount grows K to key+1 and commits it via the sequence/
// sequence-check protocol. Entries between the old K and key are left as
// the zero-filled bytes the mapping's growth already produced (§4.4.2's
// "holes").
func (w *Writer) updateKeyCount(key int32) error {
	newCount := int64(key) + 1
	if err := w.commitHeader(func() error {
		w.keyMem.JumpTo(KeyOffsetKeyCount)
		return w.keyMem.PutLong(newCount)
	}); err != nil {
		return err
	}
	w.keyCount = newCount
	return nil
}

// commitHeader runs mutate() between the sequence bump and the
// sequence-check write, with a store fence on either side, matching
// §4.4.3's S/S' protocol. mutate must write the payload field(s) the
// caller is updating; it must not touch S or S'.
func (w *Writer) commitHeader(mutate func() error) error {
	w.keyMem.JumpTo(KeyOffsetSequence)
	seq := w.keyMem.GetLong(KeyOffsetSequence) + 1
	if err := w.keyMem.PutLong(seq); err != nil {
		return err
	}
	storeFence()

	if err := mutate(); err != nil {
		return err
	}

	w.keyMem.JumpTo(KeyOffsetSequenceCheck)
	storeFence()
	return w.keyMem.PutLong(seq)
}

// Close truncates the key file to K*32+64 and the value file to V, then
// releases both mappings (§4.4.4).
func (w *Writer) Close() error {
	keySize := KeyFileReserved + w.keyCount*KeyEntrySize
	if err := w.keyMem.Close(keySize); err != nil {
		return err
	}
	return w.valueMem.Close(w.valueMemSize)
}

// KeyCount returns K, the current number of keys (including sparse holes).
func (w *Writer) KeyCount() int64 {
	return w.keyCount
}

// ValueMemSize returns V, the number of bytes of the value file in use.
func (w *Writer) ValueMemSize() int64 {
	return w.valueMemSize
}

// AddCalls returns the number of Add invocations made on this writer.
func (w *Writer) AddCalls() uint64 {
	return w.addCalls.Load()
}

func invariant(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return &core.InvariantViolation{Message: fmt.Sprintf(format, args...)}
}
