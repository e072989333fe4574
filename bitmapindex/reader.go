package bitmapindex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/columnardb/o3engine/core"
	"github.com/columnardb/o3engine/sys"
)

// maxCommitRetries bounds how many times Reader re-reads a sequence/count
// pair before giving up on a writer that appears to be permanently stuck
// mid-commit (§7: readers must retry on S != S', count != countCheck).
const maxCommitRetries = 64

// Reader is a read-only, concurrent-safe view of a bitmap index. It
// exists to exercise the read side of the sequence/sequence-check and
// count/count-check protocol in tests (§8 round-trip properties); it is
// not part of the query engine (out of scope, §1).
type Reader struct {
	ff       *sys.Facade
	keyMem   *pagedMemory
	valueMem *pagedMemory
}

// OpenReader maps the key and value files of the index named name under
// dir for reading.
func OpenReader(ff *sys.Facade, dir, name string) (*Reader, error) {
	keyMem, err := openPagedMemory(ff, keyFileName(dir, name), int64(ff.GetMapPageSize()))
	if err != nil {
		return nil, err
	}
	if keyMem.OrigSize() < KeyFileReserved {
		keyMem.Close(keyMem.OrigSize())
		return nil, &core.CorruptIndex{Path: keyFileName(dir, name), Message: "key file is too small"}
	}
	if keyMem.GetByte(KeyOffsetSignature) != Signature {
		keyMem.Close(keyMem.OrigSize())
		return nil, &core.CorruptIndex{Path: keyFileName(dir, name), Message: "invalid header signature"}
	}

	valueMem, err := openPagedMemory(ff, valueFileName(dir, name), int64(ff.GetMapPageSize()))
	if err != nil {
		keyMem.Close(keyMem.OrigSize())
		return nil, err
	}

	return &Reader{ff: ff, keyMem: keyMem, valueMem: valueMem}, nil
}

// Close releases the reader's mappings and truncates each file back to
// the size it had when OpenReader ran, undoing the page-rounded growth
// that mapping it caused. Bytes a writer appended after that point are
// cut off as well.
func (r *Reader) Close() error {
	if err := r.keyMem.Close(r.keyMem.OrigSize()); err != nil {
		return err
	}
	return r.valueMem.Close(r.valueMem.OrigSize())
}

// keyCount reads K with the sequence/sequence-check retry loop (§4.4.3,
// §7): S and S' must agree for the header to be trustworthy.
func (r *Reader) keyCount() (int64, error) {
	for i := 0; i < maxCommitRetries; i++ {
		s := r.keyMem.GetLong(KeyOffsetSequence)
		k := r.keyMem.GetLong(KeyOffsetKeyCount)
		sCheck := r.keyMem.GetLong(KeyOffsetSequenceCheck)
		if s == sCheck {
			return k, nil
		}
	}
	return 0, &core.CorruptIndex{Message: "key file header never settled (sequence != sequence-check)"}
}

func (r *Reader) blockValueCount() int64 {
	return int64(r.keyMem.GetInt(KeyOffsetBlockValueCnt))
}

// Values returns the committed posting list for key, in the order values
// were added (§8 round-trip property). It traverses the value-block
// chain backward from lastBlockOffset to firstBlockOffset as described
// in §8 invariant 5, then reverses block order to restore insertion
// order.
func (r *Reader) Values(key int32) ([]int64, error) {
	k, err := r.keyCount()
	if err != nil {
		return nil, err
	}
	if int64(key) >= k {
		return nil, fmt.Errorf("key %d is beyond key count %d", key, k)
	}

	offset := KeyEntryOffset(int64(key))
	var valueCount, lastBlockOffset int64
	ok := false
	for i := 0; i < maxCommitRetries; i++ {
		valueCount = r.keyMem.GetLong(offset + KeyEntryOffsetValueCount)
		lastBlockOffset = r.keyMem.GetLong(offset + KeyEntryOffsetLastValueBlockOffset)
		check := r.keyMem.GetLong(offset + KeyEntryOffsetValueCountCheck)
		if valueCount == check {
			ok = true
			break
		}
	}
	if !ok {
		return nil, &core.CorruptIndex{Message: fmt.Sprintf("key %d entry never settled", key)}
	}
	if valueCount == 0 {
		return nil, nil
	}

	B := r.blockValueCount()
	blockCapacity := BlockCapacity(B)
	lastCount := valueCount % B
	if lastCount == 0 {
		lastCount = B
	}

	var blocks [][]int64
	remaining := valueCount
	curOffset := lastBlockOffset
	curCount := lastCount
	for {
		block := make([]int64, curCount)
		for i := int64(0); i < curCount; i++ {
			block[i] = r.valueMem.GetLong(curOffset + i*8)
		}
		blocks = append(blocks, block)
		remaining -= curCount
		if remaining <= 0 {
			break
		}
		curOffset = r.valueMem.GetLong(curOffset + blockCapacity - ValueBlockReserved)
		curCount = B
	}

	values := make([]int64, 0, valueCount)
	for i := len(blocks) - 1; i >= 0; i-- {
		values = append(values, blocks[i]...)
	}
	return values, nil
}

// ValuesBitmap is Values collected into a roaring64 bitmap, the usual
// shape a reader-side consumer of a posting list wants.
func (r *Reader) ValuesBitmap(key int32) (*roaring64.Bitmap, error) {
	values, err := r.Values(key)
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for _, v := range values {
		if v >= 0 {
			bm.Add(uint64(v))
		}
	}
	return bm, nil
}
