// Package o3merge implements the out-of-order column merge engine:
// given a precomputed merge index describing how an unordered batch of
// new rows interleaves with an existing on-disk partition, it copies
// column data into the merged destination in timestamp order (§3, §4).
package o3merge

import (
	"encoding/binary"
	"fmt"
)

// CopyFixed implements §4.1.1: copy exactly (srcHi-srcLo+1)<<k bytes
// from src+(srcLo<<k) to dst+dstOffset, with no reinterpretation or
// endian conversion.
func CopyFixed(src []byte, srcLo, srcHi int64, dst []byte, dstOffset int64, sc SizeClass) error {
	k := sc.Shift()
	n := (srcHi - srcLo + 1) << uint(k)
	if n <= 0 {
		return nil
	}
	srcStart := srcLo << uint(k)
	if srcStart+n > int64(len(src)) {
		return fmt.Errorf("o3merge: fixed copy source out of range: start=%d n=%d len=%d", srcStart, n, len(src))
	}
	if dstOffset+n > int64(len(dst)) {
		return fmt.Errorf("o3merge: fixed copy destination out of range: start=%d n=%d len=%d", dstOffset, n, len(dst))
	}
	copy(dst[dstOffset:dstOffset+n], src[srcStart:srcStart+n])
	return nil
}

// CopyTimestampIndex implements §4.1.3: the source fixed file holds
// 16-byte (timestamp, rowId) pairs; only the 8-byte timestamp half of
// each row in [srcLo, srcHi] is written to dst, yielding a plain 8-byte
// timestamp column.
func CopyTimestampIndex(src []byte, srcLo, srcHi int64, dst []byte, dstOffset int64) error {
	n := srcHi - srcLo + 1
	if dstOffset+n*8 > int64(len(dst)) {
		return fmt.Errorf("o3merge: timestamp-index copy destination out of range")
	}
	for i := int64(0); i < n; i++ {
		srcOff := (srcLo + i) * 16
		if srcOff+8 > int64(len(src)) {
			return fmt.Errorf("o3merge: timestamp-index copy source out of range")
		}
		copy(dst[dstOffset+i*8:dstOffset+i*8+8], src[srcOff:srcOff+8])
	}
	return nil
}

// CopyVar implements §4.1.2: read lo = srcFix[srcLo]; compute hi (end
// of range, using srcVarSize when the range runs to the last row);
// copy the var-byte span; then rewrite the destination fixed-file
// offsets, shifting each entry by lo-dstVarOffset unless the two already
// coincide.
func CopyVar(srcFix []byte, srcVar []byte, srcLo, srcHi int64, dstFix []byte, dstFixOffset int64, dstVar []byte, dstVarOffset int64) error {
	lo := readI64(srcFix, srcLo*8)
	var hi int64
	if srcHi+1 == int64(len(srcFix))/8 {
		hi = int64(len(srcVar))
	} else {
		hi = readI64(srcFix, (srcHi+1)*8)
	}
	n := hi - lo
	if lo+n > int64(len(srcVar)) || dstVarOffset+n > int64(len(dstVar)) {
		return fmt.Errorf("o3merge: var copy payload out of range")
	}
	copy(dstVar[dstVarOffset:dstVarOffset+n], srcVar[lo:lo+n])

	rowCount := srcHi - srcLo + 1
	if lo == dstVarOffset {
		return CopyFixed(srcFix, srcLo, srcHi, dstFix, dstFixOffset, SizeClass8)
	}
	return shiftCopyFixed(srcFix, srcLo, rowCount, dstFix, dstFixOffset, lo-dstVarOffset)
}

// shiftCopyFixed copies rowCount 8-byte offset entries starting at row
// srcLo, subtracting shift from each one, matching the "otherwise each
// offset must be shifted" branch of §4.1.2.
func shiftCopyFixed(srcFix []byte, srcLo, rowCount int64, dstFix []byte, dstFixOffset, shift int64) error {
	if (srcLo+rowCount)*8 > int64(len(srcFix)) {
		return fmt.Errorf("o3merge: shifted fixed copy source out of range")
	}
	if dstFixOffset+rowCount*8 > int64(len(dstFix)) {
		return fmt.Errorf("o3merge: shifted fixed copy destination out of range")
	}
	for i := int64(0); i < rowCount; i++ {
		v := readI64(srcFix, (srcLo+i)*8)
		writeI64(dstFix, dstFixOffset+i*8, v-shift)
	}
	return nil
}

func readI64(b []byte, off int64) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

func writeI64(b []byte, off, v int64) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

func readI32(b []byte, off int64) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

func writeI32(b []byte, off int64, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}
