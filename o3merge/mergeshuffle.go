package o3merge

import "fmt"

// sideSlice returns ooo or data according to the merge-index entry's
// side bit.
func sideSlice(side Side, ooo, data []byte) []byte {
	if side == SideOOO {
		return ooo
	}
	return data
}

// shuffleFixed implements shuffle8/16/32/64 (§4.2 table): for each of
// mi.Len() entries, copy width bytes from the side selected by the
// entry's high bit, at the entry's row index, into the destination's
// next slot.
func shuffleFixed(mi *MergeIndex, dataSide, oooSide []byte, dst []byte, width int64) error {
	n := mi.Len()
	if n*width > int64(len(dst)) {
		return fmt.Errorf("o3merge: shuffle destination too small")
	}
	for i := int64(0); i < n; i++ {
		side, row := DecodeMergeEntry(mi.Entry(i))
		src := sideSlice(side, oooSide, dataSide)
		srcOff := row * width
		if srcOff+width > int64(len(src)) {
			return fmt.Errorf("o3merge: shuffle source row %d out of range on side %d", row, side)
		}
		copy(dst[i*width:i*width+width], src[srcOff:srcOff+width])
	}
	return nil
}

// Shuffle8 is shuffleFixed for 1-byte fixed columns.
func Shuffle8(mi *MergeIndex, dataSide, oooSide, dst []byte) error {
	return shuffleFixed(mi, dataSide, oooSide, dst, 1)
}

// Shuffle16 is shuffleFixed for 2-byte fixed columns.
func Shuffle16(mi *MergeIndex, dataSide, oooSide, dst []byte) error {
	return shuffleFixed(mi, dataSide, oooSide, dst, 2)
}

// Shuffle32 is shuffleFixed for 4-byte fixed columns.
func Shuffle32(mi *MergeIndex, dataSide, oooSide, dst []byte) error {
	return shuffleFixed(mi, dataSide, oooSide, dst, 4)
}

// Shuffle64 is shuffleFixed for 8-byte fixed columns.
func Shuffle64(mi *MergeIndex, dataSide, oooSide, dst []byte) error {
	return shuffleFixed(mi, dataSide, oooSide, dst, 8)
}

// MergeTimestampIndex implements the "timestamp-with-row-index" row of
// the §4.2 table: like Shuffle64, but the source rows are 16-byte
// (timestamp, rowId) pairs and only the timestamp half is written.
func MergeTimestampIndex(mi *MergeIndex, dataSide, oooSide, dst []byte) error {
	n := mi.Len()
	if n*8 > int64(len(dst)) {
		return fmt.Errorf("o3merge: timestamp-index merge destination too small")
	}
	for i := int64(0); i < n; i++ {
		side, row := DecodeMergeEntry(mi.Entry(i))
		src := sideSlice(side, oooSide, dataSide)
		srcOff := row * 16
		if srcOff+8 > int64(len(src)) {
			return fmt.Errorf("o3merge: timestamp-index merge source row %d out of range on side %d", row, side)
		}
		copy(dst[i*8:i*8+8], src[srcOff:srcOff+8])
	}
	return nil
}

// varSides bundles the two (fixed, var) region pairs MergeString and
// MergeBinary select from by merge-index side bit.
type varSides struct {
	fix [2][]byte // indexed by Side
	val [2][]byte
}

// MergeString implements §4.2.1.
func MergeString(mi *MergeIndex, sides varSides, dstFix []byte, dstFixOffset int64, dstVar []byte, dstVarOffset int64) (int64, error) {
	n := mi.Len()
	for i := int64(0); i < n; i++ {
		side, row := DecodeMergeEntry(mi.Entry(i))
		fix, val := sides.fix[side], sides.val[side]

		if dstFixOffset+i*8+8 > int64(len(dstFix)) {
			return 0, fmt.Errorf("o3merge: string merge fixed destination out of range")
		}
		writeI64(dstFix, dstFixOffset+i*8, dstVarOffset)

		srcOffset := readI64(fix, row*8)
		if srcOffset+4 > int64(len(val)) {
			return 0, fmt.Errorf("o3merge: string merge length read out of range")
		}
		length := readI32(val, srcOffset)
		payload := int64(0)
		if length > 0 {
			payload = int64(length) * 2
		}
		if dstVarOffset+4+payload > int64(len(dstVar)) {
			return 0, fmt.Errorf("o3merge: string merge destination too small")
		}
		writeI32(dstVar, dstVarOffset, length)
		if payload > 0 {
			if srcOffset+4+payload > int64(len(val)) {
				return 0, fmt.Errorf("o3merge: string merge payload source out of range")
			}
			copy(dstVar[dstVarOffset+4:dstVarOffset+4+payload], val[srcOffset+4:srcOffset+4+payload])
		}
		dstVarOffset += 4 + payload
	}
	return dstVarOffset, nil
}

// MergeBinary implements §4.2.2: an 8-byte length word, and when
// len > 0 a single copy writes the length and payload contiguously.
func MergeBinary(mi *MergeIndex, sides varSides, dstFix []byte, dstFixOffset int64, dstVar []byte, dstVarOffset int64) (int64, error) {
	n := mi.Len()
	for i := int64(0); i < n; i++ {
		side, row := DecodeMergeEntry(mi.Entry(i))
		fix, val := sides.fix[side], sides.val[side]

		if dstFixOffset+i*8+8 > int64(len(dstFix)) {
			return 0, fmt.Errorf("o3merge: binary merge fixed destination out of range")
		}
		writeI64(dstFix, dstFixOffset+i*8, dstVarOffset)

		srcOffset := readI64(fix, row*8)
		if srcOffset+8 > int64(len(val)) {
			return 0, fmt.Errorf("o3merge: binary merge length read out of range")
		}
		length := readI64(val, srcOffset)
		if length > 0 {
			span := length + 8
			if srcOffset+span > int64(len(val)) {
				return 0, fmt.Errorf("o3merge: binary merge payload source out of range")
			}
			if dstVarOffset+span > int64(len(dstVar)) {
				return 0, fmt.Errorf("o3merge: binary merge destination too small")
			}
			copy(dstVar[dstVarOffset:dstVarOffset+span], val[srcOffset:srcOffset+span])
			dstVarOffset += span
		} else {
			if dstVarOffset+8 > int64(len(dstVar)) {
				return 0, fmt.Errorf("o3merge: binary merge destination too small")
			}
			writeI64(dstVar, dstVarOffset, length)
			dstVarOffset += 8
		}
	}
	return dstVarOffset, nil
}
