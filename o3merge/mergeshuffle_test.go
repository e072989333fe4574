package o3merge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShuffle64_SelectsBySideBit(t *testing.T) {
	data := append(u64le(10), u64le(20)...) // on-disk rows 0,1
	ooo := append(u64le(100), u64le(200)...) // OOO rows 0,1

	mi := NewMergeIndex([]uint64{
		EncodeMergeEntry(SideOOO, 0),  // 100
		EncodeMergeEntry(SideData, 0), // 10
		EncodeMergeEntry(SideOOO, 1),  // 200
		EncodeMergeEntry(SideData, 1), // 20
	})

	dst := make([]byte, 32)
	require.NoError(t, Shuffle64(mi, data, ooo, dst))
	require.Equal(t, int64(100), int64(binary.LittleEndian.Uint64(dst[0:8])))
	require.Equal(t, int64(10), int64(binary.LittleEndian.Uint64(dst[8:16])))
	require.Equal(t, int64(200), int64(binary.LittleEndian.Uint64(dst[16:24])))
	require.Equal(t, int64(20), int64(binary.LittleEndian.Uint64(dst[24:32])))
}

func TestShuffle8_OneByteAtATime(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	ooo := []byte{0x11, 0x22}
	mi := NewMergeIndex([]uint64{
		EncodeMergeEntry(SideData, 1),
		EncodeMergeEntry(SideOOO, 0),
	})
	dst := make([]byte, 2)
	require.NoError(t, Shuffle8(mi, data, ooo, dst))
	require.Equal(t, []byte{0xBB, 0x11}, dst)
}

func TestMergeTimestampIndex_ReadsTimestampHalfOnly(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[0:8], 500)
	binary.LittleEndian.PutUint64(data[8:16], 7) // rowId, dropped

	ooo := make([]byte, 16)
	binary.LittleEndian.PutUint64(ooo[0:8], 900)
	binary.LittleEndian.PutUint64(ooo[8:16], 3)

	mi := NewMergeIndex([]uint64{
		EncodeMergeEntry(SideOOO, 0),
		EncodeMergeEntry(SideData, 0),
	})
	dst := make([]byte, 16)
	require.NoError(t, MergeTimestampIndex(mi, data, ooo, dst))
	require.Equal(t, int64(900), int64(binary.LittleEndian.Uint64(dst[0:8])))
	require.Equal(t, int64(500), int64(binary.LittleEndian.Uint64(dst[8:16])))
}

func TestMergeString_NullAndOrdinaryRows(t *testing.T) {
	// data side: one row, length -1 (null)
	dataFix := u64le(0)
	dataVar := make([]byte, 4)
	nullLen := int32(-1)
	binary.LittleEndian.PutUint32(dataVar[0:4], uint32(nullLen))

	// ooo side: one row, "AB" (2 UTF-16 code units)
	oooFix := u64le(0)
	oooVar := make([]byte, 4+4)
	binary.LittleEndian.PutUint32(oooVar[0:4], 2)
	binary.LittleEndian.PutUint16(oooVar[4:6], 'A')
	binary.LittleEndian.PutUint16(oooVar[6:8], 'B')

	mi := NewMergeIndex([]uint64{
		EncodeMergeEntry(SideData, 0), // null first
		EncodeMergeEntry(SideOOO, 0),  // then "AB"
	})

	sides := varSides{
		fix: [2][]byte{SideOOO: oooFix, SideData: dataFix},
		val: [2][]byte{SideOOO: oooVar, SideData: dataVar},
	}

	dstFix := make([]byte, 16)
	dstVar := make([]byte, 4+4+4)
	end, err := MergeString(mi, sides, dstFix, 0, dstVar, 0)
	require.NoError(t, err)
	require.Equal(t, int64(4+8), end)

	require.Equal(t, int64(0), int64(binary.LittleEndian.Uint64(dstFix[0:8])))
	require.Equal(t, int64(4), int64(binary.LittleEndian.Uint64(dstFix[8:16])))
	require.Equal(t, int32(-1), int32(binary.LittleEndian.Uint32(dstVar[0:4])))
	require.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(dstVar[4:8])))
	require.Equal(t, uint16('A'), binary.LittleEndian.Uint16(dstVar[8:10]))
	require.Equal(t, uint16('B'), binary.LittleEndian.Uint16(dstVar[10:12]))
}

func TestMergeBinary_ZeroLengthWritesLengthWordOnly(t *testing.T) {
	dataFix := u64le(0)
	dataVar := u64le(0) // length 0, no payload

	mi := NewMergeIndex([]uint64{EncodeMergeEntry(SideData, 0)})
	sides := varSides{
		fix: [2][]byte{SideData: dataFix},
		val: [2][]byte{SideData: dataVar},
	}
	dstFix := make([]byte, 8)
	dstVar := make([]byte, 8)
	end, err := MergeBinary(mi, sides, dstFix, 0, dstVar, 0)
	require.NoError(t, err)
	require.Equal(t, int64(8), end)
	require.Equal(t, int64(0), int64(binary.LittleEndian.Uint64(dstVar[0:8])))
}

func TestMergeBinary_PositiveLengthCopiesLengthAndPayloadTogether(t *testing.T) {
	dataFix := u64le(0)
	dataVar := append(u64le(3), []byte{0xDE, 0xAD, 0xBE}...)

	mi := NewMergeIndex([]uint64{EncodeMergeEntry(SideData, 0)})
	sides := varSides{
		fix: [2][]byte{SideData: dataFix},
		val: [2][]byte{SideData: dataVar},
	}
	dstFix := make([]byte, 8)
	dstVar := make([]byte, 11)
	end, err := MergeBinary(mi, sides, dstFix, 0, dstVar, 0)
	require.NoError(t, err)
	require.Equal(t, int64(11), end)
	require.Equal(t, dataVar, dstVar)
}
