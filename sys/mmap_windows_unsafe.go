//go:build windows

package sys

import "unsafe"

func unsafeSliceFromPtr(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

func unsafePtrFromSlice(data []byte) uintptr {
	return uintptr(unsafe.Pointer(&data[0]))
}
