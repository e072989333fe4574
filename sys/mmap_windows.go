//go:build windows

package sys

import (
	"os"

	"golang.org/x/sys/windows"
)

func mmap(file *os.File, size int64, mode MapMode) ([]byte, error) {
	protect := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if mode == MapReadWrite {
		protect = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	h, err := windows.CreateFileMapping(windows.Handle(file.Fd()), nil, protect, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}

	data := unsafeSliceFromPtr(addr, int(size))
	return data, nil
}

func munmap(data []byte) error {
	return windows.UnmapViewOfFile(uintptr(unsafePtrFromSlice(data)))
}

func mapPageSize() int {
	return os.Getpagesize()
}
