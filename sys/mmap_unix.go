//go:build unix

package sys

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmap(file *os.File, size int64, mode MapMode) ([]byte, error) {
	prot := unix.PROT_READ
	if mode == MapReadWrite {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

func munmap(data []byte) error {
	return unix.Munmap(data)
}

func mapPageSize() int {
	return os.Getpagesize()
}
