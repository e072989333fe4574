package sys

import (
	"os"

	"github.com/columnardb/o3engine/core"
)

// MapMode selects the protection flags used by Mmap.
type MapMode int

const (
	// MapReadOnly maps a region for reading only.
	MapReadOnly MapMode = iota
	// MapReadWrite maps a region for reading and writing, visible to the
	// backing file once the mapping is synced or unmapped.
	MapReadWrite
)

// Facade is the file-system façade the O3 merge engine and the bitmap
// index writer depend on. It collects the small set of syscalls both
// subsystems need directly: open/close of raw handles, mmap/munmap of
// byte ranges, truncate, existence checks and the platform's map page
// size. Every method that can fail returns an *IOFailure.
//
// A *Facade has no state of its own. It is a concrete type, not an
// interface: callers take a *Facade, so a fake cannot be substituted
// for it.
type Facade struct{}

// NewFacade returns the default, real file-system façade.
func NewFacade() *Facade {
	return &Facade{}
}

// OpenRW opens path for reading and writing, creating it if absent.
func (f *Facade) OpenRW(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &core.IOFailure{Op: "open", Path: path, Err: err}
	}
	return file, nil
}

// Close closes fd. A nil file is a no-op, matching the source's policy of
// skipping close for a non-positive fd (§4.3).
func (f *Facade) Close(file *os.File) error {
	if file == nil {
		return nil
	}
	if err := file.Close(); err != nil {
		return &core.IOFailure{Op: "close", Path: file.Name(), Err: err}
	}
	return nil
}

// Truncate resizes file to size bytes.
func (f *Facade) Truncate(file *os.File, size int64) error {
	if err := file.Truncate(size); err != nil {
		return &core.IOFailure{Op: "truncate", Path: file.Name(), Err: err}
	}
	return nil
}

// Exists reports whether path exists on disk.
func (f *Facade) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetMapPageSize returns the platform's memory page size, used to size
// the growth increments of mmap'd regions.
func (f *Facade) GetMapPageSize() int {
	return mapPageSize()
}

// Mmap maps size bytes of file starting at offset 0. mode selects the
// protection flags; MapReadWrite additionally requires file to have been
// opened for writing.
func (f *Facade) Mmap(file *os.File, size int64, mode MapMode) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	data, err := mmap(file, size, mode)
	if err != nil {
		return nil, &core.IOFailure{Op: "mmap", Path: file.Name(), Err: err}
	}
	return data, nil
}

// Munmap unmaps a region previously returned by Mmap. A zero-length
// region is a no-op, matching the unmapAndClose skip-on-zero-size policy
// from §4.3.
func (f *Facade) Munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := munmap(data); err != nil {
		return &core.IOFailure{Op: "munmap", Err: err}
	}
	return nil
}

// Sync flushes file's content and metadata to stable storage.
func (f *Facade) Sync(file *os.File) error {
	if err := file.Sync(); err != nil {
		return &core.IOFailure{Op: "fsync", Path: file.Name(), Err: err}
	}
	return nil
}
