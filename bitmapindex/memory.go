package bitmapindex

import (
	"encoding/binary"
	"os"

	"github.com/columnardb/o3engine/core"
	"github.com/columnardb/o3engine/sys"
)

// pagedMemory is a growable, memory-mapped write cursor over a single
// file. It mirrors the role of QuestDB's ReadWriteMemory: writers never
// see a raw mmap address, only jumpTo/put/get/skip operations over an
// absolute byte cursor. The mapping is extended — truncate, remap — in
// page-sized increments whenever a write would run past the current
// mapped capacity.
type pagedMemory struct {
	ff       *sys.Facade
	file     *os.File
	data     []byte
	pos      int64
	pageSize int64
	origSize int64
}

func openPagedMemory(ff *sys.Facade, path string, pageSize int64) (*pagedMemory, error) {
	file, err := ff.OpenRW(path)
	if err != nil {
		return nil, err
	}
	m := &pagedMemory{ff: ff, file: file, pageSize: pageSize}
	info, err := file.Stat()
	if err != nil {
		ff.Close(file)
		return nil, &core.IOFailure{Op: "stat", Path: path, Err: err}
	}
	m.origSize = info.Size()
	if info.Size() > 0 {
		if err := m.ensureCapacity(info.Size()); err != nil {
			ff.Close(file)
			return nil, err
		}
	}
	return m, nil
}

// OrigSize returns the file's exact size as observed at open time, before
// any page-rounded growth. Header/length validation must use this value,
// not the (possibly larger) mapped capacity.
func (m *pagedMemory) OrigSize() int64 {
	return m.origSize
}

func (m *pagedMemory) ensureCapacity(required int64) error {
	if required <= int64(len(m.data)) {
		return nil
	}
	newCap := ((required + m.pageSize - 1) / m.pageSize) * m.pageSize
	if len(m.data) > 0 {
		if err := m.ff.Munmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}
	if err := m.ff.Truncate(m.file, newCap); err != nil {
		return err
	}
	data, err := m.ff.Mmap(m.file, newCap, sys.MapReadWrite)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

func (m *pagedMemory) JumpTo(pos int64) {
	m.pos = pos
}

func (m *pagedMemory) Skip(n int64) {
	m.pos += n
}

func (m *pagedMemory) Tell() int64 {
	return m.pos
}

func (m *pagedMemory) PutByte(v byte) error {
	if err := m.ensureCapacity(m.pos + 1); err != nil {
		return err
	}
	m.data[m.pos] = v
	m.pos++
	return nil
}

func (m *pagedMemory) PutInt(v int32) error {
	if err := m.ensureCapacity(m.pos + 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[m.pos:], uint32(v))
	m.pos += 4
	return nil
}

func (m *pagedMemory) PutLong(v int64) error {
	if err := m.ensureCapacity(m.pos + 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[m.pos:], uint64(v))
	m.pos += 8
	return nil
}

func (m *pagedMemory) GetByte(off int64) byte {
	return m.data[off]
}

func (m *pagedMemory) GetInt(off int64) int32 {
	return int32(binary.LittleEndian.Uint32(m.data[off:]))
}

func (m *pagedMemory) GetLong(off int64) int64 {
	return int64(binary.LittleEndian.Uint64(m.data[off:]))
}

// Close truncates the backing file to size, unmaps it and closes the fd.
func (m *pagedMemory) Close(size int64) error {
	if m.data != nil {
		if err := m.ff.Munmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}
	if err := m.ff.Truncate(m.file, size); err != nil {
		return err
	}
	return m.ff.Close(m.file)
}
