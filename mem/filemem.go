package mem

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/joshuapare/stablekit/internal/mmfile"
)

// DefaultMaxFilePages is the address-space reservation used when
// FileOptions.MaxPages is zero: 131072 pages (8 GiB).
const DefaultMaxFilePages uint64 = 131072

// FileOptions configures OpenFile.
type FileOptions struct {
	// MaxPages bounds the file's growth. The whole range is reserved as
	// address space up front so growing never remaps. Zero means
	// DefaultMaxFilePages.
	MaxPages uint64
	// Transient removes the file on Close instead of flushing it, for
	// scratch stores in tests and tooling.
	Transient bool
}

// FileMemory is a durable Memory backed by a memory-mapped file. It is
// guarded by a reader-writer lock so the resource can be shared across OS
// threads in host-side tooling.
type FileMemory struct {
	mu        sync.RWMutex
	f         *mmfile.File
	transient bool
}

// OpenFile opens (creating if needed) a file-backed memory at path. An
// existing file's pages are visible immediately; partial trailing pages are
// not allowed.
func OpenFile(path string, opts FileOptions) (*FileMemory, error) {
	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = DefaultMaxFilePages
	}
	f, err := mmfile.Create(path, int64(maxPages*PageSize))
	if err != nil {
		return nil, err
	}
	if f.Len()%int64(PageSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("mem: file %s length %d is not page aligned", path, f.Len())
	}
	return &FileMemory{f: f, transient: opts.Transient}, nil
}

// Size returns the current size in pages.
func (m *FileMemory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(m.f.Len()) / PageSize
}

// Grow extends the file by pages zeroed pages and returns the previous page
// count, or -1 when the reserved address space is exhausted.
func (m *FileMemory) Grow(pages uint64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := uint64(m.f.Len()) / PageSize
	oldLen := m.f.Len()
	newLen := oldLen + int64(pages*PageSize)
	if err := m.f.Resize(newLen); err != nil {
		return -1
	}
	// The OS zero-fills extended file ranges on the mmap build; the
	// fallback build allocates fresh buffers. Zero explicitly anyway so
	// both builds honor the contract for re-grown transient files.
	if err := m.f.ZeroRange(oldLen, newLen-oldLen); err != nil {
		return -1
	}
	return int64(prev)
}

// Read copies bytes starting at offset into dst.
func (m *FileMemory) Read(offset uint64, dst []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.f.Read(int64(offset), dst); err != nil {
		outOfBounds("read", offset, len(dst), uint64(m.f.Len()))
	}
}

// Write copies src into the file starting at offset.
func (m *FileMemory) Write(offset uint64, src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Write(int64(offset), src); err != nil {
		outOfBounds("write", offset, len(src), uint64(m.f.Len()))
	}
}

// Flush synchronously writes all changes to the backing file.
func (m *FileMemory) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Flush()
}

// SaveCopy flushes and writes a copy of the current contents to path.
func (m *FileMemory) SaveCopy(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Flush(); err != nil {
		return err
	}
	src, err := os.Open(m.f.Path())
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// SetTransient changes whether Close removes the backing file.
func (m *FileMemory) SetTransient(transient bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transient = transient
}

// Close flushes (persistent) or removes (transient) the backing file and
// releases the mapping.
func (m *FileMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := m.f.Path()
	err := m.f.Close()
	if m.transient {
		if rmErr := os.Remove(path); err == nil {
			err = rmErr
		}
	}
	return err
}
