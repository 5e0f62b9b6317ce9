//go:build !unix

package mmfile

import (
	"fmt"
	"os"
)

// File is the portable fallback: contents live on the heap and are written
// back to the file on Flush and Close. Semantics mirror the mmap build.
type File struct {
	path   string
	data   []byte
	length int64
	max    int64
	closed bool
}

// Create opens (creating if needed) the file at path with a max-byte budget.
func Create(path string, max int64) (*File, error) {
	if max <= 0 {
		return nil, fmt.Errorf("mmfile: non-positive address space reservation (%d)", max)
	}
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if int64(len(existing)) > max {
		return nil, fmt.Errorf("%w: file is %d bytes, reservation is %d", ErrOutOfAddressSpace, len(existing), max)
	}
	f := &File{path: path, length: int64(len(existing)), max: max}
	f.data = make([]byte, f.length, f.length)
	copy(f.data, existing)
	return f, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Len returns the current file length in bytes.
func (f *File) Len() int64 { return f.length }

// Max returns the reserved byte budget.
func (f *File) Max() int64 { return f.max }

// Resize grows the buffer to newLen bytes. Shrinking is a no-op.
func (f *File) Resize(newLen int64) error {
	if newLen <= f.length {
		return nil
	}
	if newLen > f.max {
		return fmt.Errorf("%w: claimed %d, limit %d", ErrOutOfAddressSpace, newLen, f.max)
	}
	grown := make([]byte, newLen)
	copy(grown, f.data)
	f.data = grown
	f.length = newLen
	return nil
}

// Read copies bytes starting at off into dst.
func (f *File) Read(off int64, dst []byte) error {
	if err := f.check(off, int64(len(dst))); err != nil {
		return err
	}
	copy(dst, f.data[off:off+int64(len(dst))])
	return nil
}

// Write copies src into the buffer starting at off.
func (f *File) Write(off int64, src []byte) error {
	if err := f.check(off, int64(len(src))); err != nil {
		return err
	}
	copy(f.data[off:off+int64(len(src))], src)
	return nil
}

// ZeroRange fills [off, off+n) with zeros.
func (f *File) ZeroRange(off, n int64) error {
	if err := f.check(off, n); err != nil {
		return err
	}
	b := f.data[off : off+n]
	for i := range b {
		b[i] = 0
	}
	return nil
}

// Flush writes the buffer back to the file.
func (f *File) Flush() error {
	return os.WriteFile(f.path, f.data[:f.length], 0o644)
}

// Close flushes and releases the buffer.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	err := f.Flush()
	f.data = nil
	return err
}

func (f *File) check(off, n int64) error {
	if off < 0 || n < 0 || off > f.length || n > f.length-off {
		return fmt.Errorf("%w: [%d, %d) beyond length %d", ErrOutOfRange, off, off+n, f.length)
	}
	return nil
}
