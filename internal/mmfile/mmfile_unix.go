//go:build unix

package mmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a writable, growable memory-mapped file.
//
// The whole address window of max bytes is mapped up front, so growing the
// file with Resize never remaps; it only extends the file on disk. Bytes
// past the current length must not be touched (they would fault), which is
// why every access goes through the bounds-checked Read/Write/ZeroRange.
//
// Preconditions: the file under path must not be modified from any other
// place in this or another process while mapped.
type File struct {
	f      *os.File
	path   string
	data   []byte
	length int64
	max    int64
}

// Create opens (creating if needed) the file at path and maps max bytes of
// address space over it.
func Create(path string, max int64) (*File, error) {
	if max <= 0 {
		return nil, fmt.Errorf("mmfile: non-positive address space reservation (%d)", max)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	length := info.Size()
	if length > max {
		f.Close()
		return nil, fmt.Errorf("%w: file is %d bytes, reservation is %d", ErrOutOfAddressSpace, length, max)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(max), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmfile: mmap: %w", err)
	}
	return &File{f: f, path: path, data: data, length: length, max: max}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Len returns the current file length in bytes.
func (f *File) Len() int64 { return f.length }

// Max returns the reserved address space in bytes.
func (f *File) Max() int64 { return f.max }

// Resize grows the file to newLen bytes. Shrinking is a no-op. The grown
// region reads as zeros. There is no need to remap after changing the size.
func (f *File) Resize(newLen int64) error {
	if newLen <= f.length {
		return nil
	}
	if newLen > f.max {
		return fmt.Errorf("%w: claimed %d, limit %d", ErrOutOfAddressSpace, newLen, f.max)
	}
	if err := f.f.Truncate(newLen); err != nil {
		return err
	}
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

// Write copies src into the mapping starting at off.
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

// Flush synchronously writes the mapped contents back to disk.
func (f *File) Flush() error {
	if f.length == 0 {
		return nil
	}
	if err := unix.Msync(f.data[:f.length], unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmfile: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the file. The contents are flushed first.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	flushErr := f.Flush()
	err := unix.Munmap(f.data)
	f.data = nil
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	if flushErr != nil {
		return flushErr
	}
	return err
}

func (f *File) check(off, n int64) error {
	if off < 0 || n < 0 || off > f.length || n > f.length-off {
		return fmt.Errorf("%w: [%d, %d) beyond length %d", ErrOutOfRange, off, off+n, f.length)
	}
	return nil
}
