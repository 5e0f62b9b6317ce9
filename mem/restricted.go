package mem

// Restricted exposes the page window [start, end) of an underlying Memory
// as an independent Memory whose page 0 is the underlying page start.
//
// It is how a single physical resource is carved into a statically
// addressed metadata region and a data region without either being able to
// grow into the other.
type Restricted struct {
	inner Memory
	start uint64
	end   uint64
}

// NewRestricted returns the window [startPage, endPage) of inner.
// endPage may be a very large value to mean "the rest of the resource".
func NewRestricted(inner Memory, startPage, endPage uint64) *Restricted {
	if endPage < startPage {
		endPage = startPage
	}
	return &Restricted{inner: inner, start: startPage, end: endPage}
}

// Size returns the number of window pages currently backed by the
// underlying memory.
func (r *Restricted) Size() uint64 {
	inner := r.inner.Size()
	if inner <= r.start {
		return 0
	}
	if inner >= r.end {
		return r.end - r.start
	}
	return inner - r.start
}

// Grow extends the window by pages, growing the underlying memory as far as
// needed. Returns the previous window page count, or -1 when the request
// exceeds the window or the underlying memory refuses to grow.
func (r *Restricted) Grow(pages uint64) int64 {
	prev := r.Size()
	if prev+pages > r.end-r.start {
		return -1
	}
	target := r.start + prev + pages
	if inner := r.inner.Size(); inner < target {
		if r.inner.Grow(target-inner) == -1 {
			return -1
		}
	}
	return int64(prev)
}

// Read copies bytes starting at the window-relative offset into dst.
func (r *Restricted) Read(offset uint64, dst []byte) {
	if !InBounds(offset, len(dst), r.Size()*PageSize) {
		outOfBounds("read", offset, len(dst), r.Size()*PageSize)
	}
	r.inner.Read(r.start*PageSize+offset, dst)
}

// Write copies src into the window starting at the window-relative offset.
func (r *Restricted) Write(offset uint64, src []byte) {
	if !InBounds(offset, len(src), r.Size()*PageSize) {
		outOfBounds("write", offset, len(src), r.Size()*PageSize)
	}
	r.inner.Write(r.start*PageSize+offset, src)
}
