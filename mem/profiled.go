package mem

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Profiled decorates any Memory with access statistics: pages read, pages
// written, and the page count of every Grow call. Unlike the structures
// built on it, Profiled is safe to share across OS threads; reads take the
// read half of the lock so host-side tooling and property tests can inspect
// a resource while a workload runs.
type Profiled struct {
	mu           sync.RWMutex
	inner        Memory
	pagesRead    atomic.Uint64
	pagesWritten atomic.Uint64
	grows        []uint64
}

// NewProfiled wraps inner with statistics recording.
func NewProfiled(inner Memory) *Profiled {
	return &Profiled{inner: inner}
}

// Size returns the current size in pages.
func (p *Profiled) Size() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inner.Size()
}

// Grow records the requested page count and forwards to the inner memory.
// The request is recorded even when the inner memory fails, so tests can
// assert on attempted allocations.
func (p *Profiled) Grow(pages uint64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grows = append(p.grows, pages)
	return p.inner.Grow(pages)
}

// Read counts the pages the range touches and forwards.
func (p *Profiled) Read(offset uint64, dst []byte) {
	p.pagesRead.Add(PagesSpanned(offset, len(dst)))
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.inner.Read(offset, dst)
}

// Write counts the pages the range touches and forwards.
func (p *Profiled) Write(offset uint64, src []byte) {
	p.pagesWritten.Add(PagesSpanned(offset, len(src)))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner.Write(offset, src)
}

// Stats returns a snapshot of the recorded statistics.
func (p *Profiled) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		PagesRead:    p.pagesRead.Load(),
		PagesWritten: p.pagesWritten.Load(),
		Grows:        append([]uint64(nil), p.grows...),
	}
}

// ResetStats clears all recorded statistics.
func (p *Profiled) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pagesRead.Store(0)
	p.pagesWritten.Store(0)
	p.grows = nil
}

// Stats is a snapshot of a Profiled memory's counters.
type Stats struct {
	// PagesRead is the total pages touched by Read calls.
	PagesRead uint64
	// PagesWritten is the total pages touched by Write calls.
	PagesWritten uint64
	// Grows holds the requested page count of every Grow call, in order.
	Grows []uint64
}

// Accesses returns PagesRead + PagesWritten.
func (s Stats) Accesses() uint64 { return s.PagesRead + s.PagesWritten }

// TotalGrown returns the sum of all recorded grow requests.
func (s Stats) TotalGrown() uint64 {
	var total uint64
	for _, g := range s.Grows {
		total += g
	}
	return total
}

// MaxGrow returns the largest single grow request, or 0.
func (s Stats) MaxGrow() uint64 {
	var max uint64
	for _, g := range s.Grows {
		if g > max {
			max = g
		}
	}
	return max
}

func (s Stats) String() string {
	return fmt.Sprintf("pages read: %d, written: %d, accessed: %d, allocated: %d, max allocation: %d",
		s.PagesRead, s.PagesWritten, s.Accesses(), s.TotalGrown(), s.MaxGrow())
}
