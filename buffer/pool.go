package buffer

import (
	"sync"
	"sync/atomic"
)

// Pool manages a set of reusable Buffers sized for one stream's declared
// payload size, reducing allocations and GC pressure during sustained
// acquisition. Grounded on the teacher's FramePool (device/frame_pool.go):
// same sync.Pool-backed Get/Put shape and atomic stats counters, adapted
// to hand out *Buffer (with status/parts/chunks) instead of raw []byte.
//
// Pool is safe for concurrent use.
type Pool struct {
	pool sync.Pool

	defaultCap int

	gets    atomic.Int64
	puts    atomic.Int64
	allocs  atomic.Int64
	resizes atomic.Int64
}

// NewPool creates a Pool whose buffers default to defaultCapacity bytes,
// sized for the stream's common frame size (e.g. width*height*bpp).
func NewPool(defaultCapacity int) *Pool {
	p := &Pool{defaultCap: defaultCapacity}
	p.pool.New = func() any {
		b := New(p.defaultCap)
		b.owned = true
		p.allocs.Add(1)
		return b
	}
	return p
}

// Get returns a Buffer with at least size bytes of capacity, Status
// Cleared. If the pooled buffer is undersized it is reallocated with
// headroom to reduce future resizes.
func (p *Pool) Get(size int) *Buffer {
	p.gets.Add(1)
	b := p.pool.Get().(*Buffer)
	if cap(b.Data) < size {
		p.resizes.Add(1)
		newCap := size * 2
		if newCap < p.defaultCap {
			newCap = p.defaultCap
		}
		b.Data = make([]byte, size, newCap)
	} else {
		b.Data = b.Data[:size]
	}
	b.AllocatedSize = size
	b.Status = StatusCleared
	b.pool = p
	return b
}

// Put returns a Buffer to the pool. The buffer must not be used again by
// the caller after this call; Release() calls this automatically for
// pool-owned buffers.
func (p *Pool) Put(b *Buffer) {
	if b == nil || !b.owned {
		return
	}
	p.puts.Add(1)
	b.Reset()
	b.Data = b.Data[:0]
	p.pool.Put(b)
}

// Stats reports cumulative pool usage counters.
type Stats struct {
	Gets        int64
	Puts        int64
	Allocs      int64
	Resizes     int64
	Outstanding int64
	HitRate     float64
}

// Stats returns a snapshot of the pool's usage counters.
func (p *Pool) Stats() Stats {
	gets := p.gets.Load()
	puts := p.puts.Load()
	allocs := p.allocs.Load()
	resizes := p.resizes.Load()

	var hitRate float64
	if gets > 0 {
		hits := gets - allocs
		if hits < 0 {
			hits = 0
		}
		hitRate = float64(hits) / float64(gets)
	}

	return Stats{
		Gets:        gets,
		Puts:        puts,
		Allocs:      allocs,
		Resizes:     resizes,
		Outstanding: gets - puts,
		HitRate:     hitRate,
	}
}

var defaultPool = NewPool(1 << 20)

// DefaultPool returns the package-level default Pool (1MB buffers),
// shared unless a stream is configured with its own.
func DefaultPool() *Pool {
	return defaultPool
}
