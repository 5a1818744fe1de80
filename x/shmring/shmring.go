package shmring

import (
	"sync/atomic"
)

// Ring is a single-producer, single-consumer byte ring. The producer and
// consumer may run on different goroutines without further locking.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	dropped atomic.Uint64

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge
}

// New allocates a ring of size bytes. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Producer side

// WriteFrom copies as much of src as fits and returns the count.
func (r *Ring) WriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	n = int(r.size() - beforeAvail)
	if n <= 0 {
		return 0
	}
	if len(src) < n {
		n = len(src)
	}

	wrIdx := wr & r.mask
	first := int(r.size() - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n))

	if beforeAvail == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// Write implements io.Writer for producers that cannot wait. Bytes that do
// not fit are counted in Dropped and never reported as an error.
func (r *Ring) Write(p []byte) (int, error) {
	n := r.WriteFrom(p)
	if n < len(p) {
		r.dropped.Add(uint64(len(p) - n))
	}
	return len(p), nil
}

// Dropped reports how many bytes Write has discarded for lack of space.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Consumer side

// ReadInto copies up to len(dst) buffered bytes and returns the count.
func (r *Ring) ReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	n = int(wr - rd)
	if n <= 0 {
		return 0
	}
	if len(dst) < n {
		n = len(dst)
	}

	rdIdx := rd & r.mask
	first := int(r.size() - rdIdx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n))

	if wr-rd == r.size() {
		select {
		case r.writable <- struct{}{}:
		default:
		}
	}
	return n
}

// Buffered and Read make the consumer side look like a UART: Read never
// blocks and returns 0, nil when the ring is empty.
func (r *Ring) Buffered() int { return r.Available() }

func (r *Ring) Read(p []byte) (int, error) { return r.ReadInto(p), nil }

func (r *Ring) Readable() <-chan struct{} { return r.readable }
func (r *Ring) Writable() <-chan struct{} { return r.writable }
