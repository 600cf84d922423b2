// Package soa implements a small-object allocator: a slab pool for
// allocations at or below 32 bytes, with deallocation handed off to a
// single background goroutine so that freeing a buffer on the I/O
// thread never contends with a fast-path allocation on a publisher
// thread. The free list and its wakeup channel stand in for the usual
// ring buffer plus counting semaphore, and the slab bookkeeping sits
// behind a plain sync.Mutex since the critical section is only ever a
// pointer and size copy.
package soa

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cogu/apx-go/internal/apxerr"
)

// SmallObjectMaxSize is the largest allocation size handled by the slab
// pool; anything larger falls through to make([]byte, size).
const SmallObjectMaxSize = 32

// blocksPerSlab matches the original's uint8 block index: a slab holds
// at most 255 blocks so that a free-list "next" pointer fits in one byte
// (255 is reserved as the "no next" sentinel).
const blocksPerSlab = 255

const noNext = 255

// sizeClasses are the slab bucket sizes; an allocation is rounded up to
// the smallest class that fits it.
var sizeClasses = [...]int{4, 8, 16, 32}

func classFor(size int) (int, bool) {
	for _, c := range sizeClasses {
		if size <= c {
			return c, true
		}
	}
	return 0, false
}

// slab is one fixed-size block arena with an intrusive free list: each
// free block's first byte stores the index of the next free block (or
// noNext), exactly as the original C allocator encodes its free list
// inside the free blocks themselves.
type slab struct {
	buf       []byte
	blockSize int
	freeHead  int
	numFree   int
}

func newSlab(blockSize int) *slab {
	s := &slab{
		buf:       make([]byte, blockSize*blocksPerSlab),
		blockSize: blockSize,
		freeHead:  0,
		numFree:   blocksPerSlab,
	}
	for i := 0; i < blocksPerSlab; i++ {
		next := i + 1
		if next == blocksPerSlab {
			next = noNext
		}
		s.buf[i*blockSize] = byte(next)
	}
	return s
}

func (s *slab) full() bool { return s.freeHead == noNext }

func (s *slab) alloc() []byte {
	if s.full() {
		return nil
	}
	idx := s.freeHead
	block := s.buf[idx*s.blockSize : idx*s.blockSize+s.blockSize]
	s.freeHead = int(block[0])
	s.numFree--
	return block
}

// owns reports whether block's backing array lies within this slab's buffer.
func (s *slab) owns(block []byte) bool {
	if len(s.buf) == 0 || len(block) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&s.buf[0]))
	end := base + uintptr(len(s.buf))
	p := uintptr(unsafe.Pointer(&block[0]))
	return p >= base && p < end
}

func (s *slab) free(block []byte) {
	base := uintptr(unsafe.Pointer(&s.buf[0]))
	p := uintptr(unsafe.Pointer(&block[0]))
	idx := int((p - base) / uintptr(s.blockSize))
	s.buf[idx*s.blockSize] = byte(s.freeHead)
	s.freeHead = idx
	s.numFree++
}

type sizeClassPool struct {
	blockSize  int
	slabs      []*slab
	lastFreed  *slab // cached "dealloc_slab" consulted before a linear scan
}

func (p *sizeClassPool) alloc() []byte {
	for _, s := range p.slabs {
		if !s.full() {
			return s.alloc()
		}
	}
	s := newSlab(p.blockSize)
	p.slabs = append(p.slabs, s)
	return s.alloc()
}

func (p *sizeClassPool) free(block []byte) bool {
	if p.lastFreed != nil && p.lastFreed.owns(block) {
		p.lastFreed.free(block)
		return true
	}
	for _, s := range p.slabs {
		if s.owns(block) {
			s.free(block)
			p.lastFreed = s
			return true
		}
	}
	return false
}

type freeRequest struct {
	ptr  []byte
	size int
}

// Allocator is the process-wide small-object allocator plus its
// background reclamation goroutine. The zero value is not usable; build
// one with New.
type Allocator struct {
	mu      sync.Mutex
	classes map[int]*sizeClassPool

	queue   chan freeRequest
	wg      sync.WaitGroup
	running bool
}

// Option configures an Allocator at construction.
type Option func(*Allocator)

// WithQueueDepth bounds the reclamation ring buffer's capacity (how many
// pending frees may queue up before Free blocks the caller).
func WithQueueDepth(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.queue = make(chan freeRequest, n)
		}
	}
}

// New builds an Allocator. Call Start to launch the reclamation goroutine.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		classes: make(map[int]*sizeClassPool),
		queue:   make(chan freeRequest, 256),
	}
	for _, o := range opts {
		o(a)
	}
	for _, c := range sizeClasses {
		a.classes[c] = &sizeClassPool{blockSize: c}
	}
	return a
}

// Start launches the background reclamation goroutine. Safe to call once;
// a second call is a no-op.
func (a *Allocator) Start() {
	a.mu.Lock()
	already := a.running
	a.running = true
	a.mu.Unlock()
	if already {
		return
	}
	a.wg.Add(1)
	go a.reclaimLoop()
}

// Stop enqueues the shutdown sentinel (a freeRequest with a nil ptr) and
// waits for the reclamation goroutine to drain and exit.
func (a *Allocator) Stop() {
	a.queue <- freeRequest{}
	a.wg.Wait()
}

func (a *Allocator) reclaimLoop() {
	defer a.wg.Done()
	for req := range a.queue {
		if req.ptr == nil {
			return
		}
		a.reclaim(req.ptr, req.size)
	}
}

func (a *Allocator) reclaim(ptr []byte, size int) {
	if size > SmallObjectMaxSize {
		return // system-allocated; nothing to return to a slab
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	class, ok := classFor(size)
	if !ok {
		return
	}
	pool := a.classes[class]
	if !pool.free(ptr) {
		// Freed a buffer this allocator never handed out; this is a caller
		// bug, not a transient condition, so it is dropped rather than panicking
		// the reclamation goroutine.
		return
	}
}

// Alloc returns a size-byte buffer. Sizes at or below SmallObjectMaxSize
// come from the slab pool; larger sizes fall through to the system
// allocator (a plain make).
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, apxerr.New("soa.Alloc", apxerr.InvalidArgument)
	}
	if size > SmallObjectMaxSize {
		return make([]byte, size), nil
	}
	class, ok := classFor(size)
	if !ok {
		return make([]byte, size), nil
	}
	a.mu.Lock()
	block := a.classes[class].alloc()
	a.mu.Unlock()
	if block == nil {
		return nil, apxerr.New("soa.Alloc", apxerr.MemError)
	}
	return block[:size], nil
}

// Free hands ptr back to the allocator. The call enqueues the request
// for the background goroutine and returns once it is queued, blocking
// while the reclamation queue is full; it never performs the actual
// slab bookkeeping on the caller's goroutine.
func (a *Allocator) Free(ptr []byte, size int) {
	if ptr == nil {
		panic(fmt.Sprintf("soa.Free: nil ptr is the shutdown sentinel, not a valid free (size=%d)", size))
	}
	a.queue <- freeRequest{ptr: ptr, size: size}
}
