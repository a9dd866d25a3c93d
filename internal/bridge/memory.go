package bridge

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// Allocator provides memory that outlives the Go call which produced it.
// The C library installs one backed by malloc/free; tests use HeapAllocator.
type Allocator interface {
	Malloc(n uint64) unsafe.Pointer
	Free(p unsafe.Pointer)
}

// HeapAllocator hands out Go heap memory. The ledger keeps every live
// pointer reachable, so the collector never reclaims it early.
type HeapAllocator struct{}

// Malloc returns n zeroed bytes.
func (HeapAllocator) Malloc(n uint64) unsafe.Pointer {
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	return unsafe.Pointer(&buf[0])
}

// Free is a no-op; the memory is collected once the ledger drops it.
func (HeapAllocator) Free(unsafe.Pointer) {}

// Buffer describes a producer-owned byte allocation. The zero value is the
// absent sentinel.
type Buffer struct {
	Data unsafe.Pointer
	Len  uint64
	Cap  uint64
}

// IsNull reports whether b is the absent sentinel.
func (b Buffer) IsNull() bool {
	return b.Data == nil
}

// Bytes returns a view of the allocation. The view is only valid until the
// buffer is freed.
func (b Buffer) Bytes() []byte {
	if b.Data == nil || b.Len == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(b.Data), b.Len)
}

type allocKind int

const (
	kindBuffer allocKind = iota
	kindString
)

func (k allocKind) String() string {
	if k == kindString {
		return "string"
	}
	return "buffer"
}

type allocation struct {
	kind allocKind
	len  uint64
	cap  uint64
}

// Ledger records every allocation handed across the boundary so a release
// can be checked against the fields it was produced with.
type Ledger struct {
	mu    sync.Mutex
	alloc Allocator
	live  map[unsafe.Pointer]allocation
}

// NewLedger creates a ledger over alloc. A nil alloc uses HeapAllocator.
func NewLedger(alloc Allocator) *Ledger {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	return &Ledger{
		alloc: alloc,
		live:  make(map[unsafe.Pointer]allocation),
	}
}

// NewBuffer copies data into a fresh allocation. An empty slice still gets a
// one-byte allocation (Len 0, Cap 1) so success never looks like the absent
// sentinel.
func (l *Ledger) NewBuffer(data []byte) (Buffer, error) {
	capacity := uint64(len(data))
	if capacity == 0 {
		capacity = 1
	}
	p := l.alloc.Malloc(capacity)
	if p == nil {
		return Buffer{}, fmt.Errorf("failed to allocate %d bytes", capacity)
	}
	copy(unsafe.Slice((*byte)(p), capacity), data)

	b := Buffer{Data: p, Len: uint64(len(data)), Cap: capacity}
	l.track(p, allocation{kind: kindBuffer, len: b.Len, cap: b.Cap})
	return b, nil
}

// NewString copies s into a NUL-terminated allocation. Strings with an
// interior NUL cannot be represented and are rejected.
func (l *Ledger) NewString(s string) (unsafe.Pointer, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("string contains NUL byte")
	}
	n := uint64(len(s)) + 1
	p := l.alloc.Malloc(n)
	if p == nil {
		return nil, fmt.Errorf("failed to allocate %d bytes", n)
	}
	dst := unsafe.Slice((*byte)(p), n)
	copy(dst, s)
	dst[n-1] = 0

	l.track(p, allocation{kind: kindString, len: uint64(len(s)), cap: n})
	return p, nil
}

// FreeBuffer releases a buffer produced by NewBuffer. The zero sentinel is a
// no-op. Unknown pointers and altered fields are reported and left alone.
func (l *Ledger) FreeBuffer(b Buffer) error {
	if b.Data == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.live[b.Data]
	switch {
	case !ok:
		return fmt.Errorf("free of unknown buffer %p", b.Data)
	case a.kind != kindBuffer:
		return fmt.Errorf("free of %s %p as buffer", a.kind, b.Data)
	case a.len != b.Len || a.cap != b.Cap:
		return fmt.Errorf("buffer %p released with len=%d cap=%d, allocated with len=%d cap=%d",
			b.Data, b.Len, b.Cap, a.len, a.cap)
	}
	delete(l.live, b.Data)
	l.alloc.Free(b.Data)
	return nil
}

// FreeString releases a string produced by NewString. A nil pointer is a
// no-op.
func (l *Ledger) FreeString(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.live[p]
	switch {
	case !ok:
		return fmt.Errorf("free of unknown string %p", p)
	case a.kind != kindString:
		return fmt.Errorf("free of %s %p as string", a.kind, p)
	}
	delete(l.live, p)
	l.alloc.Free(p)
	return nil
}

// Outstanding returns the number of live allocations.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

func (l *Ledger) track(p unsafe.Pointer, a allocation) {
	l.mu.Lock()
	l.live[p] = a
	l.mu.Unlock()
}

// GoString reads back a NUL-terminated string produced by NewString.
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
