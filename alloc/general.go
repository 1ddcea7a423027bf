package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/internal/logger"
)

// General forwards to the Go heap. It exists so that code written against
// Allocator can run without a dedicated buffer.
//
// Live blocks are tracked in a map keyed by their aligned address, which keeps
// them reachable for the garbage collector until freed. Handles are the block
// addresses, so they never need resolving against a base.
type General struct {
	noCopy noCopy

	blocks map[uintptr]generalBlock
	used   int

	counters
}

type generalBlock struct {
	data []byte
	off  int // aligned start within data
	size int
}

// NewGeneral creates a General allocator.
func NewGeneral() *General {
	return &General{blocks: make(map[uintptr]generalBlock)}
}

// Alloc allocates size bytes from the Go heap.
func (g *General) Alloc(size, alignment int) (unsafe.Pointer, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return nil, err
	}
	if g.blocks == nil {
		return nil, ErrClosed
	}
	// The extra bytes leave room to align and keep zero-size blocks distinct.
	n, ok := buf.AddOverflowSafe(size, int(align))
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
	}
	data := make([]byte, n)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	off := int(Padding(base, align))
	p := unsafe.Pointer(&data[off])

	g.blocks[uintptr(p)] = generalBlock{data: data, off: off, size: size}
	g.used += size
	g.allocs++
	return p, nil
}

// AllocHandle is Alloc returning the block address as a handle.
func (g *General) AllocHandle(size, alignment int) (Handle, error) {
	p, err := g.Alloc(size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(uintptr(p)), nil
}

// Mem returns the address behind h, or nil when h is not a live block.
func (g *General) Mem(h Handle) unsafe.Pointer {
	b, ok := g.blocks[uintptr(h)]
	if !ok {
		return nil
	}
	return unsafe.Pointer(&b.data[b.off])
}

// Realloc allocates a new block, copies the common prefix and frees the old one.
// Shrinking keeps the block.
func (g *General) Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error) {
	if p == nil {
		return g.Alloc(size, alignment)
	}
	return g.realloc(uintptr(p), size, alignment)
}

// ReallocHandle is Realloc by handle.
func (g *General) ReallocHandle(h Handle, size, alignment int) (Handle, error) {
	if h == NilHandle {
		return g.AllocHandle(size, alignment)
	}
	p, err := g.realloc(uintptr(h), size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(uintptr(p)), nil
}

// Free drops the block at p. Unknown pointers are refused with ErrBadRef.
func (g *General) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	return g.free(uintptr(p))
}

// FreeHandle drops the block behind h.
func (g *General) FreeHandle(h Handle) error {
	if h == NilHandle {
		return nil
	}
	return g.free(uintptr(h))
}

// Clear is a no-op: General has no bulk reclaim. Use Close to drop every block.
func (g *General) Clear() {}

// Live returns the number of blocks not yet freed.
func (g *General) Live() int { return len(g.blocks) }

// Stats returns a snapshot of the allocator's accounting. Capacity equals
// Used since every block is sized to its request.
func (g *General) Stats() Stats {
	s := Stats{Kind: "general", Capacity: g.used, Used: g.used}
	g.counters.fill(&s)
	return s
}

// Close drops every block, leaving them to the garbage collector.
func (g *General) Close() {
	g.blocks = nil
	g.used = 0
}

func (g *General) realloc(addr uintptr, size, alignment int) (unsafe.Pointer, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return nil, err
	}
	old, ok := g.blocks[addr]
	if !ok {
		g.rejected++
		logger.Warn("general: realloc of unknown block", "addr", fmt.Sprintf("%#x", addr))
		return nil, ErrBadRef
	}
	p := unsafe.Pointer(&old.data[old.off])
	if size <= old.size && Padding(addr, align) == 0 {
		g.used -= old.size - size
		old.size = size
		g.blocks[addr] = old
		return p, nil
	}

	np, err := g.Alloc(size, alignment)
	if err != nil {
		return nil, err
	}
	n := min(size, old.size)
	copy(unsafe.Slice((*byte)(np), n), old.data[old.off:old.off+n])
	if err := g.free(addr); err != nil {
		return nil, fmt.Errorf("free moved block: %w", err)
	}
	return np, nil
}

func (g *General) free(addr uintptr) error {
	b, ok := g.blocks[addr]
	if !ok {
		g.rejected++
		logger.Warn("general: free of unknown block", "addr", fmt.Sprintf("%#x", addr))
		return ErrBadRef
	}
	delete(g.blocks, addr)
	g.used -= b.size
	g.frees++
	return nil
}

var _ Allocator = (*General)(nil)
