package alloc

import (
	"fmt"
	"strconv"
	"unsafe"
)

// Handle refers to a block by its offset from the owning allocator's buffer
// base. General uses the block address instead.
type Handle uintptr

// NilHandle denotes "no allocation".
const NilHandle = ^Handle(0)

// DefaultAlignment is used when an alignment of 0 is requested.
const DefaultAlignment = 8

// MaxSize is the largest block or capacity any allocator accepts. It stays
// well below the address space so that size arithmetic cannot overflow.
const MaxSize = 1 << min(46, strconv.IntSize-2)

// Allocator is the contract shared by every allocator in this package.
//
// Implementations:
//   - Arena: region allocator, pointer API only
//   - Linear: bump allocator, Free is a no-op
//   - Stack: LIFO allocator
//   - FreeList: first-fit free-list allocator with coalescing
//   - General: Go heap passthrough
//
// Pointers returned by Alloc and Realloc are valid until the next call that
// can grow the allocator. Handles stay valid until the block is freed or the
// allocator is cleared.
type Allocator interface {
	// Alloc returns size bytes aligned to alignment.
	Alloc(size, alignment int) (unsafe.Pointer, error)

	// AllocHandle is Alloc returning a handle.
	AllocHandle(size, alignment int) (Handle, error)

	// Mem resolves a handle to the current address of its block, or nil.
	Mem(h Handle) unsafe.Pointer

	// Realloc resizes the block at p, moving it when needed. A nil p allocates.
	Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error)

	// ReallocHandle is Realloc by handle. NilHandle allocates.
	ReallocHandle(h Handle, size, alignment int) (Handle, error)

	// Free releases the block at p. A nil p is a no-op.
	Free(p unsafe.Pointer) error

	// FreeHandle releases the block behind h. NilHandle is a no-op.
	FreeHandle(h Handle) error

	// Clear drops every allocation at once, keeping the memory.
	Clear()
}

// StatsReporter is implemented by every allocator in this package.
type StatsReporter interface {
	Stats() Stats
}

// noCopy marks allocators as non-copyable for go vet's copylocks check.
// Each allocator exclusively owns its buffer; pass it by pointer.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// alignmentOf validates a requested alignment.
func alignmentOf(alignment int) (uintptr, error) {
	if alignment == 0 {
		return DefaultAlignment, nil
	}
	if alignment < 0 || !IsPowerOfTwo(uintptr(alignment)) {
		return 0, fmt.Errorf("%w: %d", ErrBadAlignment, alignment)
	}
	return uintptr(alignment), nil
}

// checkSize rejects negative sizes and sizes above MaxSize.
func checkSize(size int) error {
	if size < 0 || size > MaxSize {
		return fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	return nil
}

// checkRequest validates size and alignment together.
func checkRequest(size, alignment int) (uintptr, error) {
	if err := checkSize(size); err != nil {
		return 0, err
	}
	return alignmentOf(alignment)
}
