// Package alloc provides a family of hand-written memory allocators that manage
// raw byte buffers outside the Go heap.
//
// # Overview
//
// Every allocator implements the Allocator interface and hands out memory in
// two forms:
//
//   - Pointers (unsafe.Pointer): direct addresses, invalidated by any call that
//     can grow and therefore move the buffer.
//   - Handles (Handle): offsets from the buffer base, stable across growth.
//     Resolve a handle with Mem right before use.
//
// # Implementations
//
// Arena: region allocator
//
//   - Bump allocation inside a list of page-aligned regions
//   - New regions on demand, optionally capped by MaxRegions
//   - Snapshot/Rewind and Clear, no individual free
//   - Pointer API only
//
// Linear: single buffer bump allocator
//
//   - O(1) allocation and Clear
//   - Doubling growth, handles survive it
//   - Free is a no-op
//
// Stack: LIFO allocator
//
//   - 16-byte header before every block records the distance to the previous block
//   - Only the top block can be freed or resized in place
//
// FreeList: general allocator over one buffer
//
//   - Address-ordered free list stored inside the free blocks
//   - First-fit, block splitting, coalescing with both neighbours
//   - Optional growth (Resizable) and borrowed buffers
//
// General: passthrough to the Go heap
//
// # Usage Example
//
//	fl, err := alloc.NewFreeList(4096, alloc.FreeListOptions{Resizable: true})
//	if err != nil {
//	    return err
//	}
//	defer fl.Close()
//
//	h, err := fl.AllocHandle(256, 8)
//	if err != nil {
//	    return err
//	}
//	copy(alloc.Bytes(fl, h, 256), payload)
//
//	// Later, release the block
//	err = fl.FreeHandle(h)
//
// # Memory Rules
//
// Memory handed out by this package is not scanned by the garbage collector.
// Never store Go pointers (pointers, slices, strings, maps, interfaces) in it.
//
// # Failure Policy
//
//   - Allocator-local exhaustion returns ErrNoSpace.
//   - Invalid frees are logged, return ErrBadRef or ErrNotTop and change nothing.
//   - Failure to obtain or grow a backing buffer is fatal: the handler installed
//     with SetFatalHandler runs and the process exits by default.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. Callers must synchronize access
// externally or keep one allocator per goroutine.
package alloc
