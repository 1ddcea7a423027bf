package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/internal/logger"
	"github.com/joshuapare/memkit/internal/pages"
)

// Stack is a LIFO allocator over a single buffer.
//
// Every block is preceded by a format.StackHeader holding the distance back
// to the previous block's start (diff) and the block's padding. The header
// chain lets the top block be freed or resized in O(1):
//
//	prevCount                      count
//	    |                            |
//	    v                            v
//	... | pad | hdr | block          | free space ...
//
// Frees of any other block are refused and leave the stack untouched.
type Stack struct {
	noCopy noCopy

	buf buffer

	// count is the end of the top block; prevCount is its start.
	// Both are 0 when the stack is empty.
	count     int
	prevCount int

	counters
}

// NewStack creates a Stack allocator owning a buffer of capacity bytes.
// A non-positive capacity selects one page.
func NewStack(capacity int) *Stack {
	if capacity <= 0 {
		capacity = pages.Size()
	}
	return &Stack{buf: newManagedBuffer(capacity)}
}

// NewStackWithBuffer creates a Stack allocator over a caller-owned buffer.
// The buffer is never released by the allocator.
func NewStackWithBuffer(b []byte) *Stack {
	if len(b) == 0 {
		return NewStack(0)
	}
	return &Stack{buf: borrowedBuffer(b)}
}

// Alloc pushes a block of size bytes and returns its address.
func (s *Stack) Alloc(size, alignment int) (unsafe.Pointer, error) {
	off, err := s.alloc(size, alignment)
	if err != nil {
		return nil, err
	}
	return s.buf.ptr(off), nil
}

// AllocHandle pushes a block of size bytes and returns its offset.
func (s *Stack) AllocHandle(size, alignment int) (Handle, error) {
	off, err := s.alloc(size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Mem resolves h against the current buffer.
func (s *Stack) Mem(h Handle) unsafe.Pointer {
	if !HandleInRange(s.buf.len(), h) {
		return nil
	}
	return HandleToPtr(h, s.buf.base())
}

// Realloc resizes the block at p. The top block is resized in place; any
// other block is copied into a new block pushed on top, and the old one stays
// allocated until everything above it is popped.
func (s *Stack) Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error) {
	if p == nil {
		return s.Alloc(size, alignment)
	}
	off, ok := s.buf.offsetOf(p)
	if !ok {
		s.rejected++
		logger.Warn("stack: realloc of foreign pointer", "ptr", p)
		return nil, ErrBadRef
	}
	oldBase := s.buf.base()
	newOff, err := s.realloc(off, size, alignment)
	if err != nil {
		return nil, err
	}
	if newOff == off {
		return Rebase(p, oldBase, s.buf.base()), nil
	}
	return s.buf.ptr(newOff), nil
}

// ReallocHandle is Realloc by handle.
func (s *Stack) ReallocHandle(h Handle, size, alignment int) (Handle, error) {
	if h == NilHandle {
		return s.AllocHandle(size, alignment)
	}
	if !HandleInRange(s.buf.len(), h) {
		s.rejected++
		logger.Warn("stack: realloc of bad handle", "handle", uint64(h))
		return NilHandle, ErrBadRef
	}
	off, err := s.realloc(int(h), size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Free pops the block at p if it is the top of the stack.
func (s *Stack) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	off, ok := s.buf.offsetOf(p)
	if !ok {
		s.rejected++
		logger.Warn("stack: free of foreign pointer", "ptr", p)
		return ErrBadRef
	}
	return s.free(off)
}

// FreeHandle pops the block behind h if it is the top of the stack.
func (s *Stack) FreeHandle(h Handle) error {
	if h == NilHandle {
		return nil
	}
	if !HandleInRange(s.buf.len(), h) {
		s.rejected++
		logger.Warn("stack: free of bad handle", "handle", uint64(h))
		return ErrBadRef
	}
	return s.free(int(h))
}

// Clear empties the stack in O(1).
func (s *Stack) Clear() {
	s.count = 0
	s.prevCount = 0
}

// Count returns the end offset of the top block.
func (s *Stack) Count() int { return s.count }

// PrevCount returns the start offset of the top block.
func (s *Stack) PrevCount() int { return s.prevCount }

// Capacity returns the size of the backing buffer.
func (s *Stack) Capacity() int { return s.buf.len() }

// Stats returns a snapshot of the allocator's accounting.
func (s *Stack) Stats() Stats {
	st := Stats{Kind: "stack", Capacity: s.buf.len(), Used: s.count}
	s.counters.fill(&st)
	return st
}

// Close releases the buffer if the allocator owns it.
func (s *Stack) Close() {
	s.buf.release()
	s.Clear()
}

func (s *Stack) alloc(size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	if s.buf.closed() {
		return 0, ErrClosed
	}
	var pad, end int
	for {
		pad = int(PaddingWithHeader(s.buf.addr(s.count), align, format.StackHeaderSize))
		var ok bool
		end, ok = buf.AddOverflowSafe(s.count, pad+size)
		if !ok {
			return 0, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
		}
		if end <= s.buf.len() {
			break
		}
		s.grow(end)
	}

	start := s.count
	off := start + pad
	format.PutStackHeader(s.buf.data, off-format.StackHeaderSize, format.StackHeader{
		Diff:    start - s.prevCount,
		Padding: pad,
	})
	s.prevCount = start
	s.count = end
	s.allocs++
	return off, nil
}

// top decodes the header of the block at off and reports whether it is the
// top of the stack.
func (s *Stack) top(off int) (format.StackHeader, bool) {
	if off < format.StackHeaderSize || off > s.count {
		return format.StackHeader{}, false
	}
	h := format.ReadStackHeader(s.buf.data, off-format.StackHeaderSize)
	start := off - h.Padding
	if h.Padding < format.StackHeaderSize || start != s.prevCount || h.Diff > start {
		return format.StackHeader{}, false
	}
	return h, true
}

func (s *Stack) free(off int) error {
	if off < format.StackHeaderSize || off > s.count {
		s.rejected++
		logger.Warn("stack: free outside live range", "offset", off, "count", s.count)
		return ErrBadRef
	}
	h, ok := s.top(off)
	if !ok {
		s.rejected++
		logger.Warn("stack: free is not top of stack", "offset", off, "top", s.prevCount)
		return ErrNotTop
	}
	start := off - h.Padding
	s.count = start
	s.prevCount = start - h.Diff
	s.frees++
	return nil
}

func (s *Stack) realloc(off, size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	if _, ok := s.top(off); ok && Padding(s.buf.addr(off), align) == 0 {
		end, ok := buf.AddOverflowSafe(off, size)
		if !ok {
			return 0, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
		}
		if end > s.buf.len() {
			s.grow(end)
		}
		if Padding(s.buf.addr(off), align) == 0 {
			s.count = end
			return off, nil
		}
	}

	// Not the top: the LIFO rule forbids reclaiming the old block, so the
	// free is skipped and the bytes are copied into a fresh block. The copy
	// runs to the stack top, so the new block's tail past the old size is
	// unspecified.
	avail := max(s.count-off, 0)
	newOff, err := s.alloc(size, alignment)
	if err != nil {
		return 0, err
	}
	n := min(size, avail)
	copy(s.buf.data[newOff:newOff+n], s.buf.data[off:off+n])
	return newOff, nil
}

func (s *Stack) grow(need int) {
	s.buf.grow("stack", max(2*s.buf.len(), need))
	s.grows++
}

var _ Allocator = (*Stack)(nil)
