package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/internal/logger"
	"github.com/joshuapare/memkit/internal/pages"
)

// Linear is a bump allocator over a single buffer.
//
// Key characteristics:
//   - O(1) allocation: pad the cursor to the requested alignment and advance it
//   - No per-block metadata; Free is a no-op
//   - O(1) Clear that keeps the buffer
//   - Doubling growth; handles (offsets) survive it, pointers do not
type Linear struct {
	noCopy noCopy

	buf buffer

	// count is the write cursor: bytes used from the buffer start.
	count int

	// last is the offset of the most recent block, or -1. Only that block can
	// be resized in place.
	last int

	counters
}

// NewLinear creates a Linear allocator owning a buffer of capacity bytes.
// A non-positive capacity selects one page.
func NewLinear(capacity int) *Linear {
	if capacity <= 0 {
		capacity = pages.Size()
	}
	return &Linear{buf: newManagedBuffer(capacity), last: -1}
}

// NewLinearWithBuffer creates a Linear allocator over a caller-owned buffer.
// The buffer is never released by the allocator. If the allocator has to
// grow, it continues in a buffer of its own and b is left as is.
func NewLinearWithBuffer(b []byte) *Linear {
	if len(b) == 0 {
		return NewLinear(0)
	}
	return &Linear{buf: borrowedBuffer(b), last: -1}
}

// Alloc allocates size bytes and returns a pointer valid until the next growth.
func (l *Linear) Alloc(size, alignment int) (unsafe.Pointer, error) {
	off, err := l.alloc(size, alignment)
	if err != nil {
		return nil, err
	}
	return l.buf.ptr(off), nil
}

// AllocHandle allocates size bytes and returns the block's offset.
func (l *Linear) AllocHandle(size, alignment int) (Handle, error) {
	off, err := l.alloc(size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Mem resolves h against the current buffer.
func (l *Linear) Mem(h Handle) unsafe.Pointer {
	if !HandleInRange(l.buf.len(), h) {
		return nil
	}
	return HandleToPtr(h, l.buf.base())
}

// Realloc resizes the block at p. The most recent block is resized in place;
// any other block is copied into a new one.
func (l *Linear) Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error) {
	if p == nil {
		return l.Alloc(size, alignment)
	}
	off, ok := l.buf.offsetOf(p)
	if !ok || off > l.count {
		l.rejected++
		logger.Warn("linear: realloc of foreign pointer", "ptr", p)
		return nil, ErrBadRef
	}
	oldBase := l.buf.base()
	newOff, err := l.realloc(off, size, alignment)
	if err != nil {
		return nil, err
	}
	if newOff == off {
		// Same block, but growth may have moved the buffer.
		return Rebase(p, oldBase, l.buf.base()), nil
	}
	return l.buf.ptr(newOff), nil
}

// ReallocHandle is Realloc by handle.
func (l *Linear) ReallocHandle(h Handle, size, alignment int) (Handle, error) {
	if h == NilHandle {
		return l.AllocHandle(size, alignment)
	}
	if !HandleInRange(l.count+1, h) {
		l.rejected++
		logger.Warn("linear: realloc of bad handle", "handle", uint64(h))
		return NilHandle, ErrBadRef
	}
	off, err := l.realloc(int(h), size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Free is a no-op: a linear allocator only reclaims memory through Clear.
func (l *Linear) Free(p unsafe.Pointer) error {
	return nil
}

// FreeHandle is a no-op, see Free.
func (l *Linear) FreeHandle(h Handle) error {
	return nil
}

// Clear resets the write cursor in O(1). Every previous block is invalidated.
func (l *Linear) Clear() {
	l.count = 0
	l.last = -1
}

// Count returns the number of bytes used, padding included.
func (l *Linear) Count() int { return l.count }

// Capacity returns the size of the backing buffer.
func (l *Linear) Capacity() int { return l.buf.len() }

// Remaining returns the bytes left before the next growth.
func (l *Linear) Remaining() int { return l.buf.len() - l.count }

// Stats returns a snapshot of the allocator's accounting.
func (l *Linear) Stats() Stats {
	s := Stats{Kind: "linear", Capacity: l.buf.len(), Used: l.count}
	l.counters.fill(&s)
	return s
}

// Close releases the buffer if the allocator owns it.
func (l *Linear) Close() {
	l.buf.release()
	l.Clear()
}

func (l *Linear) alloc(size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	if l.buf.closed() {
		return 0, ErrClosed
	}
	for {
		pad := int(Padding(l.buf.addr(l.count), align))
		end, ok := buf.AddOverflowSafe(l.count, pad+size)
		if !ok {
			return 0, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
		}
		if end <= l.buf.len() {
			off := l.count + pad
			l.count = end
			l.last = off
			l.allocs++
			return off, nil
		}
		l.grow(end)
	}
}

func (l *Linear) realloc(off, size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	if off == l.last && Padding(l.buf.addr(off), align) == 0 {
		end, ok := buf.AddOverflowSafe(off, size)
		if !ok {
			return 0, fmt.Errorf("%w: %d bytes overflows", ErrBadSize, size)
		}
		if end > l.buf.len() {
			l.grow(end)
		}
		// Growth keeps page alignment, so the block is still aligned unless
		// a borrowed buffer with a weaker base alignment was replaced.
		if Padding(l.buf.addr(off), align) == 0 {
			l.count = end
			return off, nil
		}
	}

	// Bytes past the old block's end are whatever followed it, not zeroes.
	avail := max(l.count-off, 0)
	newOff, err := l.alloc(size, alignment)
	if err != nil {
		return 0, err
	}
	n := min(size, avail)
	copy(l.buf.data[newOff:newOff+n], l.buf.data[off:off+n])
	return newOff, nil
}

// grow doubles the buffer, or sizes it to exactly need when doubling is not enough.
func (l *Linear) grow(need int) {
	l.buf.grow("linear", max(2*l.buf.len(), need))
	l.grows++
}

var _ Allocator = (*Linear)(nil)
