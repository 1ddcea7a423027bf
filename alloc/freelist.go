package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/internal/logger"
)

// minAllocSize is the smallest remainder worth keeping as its own block when
// a free block is split. Smaller leftovers are absorbed by the allocation.
const minAllocSize = format.NodeSize

// FreeListOptions configures a FreeList.
type FreeListOptions struct {
	// Resizable lets an exhausted allocator grow its buffer instead of
	// returning ErrNoSpace.
	Resizable bool

	// Buffer, when non-nil, is used as the backing store instead of a buffer
	// owned by the allocator. It is never released by the allocator.
	Buffer []byte
}

// FreeBlock describes one free block, for diagnostics.
type FreeBlock struct {
	Offset int
	Size   int
}

// FreeList is a general-purpose allocator over a single buffer.
//
// Free blocks form a singly-linked list kept in increasing address order. The
// links are format.FreeNode records written at the start of each free block,
// and they hold offsets rather than addresses, so they stay valid when the
// buffer is moved by growth.
//
// Live blocks are preceded by a format.AllocHeader:
//
//	block start                 user address
//	    |                            |
//	    v                            v
//	    | padding ... | AllocHeader  | size bytes ...
//
// Allocation is first-fit. Free re-inserts the block in address order and
// merges it with the free blocks directly before and after it, so no two free
// blocks are ever adjacent at rest.
type FreeList struct {
	noCopy noCopy

	buf buffer

	// head is the offset of the lowest free block, or format.NoNode.
	head int

	// used counts bytes held by live blocks, padding included.
	used int

	resizable bool

	counters
}

// NewFreeList creates a FreeList. Without opts.Buffer the allocator owns a
// buffer of capacity bytes; with it, capacity is ignored.
func NewFreeList(capacity int, opts FreeListOptions) (*FreeList, error) {
	var b buffer
	switch {
	case opts.Buffer != nil:
		if len(opts.Buffer) < format.NodeSize {
			return nil, fmt.Errorf("%w: buffer of %d bytes is below the minimum %d",
				ErrBadSize, len(opts.Buffer), format.NodeSize)
		}
		b = borrowedBuffer(opts.Buffer)
	case capacity < format.NodeSize:
		return nil, fmt.Errorf("%w: capacity %d is below the minimum %d",
			ErrBadSize, capacity, format.NodeSize)
	default:
		b = newManagedBuffer(capacity)
	}

	fl := &FreeList{buf: b, resizable: opts.Resizable}
	fl.reset()
	return fl, nil
}

// Alloc allocates size bytes and returns a pointer valid until the next growth.
func (fl *FreeList) Alloc(size, alignment int) (unsafe.Pointer, error) {
	off, err := fl.alloc(size, alignment)
	if err != nil {
		return nil, err
	}
	return fl.buf.ptr(off), nil
}

// AllocHandle allocates size bytes and returns the block's offset.
func (fl *FreeList) AllocHandle(size, alignment int) (Handle, error) {
	off, err := fl.alloc(size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Mem resolves h against the current buffer.
func (fl *FreeList) Mem(h Handle) unsafe.Pointer {
	if !HandleInRange(fl.buf.len(), h) {
		return nil
	}
	return HandleToPtr(h, fl.buf.base())
}

// Realloc resizes the block at p. Shrinking keeps the block; growing moves it.
func (fl *FreeList) Realloc(p unsafe.Pointer, size, alignment int) (unsafe.Pointer, error) {
	if p == nil {
		return fl.Alloc(size, alignment)
	}
	off, ok := fl.buf.offsetOf(p)
	if !ok {
		fl.rejected++
		logger.Warn("freelist: realloc of foreign pointer", "ptr", p)
		return nil, ErrBadRef
	}
	newOff, err := fl.realloc(off, size, alignment)
	if err != nil {
		return nil, err
	}
	return fl.buf.ptr(newOff), nil
}

// ReallocHandle is Realloc by handle.
func (fl *FreeList) ReallocHandle(h Handle, size, alignment int) (Handle, error) {
	if h == NilHandle {
		return fl.AllocHandle(size, alignment)
	}
	if !HandleInRange(fl.buf.len(), h) {
		fl.rejected++
		logger.Warn("freelist: realloc of bad handle", "handle", uint64(h))
		return NilHandle, ErrBadRef
	}
	off, err := fl.realloc(int(h), size, alignment)
	if err != nil {
		return NilHandle, err
	}
	return Handle(off), nil
}

// Free returns the block at p to the free list.
func (fl *FreeList) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	off, ok := fl.buf.offsetOf(p)
	if !ok {
		fl.rejected++
		logger.Warn("freelist: free of foreign pointer", "ptr", p)
		return ErrBadRef
	}
	return fl.free(off)
}

// FreeHandle returns the block behind h to the free list.
func (fl *FreeList) FreeHandle(h Handle) error {
	if h == NilHandle {
		return nil
	}
	if !HandleInRange(fl.buf.len(), h) {
		fl.rejected++
		logger.Warn("freelist: free of bad handle", "handle", uint64(h))
		return ErrBadRef
	}
	return fl.free(int(h))
}

// Clear frees every block at once: the whole buffer becomes one free block.
func (fl *FreeList) Clear() {
	fl.reset()
}

// Resize grows the buffer to at least newCapacity bytes. The added space is
// appended to the free list, merged with the last free block when that block
// ends at the old capacity. Shrinking is not supported; smaller values are
// ignored. Pointers obtained before the call may be invalid afterwards.
func (fl *FreeList) Resize(newCapacity int) {
	old := fl.buf.len()
	if newCapacity <= old {
		return
	}
	// The new tail must be able to hold a node of its own.
	newCapacity = max(newCapacity, old+format.NodeSize)
	fl.buf.grow("freelist", newCapacity)
	fl.grows++

	added := fl.buf.len() - old
	tail := format.NoNode
	for cur := fl.head; cur != format.NoNode; cur = format.ReadFreeNode(fl.buf.data, cur).Next {
		tail = cur
	}

	switch {
	case tail == format.NoNode:
		// Every byte was in use: the new space is the only free block.
		format.PutFreeNode(fl.buf.data, old, format.FreeNode{Next: format.NoNode, Size: added})
		fl.head = old
	case tail+format.ReadFreeNode(fl.buf.data, tail).Size == old:
		n := format.ReadFreeNode(fl.buf.data, tail)
		format.PutNodeSize(fl.buf.data, tail, n.Size+added)
	default:
		format.PutFreeNode(fl.buf.data, old, format.FreeNode{Next: format.NoNode, Size: added})
		format.PutNodeNext(fl.buf.data, tail, old)
	}

	if debug {
		fl.verify()
	}
}

// RemainSpace returns the sum of all free block sizes. It walks the free list.
func (fl *FreeList) RemainSpace() int {
	total := 0
	for cur := fl.head; cur != format.NoNode; {
		n := format.ReadFreeNode(fl.buf.data, cur)
		total += n.Size
		cur = n.Next
	}
	return total
}

// FreeNodes returns the free list in address order.
func (fl *FreeList) FreeNodes() []FreeBlock {
	var blocks []FreeBlock
	for cur := fl.head; cur != format.NoNode; {
		n := format.ReadFreeNode(fl.buf.data, cur)
		blocks = append(blocks, FreeBlock{Offset: cur, Size: n.Size})
		cur = n.Next
	}
	return blocks
}

// Used returns the bytes held by live blocks, padding and headers included.
func (fl *FreeList) Used() int { return fl.used }

// Capacity returns the size of the backing buffer.
func (fl *FreeList) Capacity() int { return fl.buf.len() }

// Resizable reports whether exhaustion triggers growth.
func (fl *FreeList) Resizable() bool { return fl.resizable }

// Stats returns a snapshot of the allocator's accounting.
func (fl *FreeList) Stats() Stats {
	s := Stats{Kind: "freelist", Capacity: fl.buf.len(), Used: fl.used}
	fl.counters.fill(&s)
	return s
}

// Close releases the buffer if the allocator owns it.
func (fl *FreeList) Close() {
	fl.buf.release()
	fl.head = format.NoNode
	fl.used = 0
}

func (fl *FreeList) reset() {
	fl.used = 0
	if fl.buf.len() < format.NodeSize {
		fl.head = format.NoNode
		return
	}
	fl.head = 0
	format.PutFreeNode(fl.buf.data, 0, format.FreeNode{Next: format.NoNode, Size: fl.buf.len()})
}

func (fl *FreeList) alloc(size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	if fl.buf.closed() {
		return 0, ErrClosed
	}
	// Every block must be able to host a node once it is freed.
	size = max(size, format.NodeSize)

	off, ok := fl.allocBlock(size, align)
	if !ok && fl.resizable {
		fl.Resize(fl.growTarget(size, align))
		off, ok = fl.allocBlock(size, align)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes (align %d), %d bytes free",
			ErrNoSpace, size, align, fl.RemainSpace())
	}
	fl.allocs++
	if debug {
		fl.verify()
	}
	return off, nil
}

// growTarget doubles the capacity, or more when a single request needs it.
// The extra room covers the worst-case padding and a trailing node.
func (fl *FreeList) growTarget(size int, align uintptr) int {
	need, ok := buf.AddOverflowSafe(fl.buf.len(), size+int(align)+format.AllocHeaderSize+format.NodeSize)
	if !ok {
		fatal("freelist: grow for %d bytes overflows", size)
	}
	return max(2*fl.buf.len(), need)
}

// allocBlock carves a block out of the first free block that fits.
func (fl *FreeList) allocBlock(size int, align uintptr) (int, bool) {
	prev := format.NoNode
	for cur := fl.head; cur != format.NoNode; {
		n := format.ReadFreeNode(fl.buf.data, cur)
		pad := int(PaddingWithHeader(fl.buf.addr(cur), align, format.AllocHeaderSize))
		if required, ok := buf.AddOverflowSafe(pad, size); ok && n.Size >= required {
			return fl.carve(prev, cur, n, pad, size), true
		}
		prev, cur = cur, n.Next
	}
	return 0, false
}

// carve turns the free block at cur into a live block and returns the user offset.
func (fl *FreeList) carve(prev, cur int, n format.FreeNode, pad, size int) int {
	required := pad + size
	next := n.Next
	if remaining := n.Size - required; remaining > minAllocSize+format.NodeSize {
		split := cur + required
		format.PutFreeNode(fl.buf.data, split, format.FreeNode{Next: n.Next, Size: remaining})
		next = split
	} else {
		size += remaining
	}
	fl.link(prev, next)

	off := cur + pad
	format.PutAllocHeader(fl.buf.data, off-format.AllocHeaderSize, format.AllocHeader{
		Size:    size,
		Padding: pad,
	})
	fl.used += pad + size
	return off
}

// link points prev (or head) at next.
func (fl *FreeList) link(prev, next int) {
	if prev == format.NoNode {
		fl.head = next
		return
	}
	format.PutNodeNext(fl.buf.data, prev, next)
}

// header validates and decodes the allocation header of the block at off.
func (fl *FreeList) header(off int) (format.AllocHeader, bool) {
	if off < format.AllocHeaderSize || off >= fl.buf.len() {
		return format.AllocHeader{}, false
	}
	h := format.ReadAllocHeader(fl.buf.data, off-format.AllocHeaderSize)
	if h.Padding < format.AllocHeaderSize || h.Padding > off {
		return format.AllocHeader{}, false
	}
	if !buf.Fits(fl.buf.len(), off-h.Padding, h.Footprint()) {
		return format.AllocHeader{}, false
	}
	return h, true
}

func (fl *FreeList) free(off int) error {
	h, ok := fl.header(off)
	if !ok {
		fl.rejected++
		logger.Warn("freelist: free of invalid block", "offset", off, "capacity", fl.buf.len())
		return ErrBadRef
	}
	start, size := off-h.Padding, h.Footprint()
	prev, cur, prevSize, ok := fl.neighbours(start, size)
	if !ok {
		fl.rejected++
		logger.Warn("freelist: double free", "offset", off)
		return ErrBadRef
	}

	format.PutFreeNode(fl.buf.data, start, format.FreeNode{Next: cur, Size: size})
	fl.link(prev, start)
	fl.used -= size
	fl.frees++

	// Merge with the following block.
	if cur != format.NoNode && start+size == cur {
		n := format.ReadFreeNode(fl.buf.data, cur)
		size += n.Size
		format.PutFreeNode(fl.buf.data, start, format.FreeNode{Next: n.Next, Size: size})
	}
	// Merge with the preceding block.
	if prev != format.NoNode && prev+prevSize == start {
		n := format.ReadFreeNode(fl.buf.data, start)
		format.PutFreeNode(fl.buf.data, prev, format.FreeNode{Next: n.Next, Size: prevSize + n.Size})
	}

	if debug {
		fl.verify()
	}
	return nil
}

// neighbours finds the free blocks around [start, start+size) and the size of
// the preceding one. It reports false when the range overlaps a free block,
// which means it was already freed or never allocated.
func (fl *FreeList) neighbours(start, size int) (prev, cur, prevSize int, ok bool) {
	prev, cur = format.NoNode, fl.head
	for cur != format.NoNode && cur < start {
		prev, cur = cur, format.ReadFreeNode(fl.buf.data, cur).Next
	}
	if prev != format.NoNode {
		prevSize = format.ReadFreeNode(fl.buf.data, prev).Size
		if prev+prevSize > start {
			return prev, cur, prevSize, false
		}
	}
	if cur != format.NoNode && start+size > cur {
		return prev, cur, prevSize, false
	}
	return prev, cur, prevSize, true
}

func (fl *FreeList) realloc(off, size, alignment int) (int, error) {
	align, err := checkRequest(size, alignment)
	if err != nil {
		return 0, err
	}
	h, ok := fl.header(off)
	if ok {
		_, _, _, ok = fl.neighbours(off-h.Padding, h.Footprint())
	}
	if !ok {
		fl.rejected++
		logger.Warn("freelist: realloc of invalid block", "offset", off)
		return 0, ErrBadRef
	}
	if size <= h.Size && Padding(fl.buf.addr(off), align) == 0 {
		return off, nil
	}

	newOff, err := fl.alloc(size, alignment)
	if err != nil {
		return 0, err
	}
	n := min(size, h.Size)
	copy(fl.buf.data[newOff:newOff+n], fl.buf.data[off:off+n])
	if err := fl.free(off); err != nil {
		return 0, err
	}
	return newOff, nil
}

// verify panics when the free list breaks its invariants. Only called in
// memdebug builds.
func (fl *FreeList) verify() {
	free := 0
	end := -1
	for cur := fl.head; cur != format.NoNode; {
		n := format.ReadFreeNode(fl.buf.data, cur)
		if cur <= end {
			panic(fmt.Sprintf("freelist: node %d not after previous end %d", cur, end))
		}
		if cur == end+1 && end >= 0 {
			panic(fmt.Sprintf("freelist: node %d adjacent to previous node", cur))
		}
		if n.Size < format.NodeSize || cur+n.Size > fl.buf.len() {
			panic(fmt.Sprintf("freelist: node %d has bad size %d", cur, n.Size))
		}
		free += n.Size
		end = cur + n.Size - 1
		cur = n.Next
	}
	if free+fl.used != fl.buf.len() {
		panic(fmt.Sprintf("freelist: free %d + used %d != capacity %d", free, fl.used, fl.buf.len()))
	}
}

var _ Allocator = (*FreeList)(nil)
