package format

// FreeNode is the decoded form of a free-list node.
type FreeNode struct {
	Next int // offset of the next free node, NoNode at the tail
	Size int // total bytes of the free block, node included
}

// ReadFreeNode decodes the free-list node stored at off.
func ReadFreeNode(b []byte, off int) FreeNode {
	n := FreeNode{Size: ReadInt(b, off+NodeSizeOffset)}
	if next := ReadU64(b, off+NodeNextOffset); next == noNodeRaw {
		n.Next = NoNode
	} else {
		n.Next = int(next)
	}
	return n
}

// PutFreeNode encodes n at off.
func PutFreeNode(b []byte, off int, n FreeNode) {
	PutNodeNext(b, off, n.Next)
	PutInt(b, off+NodeSizeOffset, n.Size)
}

// PutNodeNext rewrites only the next link of the node at off.
func PutNodeNext(b []byte, off, next int) {
	if next == NoNode {
		PutU64(b, off+NodeNextOffset, noNodeRaw)
		return
	}
	PutInt(b, off+NodeNextOffset, next)
}

// PutNodeSize rewrites only the size of the node at off.
func PutNodeSize(b []byte, off, size int) {
	PutInt(b, off+NodeSizeOffset, size)
}

// AllocHeader is the decoded form of a free-list allocation header.
type AllocHeader struct {
	Size    int
	Padding int
}

// Footprint is the number of bytes the block occupies, padding included.
func (h AllocHeader) Footprint() int {
	return h.Padding + h.Size
}

// ReadAllocHeader decodes the allocation header stored at off.
func ReadAllocHeader(b []byte, off int) AllocHeader {
	return AllocHeader{
		Size:    ReadInt(b, off+AllocSizeOffset),
		Padding: ReadInt(b, off+AllocPaddingOffset),
	}
}

// PutAllocHeader encodes h at off.
func PutAllocHeader(b []byte, off int, h AllocHeader) {
	PutInt(b, off+AllocSizeOffset, h.Size)
	PutInt(b, off+AllocPaddingOffset, h.Padding)
}

// StackHeader is the decoded form of a stack allocation header.
type StackHeader struct {
	Diff    int
	Padding int
}

// ReadStackHeader decodes the stack header stored at off.
func ReadStackHeader(b []byte, off int) StackHeader {
	return StackHeader{
		Diff:    ReadInt(b, off+StackDiffOffset),
		Padding: ReadInt(b, off+StackPaddingOffset),
	}
}

// PutStackHeader encodes h at off.
func PutStackHeader(b []byte, off int, h StackHeader) {
	PutInt(b, off+StackDiffOffset, h.Diff)
	PutInt(b, off+StackPaddingOffset, h.Padding)
}
