// Package format describes the intrusive headers that allocators write into
// the buffers they manage. Every field is a little-endian uint64 so the layout
// is identical on all platforms and needs no alignment of its own.
package format

const (
	// FieldSize is the width of every header field.
	FieldSize = 8

	// Free-list node, stored at the first byte of each free block.
	// Layout:
	//   0x00  next  offset of the next free node, or NoNode
	//   0x08  size  total bytes of this free block
	NodeNextOffset = 0x00
	NodeSizeOffset = 0x08
	NodeSize       = 0x10

	// Free-list allocation header, stored immediately before a live block.
	// Layout:
	//   0x00  size     usable bytes of the block
	//   0x08  padding  bytes from the block start to the user address, header included
	AllocSizeOffset    = 0x00
	AllocPaddingOffset = 0x08
	AllocHeaderSize    = 0x10

	// Stack header, stored immediately before a live stack block.
	// Layout:
	//   0x00  diff     distance from the previous block's start to this block's start
	//   0x08  padding  bytes from the block start to the user address, header included
	StackDiffOffset    = 0x00
	StackPaddingOffset = 0x08
	StackHeaderSize    = 0x10
)

// NoNode terminates the free list. It is stored as all ones.
const NoNode = -1

const noNodeRaw = ^uint64(0)
