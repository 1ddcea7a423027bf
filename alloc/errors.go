package alloc

import "errors"

var (
	// ErrNoSpace indicates that a fixed-capacity allocator cannot satisfy a request.
	ErrNoSpace = errors.New("alloc: no free block large enough")

	// ErrBadRef indicates a pointer or handle that does not belong to a live block.
	ErrBadRef = errors.New("alloc: bad block reference")

	// ErrNotTop indicates a stack free or resize of a block that is not on top.
	ErrNotTop = errors.New("alloc: block is not on top of the stack")

	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("alloc: alignment must be a power of two")

	// ErrBadSize indicates a negative size, a size above MaxSize, or a capacity
	// below the allocator minimum.
	ErrBadSize = errors.New("alloc: bad size")

	// ErrUnsupported indicates an operation the allocator does not offer.
	ErrUnsupported = errors.New("alloc: operation not supported")

	// ErrBadSnapshot indicates a snapshot that is ahead of the arena's current position.
	ErrBadSnapshot = errors.New("alloc: snapshot is not behind the current position")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("alloc: allocator is closed")

	// ErrOutOfMemory is passed to the fatal handler when a backing buffer cannot be obtained.
	ErrOutOfMemory = errors.New("alloc: out of memory")
)
