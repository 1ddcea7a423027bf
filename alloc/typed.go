package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/internal/buf"
)

// Typed helpers. T must not contain Go pointers: allocator memory is not
// scanned by the garbage collector.

// New allocates a zeroed T from a.
func New[T any](a Allocator) (*T, error) {
	var zero T
	p, err := a.Alloc(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	t := (*T)(p)
	*t = zero
	return t, nil
}

// NewHandle allocates a zeroed T from a and returns its handle.
func NewHandle[T any](a Allocator) (Handle, error) {
	var zero T
	h, err := a.AllocHandle(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return NilHandle, err
	}
	*(*T)(a.Mem(h)) = zero
	return h, nil
}

// Get resolves h to a *T. It returns nil when a cannot resolve h.
// The pointer is valid until the next call that can grow a.
func Get[T any](a Allocator, h Handle) *T {
	return (*T)(a.Mem(h))
}

// MakeSlice allocates a zeroed []T of length n from a.
func MakeSlice[T any](a Allocator, n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: slice length %d", ErrBadSize, n)
	}
	var zero T
	size, ok := buf.MulOverflowSafe(n, int(unsafe.Sizeof(zero)))
	if !ok {
		return nil, fmt.Errorf("%w: %d elements of %d bytes overflows", ErrBadSize, n, unsafe.Sizeof(zero))
	}
	p, err := a.Alloc(size, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	s := unsafe.Slice((*T)(p), n)
	clear(s)
	return s, nil
}

// Bytes returns the n bytes behind h, or nil when a cannot resolve h.
func Bytes(a Allocator, h Handle, n int) []byte {
	p := a.Mem(h)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// BytesAt returns the n bytes at p.
func BytesAt(p unsafe.Pointer, n int) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}
