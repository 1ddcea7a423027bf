// Package container provides data structures whose storage lives in an
// alloc.Allocator instead of the Go heap.
package container

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/memkit/alloc"
	"github.com/joshuapare/memkit/internal/buf"
)

// Array is a growable array of T stored behind an allocator handle. The
// element storage is resolved through the handle on every access, so the
// array keeps working when the allocator moves its buffer.
//
// The allocator is borrowed: Release returns the storage but the allocator
// stays open. T must not contain Go pointers.
type Array[T any] struct {
	a   alloc.Allocator
	h   alloc.Handle
	len int
	cap int
}

// NewArray creates an array with room for capacity elements.
func NewArray[T any](a alloc.Allocator, capacity int) (*Array[T], error) {
	arr := &Array[T]{a: a, h: alloc.NilHandle}
	if capacity > 0 {
		if err := arr.grow(capacity); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// Len returns the number of elements.
func (arr *Array[T]) Len() int { return arr.len }

// Cap returns the number of elements that fit before the next growth.
func (arr *Array[T]) Cap() int { return arr.cap }

// Append adds v at the end, doubling the storage when full.
func (arr *Array[T]) Append(v T) error {
	if arr.len == arr.cap {
		if err := arr.grow(max(2*arr.cap, 4)); err != nil {
			return err
		}
	}
	arr.elems()[arr.len] = v
	arr.len++
	return nil
}

// At returns element i. It panics when i is out of range.
func (arr *Array[T]) At(i int) T {
	arr.check(i)
	return arr.elems()[i]
}

// Set replaces element i. It panics when i is out of range.
func (arr *Array[T]) Set(i int, v T) {
	arr.check(i)
	arr.elems()[i] = v
}

// Slice returns the elements as a slice. The slice aliases allocator memory
// and is only valid until the next Append, Release or allocator growth.
func (arr *Array[T]) Slice() []T {
	if arr.len == 0 {
		return nil
	}
	return arr.elems()[:arr.len]
}

// Reset drops every element, keeping the storage.
func (arr *Array[T]) Reset() {
	arr.len = 0
}

// Release frees the storage and empties the array.
func (arr *Array[T]) Release() error {
	h := arr.h
	arr.h, arr.len, arr.cap = alloc.NilHandle, 0, 0
	if h == alloc.NilHandle {
		return nil
	}
	return arr.a.FreeHandle(h)
}

func (arr *Array[T]) elems() []T {
	p := arr.a.Mem(arr.h)
	if p == nil {
		panic(fmt.Sprintf("container: array storage handle %d no longer resolves", arr.h))
	}
	return unsafe.Slice((*T)(p), arr.cap)
}

func (arr *Array[T]) check(i int) {
	if i < 0 || i >= arr.len {
		panic(fmt.Sprintf("container: index %d out of range [0:%d]", i, arr.len))
	}
}

func (arr *Array[T]) grow(capacity int) error {
	var zero T
	size, ok := buf.MulOverflowSafe(capacity, int(unsafe.Sizeof(zero)))
	if !ok {
		return fmt.Errorf("container: array of %d elements: %w", capacity, alloc.ErrBadSize)
	}
	h, err := arr.a.ReallocHandle(arr.h, size, int(unsafe.Alignof(zero)))
	if err != nil {
		return fmt.Errorf("container: grow array to %d elements: %w", capacity, err)
	}
	arr.h = h
	arr.cap = capacity
	return nil
}
