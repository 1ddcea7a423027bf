// Package pages supplies the backing buffers that allocators own.
//
// On unix platforms buffers are anonymous private mappings, so they are page
// aligned, live outside the Go heap and can be grown with mremap on Linux.
// Elsewhere they fall back to heap slices.
//
// A buffer returned by Alloc or Realloc must be released with Free exactly
// once, and must not be resliced beyond its length by callers.
package pages

import (
	"errors"
	"sync"

	"github.com/joshuapare/memkit/internal/format"
)

// ErrBadLength indicates a non-positive buffer length.
var ErrBadLength = errors.New("pages: length must be positive")

var (
	sizeOnce sync.Once
	size     int
)

// Size returns the platform page size.
func Size() int {
	sizeOnce.Do(func() {
		size = pageSize()
	})
	return size
}

// Round returns n rounded up to a whole number of pages.
func Round(n int) int {
	return format.AlignUp(n, Size())
}
