//go:build !unix

package pages

import (
	"os"
	"unsafe"
)

func pageSize() int {
	return os.Getpagesize()
}

// Alloc returns n zeroed, page-aligned bytes from the Go heap.
func Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrBadLength
	}
	sz := Size()
	raw := make([]byte, Round(n)+sz)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := int(uintptr(sz)-addr%uintptr(sz)) % sz
	return raw[off : off+n : off+Round(n)], nil
}

// Realloc resizes b to n bytes, preserving bytes up to min(len(b), n).
func Realloc(b []byte, n int) ([]byte, error) {
	data, err := Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(data, b)
	return data, nil
}

// Free drops the buffer; the collector reclaims it.
func Free(b []byte) error {
	return nil
}
