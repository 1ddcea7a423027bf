//go:build unix

package pages

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

// Alloc maps n zeroed bytes. The mapping is rounded up to whole pages; the
// returned slice has length n.
func Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrBadLength
	}
	data, err := unix.Mmap(
		-1,
		0,
		Round(n),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, fmt.Errorf("pages: mmap %d bytes: %w", n, err)
	}
	return data[:n], nil
}

// Free unmaps a buffer obtained from Alloc or Realloc.
func Free(b []byte) error {
	if cap(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b[:cap(b)]); err != nil {
		return fmt.Errorf("pages: munmap: %w", err)
	}
	return nil
}
