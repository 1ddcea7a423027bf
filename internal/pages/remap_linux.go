//go:build linux

package pages

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Realloc resizes b to n bytes, moving it when the kernel cannot extend the
// mapping in place. Bytes up to min(len(b), n) are preserved and new bytes are
// zero. b must not be used after a successful call.
func Realloc(b []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrBadLength
	}
	if cap(b) == 0 {
		return Alloc(n)
	}
	oldLen, oldCap := len(b), cap(b)
	want := Round(n)
	data := b[:oldCap]
	if want != oldCap {
		var err error
		data, err = unix.Mremap(data, want, unix.MREMAP_MAYMOVE)
		if err != nil {
			return nil, fmt.Errorf("pages: mremap %d -> %d bytes: %w", oldCap, want, err)
		}
	}
	// Pages added by mremap are zero; the tail of the old mapping may not be.
	if n > oldLen {
		clear(data[oldLen:min(n, oldCap)])
	}
	return data[:n], nil
}
