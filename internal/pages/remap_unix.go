//go:build unix && !linux

package pages

// Realloc resizes b to n bytes by mapping a new buffer and copying. Bytes up
// to min(len(b), n) are preserved and new bytes are zero. b must not be used
// after a successful call.
func Realloc(b []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrBadLength
	}
	if cap(b) == 0 {
		return Alloc(n)
	}
	if Round(n) == cap(b) {
		old := len(b)
		b = b[:n]
		if n > old {
			clear(b[old:])
		}
		return b, nil
	}
	data, err := Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(data, b)
	if err := Free(b); err != nil {
		_ = Free(data)
		return nil, err
	}
	return data, nil
}
