package alloc

import "unsafe"

// Address arithmetic shared by the allocators. All alignments are powers of two.

// IsPowerOfTwo reports whether x is a non-zero power of two.
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// Padding returns the number of bytes to add to addr so that the result is a
// multiple of alignment. It returns 0 when addr is already aligned.
//
// Example:
//
//	Padding(0x1001, 8) = 7
//	Padding(0x1008, 8) = 0
func Padding(addr, alignment uintptr) uintptr {
	mask := alignment - 1
	return (alignment - addr&mask) & mask
}

// PaddingWithHeader is like Padding but also leaves at least headerSize bytes
// between addr and the aligned address, so a header can sit right before it.
// When the natural padding is too small it is pushed forward by whole
// multiples of alignment.
//
// Example:
//
//	PaddingWithHeader(0x1000, 8, 16)  = 16
//	PaddingWithHeader(0x1004, 8, 16)  = 20
//	PaddingWithHeader(0x1004, 64, 16) = 60
func PaddingWithHeader(addr, alignment, headerSize uintptr) uintptr {
	padding := Padding(addr, alignment)
	if padding >= headerSize {
		return padding
	}
	needed := headerSize - padding
	return padding + alignment*((needed+alignment-1)/alignment)
}

// AddressInRange reports whether p lies in [base, base+capacity).
func AddressInRange(base unsafe.Pointer, capacity int, p unsafe.Pointer) bool {
	if base == nil || p == nil || capacity <= 0 {
		return false
	}
	b, a := uintptr(base), uintptr(p)
	return a >= b && a-b < uintptr(capacity)
}

// HandleInRange reports whether h is an offset inside a buffer of capacity bytes.
func HandleInRange(capacity int, h Handle) bool {
	return h != NilHandle && capacity > 0 && h < Handle(capacity)
}

// PtrToHandle converts p to its offset from base.
func PtrToHandle(p, base unsafe.Pointer) Handle {
	return Handle(uintptr(p) - uintptr(base))
}

// HandleToPtr converts an offset back to an address relative to base.
func HandleToPtr(h Handle, base unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(base, uintptr(h))
}

// Rebase moves p from a buffer that started at oldBase to the same offset in a
// buffer starting at newBase. p is not dereferenced.
func Rebase(p, oldBase, newBase unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(newBase, uintptr(p)-uintptr(oldBase))
}
