package format

// AlignUp returns n rounded up to the next multiple of alignment.
// alignment must be a power of two.
//
// Example:
//
//	AlignUp(1, 8)       = 8
//	AlignUp(8, 8)       = 8
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, alignment int) int {
	mask := alignment - 1
	return (n + mask) &^ mask
}
