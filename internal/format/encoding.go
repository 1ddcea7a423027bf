package format

import "encoding/binary"

// Binary encoding utilities for little-endian header fields.
//
// Implementation: Uses encoding/binary.LittleEndian, which the compiler inlines
// into plain loads and stores.

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// PutInt writes a non-negative int as a uint64 field.
func PutInt(b []byte, off int, v int) {
	PutU64(b, off, uint64(v))
}

// ReadInt reads a uint64 field as an int.
func ReadInt(b []byte, off int) int {
	return int(ReadU64(b, off))
}
