// Package util contains small helpers shared across the kernel core:
// integer rounding for page/block alignment and raw little-endian field
// packing for on-disk records.
package util

import "encoding/binary"

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// ReadU32 reads a little-endian uint32 at offset off in a.
func ReadU32(a []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(a[off : off+4])
}

// WriteU32 writes val as a little-endian uint32 at offset off in a.
func WriteU32(a []byte, off int, val uint32) {
	binary.LittleEndian.PutUint32(a[off:off+4], val)
}

// ReadU16 reads a little-endian uint16 at offset off in a.
func ReadU16(a []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(a[off : off+2])
}

// WriteU16 writes val as a little-endian uint16 at offset off in a.
func WriteU16(a []byte, off int, val uint16) {
	binary.LittleEndian.PutUint16(a[off:off+2], val)
}
