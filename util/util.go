package util

import "encoding/binary"

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func Rounddown(v int, b int) int {
	return v - (v % b)
}

func Roundup(v int, b int) int {
	return Rounddown(v+b-1, b)
}

// user memory is little-endian
func Readn(a []uint8, n int, off int) int {
	var ret int
	switch n {
	case 4:
		ret = int(int32(binary.LittleEndian.Uint32(a[off:])))
	case 2:
		ret = int(binary.LittleEndian.Uint16(a[off:]))
	case 1:
		ret = int(a[off])
	default:
		panic("no")
	}
	return ret
}

func Writen(a []uint8, sz int, off int, val int) {
	switch sz {
	case 4:
		binary.LittleEndian.PutUint32(a[off:], uint32(val))
	case 2:
		binary.LittleEndian.PutUint16(a[off:], uint16(val))
	case 1:
		a[off] = uint8(val)
	default:
		panic("no")
	}
}
