package ustr

type Ustr []uint8

func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

func MkUstr() Ustr {
	us := Ustr{}
	return us
}

// returns the prefix of buf before the first NUL and whether a NUL was found
func MkUstrSlice(buf []uint8) (Ustr, bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] == uint8(0) {
			return buf[:i], true
		}
	}
	return buf, false
}

func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

// the string with a single NUL terminator appended, as laid out in user
// memory
func (us Ustr) Cstr() []uint8 {
	ret := make([]uint8, len(us)+1)
	copy(ret, us)
	return ret
}

func (us Ustr) String() string {
	return string(us)
}
