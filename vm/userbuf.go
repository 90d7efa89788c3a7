package vm

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/util"

// a helper object for reading/writing a user buffer. the length is clamped
// to the end of the address space when the buffer is made, so Remain and
// Totalsz never exceed the mapped range.
type Userbuf_t struct {
	userva int
	len    int
	// 0 <= off <= len
	off int
	as  *Vm_t
}

func (ub *Userbuf_t) ub_init(as *Vm_t, uva, len int) {
	if len < 0 {
		panic("negative length")
	}
	as.Lock_pmap()
	ub.len = as._clamp(uva, len)
	as.Unlock_pmap()
	ub.userva = uva
	ub.off = 0
	ub.as = as
}

func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	a, b := ub._tx(dst, false)
	ub.as.Unlock_pmap()
	return a, b
}

// the whole destination range is checked for write permission before any
// byte is copied
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	n := util.Min(len(src), ub.Remain())
	if !ub.as.userwritable_inner(ub.userva+ub.off, n) {
		return 0, -defs.EFAULT
	}
	return ub._tx(src, true)
}

// copies the min of either the provided buffer or the remaining user buffer.
// returns number of bytes copied and error; EFAULT is only returned if nothing
// could be copied.
func (ub *Userbuf_t) _tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.userva + ub.off
		ubuf, err := ub.as.Userdmap8_inner(va, write)
		if err != 0 {
			if ret == 0 {
				return 0, err
			}
			break
		}
		end := ub.off + len(ubuf)
		if end > ub.len {
			left := ub.len - ub.off
			ubuf = ubuf[:left]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

// a Userio_i backed by a kernel buffer
type Fakeubuf_t struct {
	fbuf []uint8
	off  int
	len  int
}

func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.fbuf = buf
	fb.len = len(fb.fbuf)
	fb.off = 0
}

func (fb *Fakeubuf_t) Remain() int {
	return fb.len - fb.off
}

func (fb *Fakeubuf_t) Totalsz() int {
	return fb.len
}

func (fb *Fakeubuf_t) _tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.fbuf[fb.off:], buf)
	} else {
		c = copy(buf, fb.fbuf[fb.off:])
	}
	fb.off += c
	return c, 0
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb._tx(dst, false)
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb._tx(src, true)
}
