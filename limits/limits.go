package limits

import "sync/atomic"

type Syslimit_t struct {
	// live user processes
	Sysprocs Sysatomic_t
	// longest file or program name read from user memory, without the NUL
	Namemax int
	// longest exec argument read from user memory, without the NUL
	Argmax int
}

var Syslimit *Syslimit_t = MkSysLimit(1e4)

func MkSysLimit(procs int) *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: Sysatomic_t(procs),
		Namemax:  256,
		Argmax:   256,
	}
}

type Sysatomic_t int64

func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64((*int64)(s), n)
}

// returns false if the limit has been reached.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64((*int64)(s), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), n)
	return false
}

func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

func (s *Sysatomic_t) Give() {
	s.Given(1)
}

func (s *Sysatomic_t) Remain() int {
	return int(atomic.LoadInt64((*int64)(s)))
}
