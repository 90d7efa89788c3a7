package fdops

import "github.com/canliroc/CS371/defs"

// interface for reading/writing from user space memory via a pointer and
// length
type Userio_i interface {
	// copy src to user memory
	Uiowrite(src []uint8) (int, defs.Err_t)
	// copy user memory to dst
	Uioread(dst []uint8) (int, defs.Err_t)
	// returns the number of unwritten/unread bytes remaining
	Remain() int
	// the total buffer size
	Totalsz() int
}

// an open file handle. the store id and name together identify the file
// across processes.
type Fdops_i interface {
	Close() defs.Err_t
	Read(Userio_i) (int, defs.Err_t)
	Write(Userio_i) (int, defs.Err_t)
	Name() string
	Storeid() string
}
