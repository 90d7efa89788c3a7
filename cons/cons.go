package cons

import "io"
import "log/slog"
import "sync"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fdops"
import "github.com/canliroc/CS371/fs"

const Storeid = "console"
const Name = "console"

// the machine console: a byte stream in and a byte stream out, shared by
// every process
type Cons_t struct {
	sync.Mutex
	in  io.Reader
	out io.Writer
	oc  *fs.Opencount_t
}

func MkCons(in io.Reader, out io.Writer, oc *fs.Opencount_t) *Cons_t {
	return &Cons_t{in: in, out: out, oc: oc}
}

func (c *Cons_t) Key() fs.Fkey_t {
	return fs.Fkey_t{Store: Storeid, Path: Name}
}

func (c *Cons_t) _open(rd bool) *consfops_t {
	if c.oc != nil && !c.oc.Openref(c.Key()) {
		panic("console unlinked")
	}
	return &consfops_t{cons: c, rd: rd}
}

// a handle on the input side
func (c *Cons_t) Openread() fdops.Fdops_i {
	return c._open(true)
}

// a handle on the output side
func (c *Cons_t) Openwrite() fdops.Fdops_i {
	return c._open(false)
}

type consfops_t struct {
	cons   *Cons_t
	rd     bool
	closed bool
}

func (cf *consfops_t) Name() string {
	return Name
}

func (cf *consfops_t) Storeid() string {
	return Storeid
}

func (cf *consfops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if cf.closed {
		return 0, -defs.EBADF
	}
	if !cf.rd {
		return 0, -defs.EPERM
	}
	sz := dst.Remain()
	if sz == 0 || cf.cons.in == nil {
		return 0, 0
	}
	buf := make([]uint8, sz)
	cf.cons.Lock()
	n, err := cf.cons.in.Read(buf)
	cf.cons.Unlock()
	if err != nil && err != io.EOF {
		slog.Warn("console read failed", "error", err)
	}
	if n == 0 {
		return 0, 0
	}
	c, uerr := dst.Uiowrite(buf[:n])
	if c == 0 && uerr != 0 {
		return 0, uerr
	}
	return c, 0
}

func (cf *consfops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if cf.closed {
		return 0, -defs.EBADF
	}
	if cf.rd {
		return 0, -defs.EPERM
	}
	buf := make([]uint8, src.Remain())
	n, uerr := src.Uioread(buf)
	if n == 0 {
		return 0, uerr
	}
	cf.cons.Lock()
	c, err := cf.cons.out.Write(buf[:n])
	cf.cons.Unlock()
	if err != nil {
		slog.Warn("console write failed", "error", err)
		if c == 0 {
			return 0, -defs.EIO
		}
	}
	return c, 0
}

func (cf *consfops_t) Close() defs.Err_t {
	if cf.closed {
		return -defs.EBADF
	}
	cf.closed = true
	if cf.cons.oc != nil {
		cf.cons.oc.Closeref(cf.cons.Key())
	}
	return 0
}
