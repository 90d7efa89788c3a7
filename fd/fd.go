package fd

import "sort"
import "sync"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fdops"

const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

type Fd_t struct {
	// fops is an interface implemented via a "pointer receiver", thus fops
	// is a reference, not a value
	Fops  fdops.Fdops_i
	Perms int
}

func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

// a process's descriptor table. a slot is either live or in the free pool,
// never both.
type Fdtable_t struct {
	sync.Mutex
	Fds []*Fd_t
	// freed slots, ascending
	free []int
	nfds int
}

// installs f in the smallest freed slot, or a new slot if none are free.
func (ft *Fdtable_t) Fd_insert(f *Fd_t) int {
	ft.Lock()
	defer ft.Unlock()
	var fdn int
	if len(ft.free) > 0 {
		fdn = ft.free[0]
		ft.free = ft.free[1:]
		if ft.Fds[fdn] != nil {
			panic("free slot in use")
		}
		ft.Fds[fdn] = f
	} else {
		fdn = len(ft.Fds)
		ft.Fds = append(ft.Fds, f)
	}
	ft.nfds++
	return fdn
}

// fdn is not guaranteed to be a sane fd
func (ft *Fdtable_t) Fd_get(fdn int) (*Fd_t, bool) {
	ft.Lock()
	defer ft.Unlock()
	if fdn < 0 || fdn >= len(ft.Fds) {
		return nil, false
	}
	ret := ft.Fds[fdn]
	return ret, ret != nil
}

func (ft *Fdtable_t) fd_del_inner(fdn int) (*Fd_t, bool) {
	if fdn < 0 || fdn >= len(ft.Fds) {
		return nil, false
	}
	ret := ft.Fds[fdn]
	if ret == nil {
		return nil, false
	}
	ft.Fds[fdn] = nil
	i := sort.SearchInts(ft.free, fdn)
	ft.free = append(ft.free, 0)
	copy(ft.free[i+1:], ft.free[i:])
	ft.free[i] = fdn
	ft.nfds--
	if ft.nfds < 0 {
		panic("neg nfds")
	}
	return ret, true
}

// closes the handle at fdn and returns the slot to the free pool.
func (ft *Fdtable_t) Fd_close(fdn int) defs.Err_t {
	ft.Lock()
	f, ok := ft.fd_del_inner(fdn)
	ft.Unlock()
	if !ok {
		return -defs.EBADF
	}
	return f.Fops.Close()
}

// closes every live descriptor; returns how many were closed.
func (ft *Fdtable_t) Closeall() int {
	ft.Lock()
	var fds []*Fd_t
	for i := range ft.Fds {
		if f, ok := ft.fd_del_inner(i); ok {
			fds = append(fds, f)
		}
	}
	ft.Unlock()
	for _, f := range fds {
		Close_panic(f)
	}
	return len(fds)
}

// the number of live descriptors
func (ft *Fdtable_t) Nfds() int {
	ft.Lock()
	defer ft.Unlock()
	return ft.nfds
}

// the number of slots in the free pool
func (ft *Fdtable_t) Nfree() int {
	ft.Lock()
	defer ft.Unlock()
	return len(ft.free)
}
