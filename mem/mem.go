package mem

import "fmt"
import "log/slog"
import "sync"

const PGSHIFT uint = 10
const PGSIZE int = 1 << PGSHIFT
const PGOFFSET int = PGSIZE - 1

// a physical page number; an index into the frames of main memory
type Ppn_t int

type Physmem_t struct {
	// protects free and isfree. Mem itself is not protected: a frame is
	// only touched by the address space that owns it.
	sync.Mutex
	// simulated main memory. frame n occupies [n*PGSIZE, (n+1)*PGSIZE).
	Mem    []uint8
	npages int
	free   []Ppn_t
	isfree []bool
}

// creates main memory with npages frames, all of them free
func Phys_init(npages int) *Physmem_t {
	if npages <= 0 {
		panic("no physical pages")
	}
	phys := &Physmem_t{}
	phys.npages = npages
	phys.Mem = make([]uint8, npages*PGSIZE)
	phys.free = make([]Ppn_t, 0, npages)
	phys.isfree = make([]bool, npages)
	// lowest frame on top of the stack
	for i := npages - 1; i >= 0; i-- {
		phys.free = append(phys.free, Ppn_t(i))
		phys.isfree[i] = true
	}
	return phys
}

func (phys *Physmem_t) Npages() int {
	return phys.npages
}

// removes n frames from the free pool. either all n frames are granted or
// none are and the pool is unchanged. the granted frames are zeroed.
func (phys *Physmem_t) Pgs_new(n int) ([]Ppn_t, bool) {
	if n < 0 {
		panic("negative page count")
	}
	phys.Lock()
	if len(phys.free) < n {
		phys.Unlock()
		slog.Debug("out of physical pages", "want", n)
		return nil, false
	}
	l := len(phys.free)
	ret := make([]Ppn_t, n)
	for i := 0; i < n; i++ {
		p := phys.free[l-1-i]
		phys.isfree[p] = false
		ret[i] = p
	}
	phys.free = phys.free[:l-n]
	phys.Unlock()

	for _, p := range ret {
		pg := phys.Dmap(p)
		for i := range pg {
			pg[i] = 0
		}
		slog.Debug("allocate physical page", "ppn", p)
	}
	return ret, true
}

// returns every page in pgs to the free pool
func (phys *Physmem_t) Pgs_free(pgs []Ppn_t) {
	for _, p := range pgs {
		phys.Pg_free(p)
	}
}

func (phys *Physmem_t) Pg_free(p Ppn_t) {
	phys.Lock()
	defer phys.Unlock()
	if p < 0 || int(p) >= phys.npages {
		panic(fmt.Sprintf("cannot free invalid physical page %d", p))
	}
	if phys.isfree[p] {
		panic(fmt.Sprintf("double free of physical page %d", p))
	}
	slog.Debug("free physical page", "ppn", p)
	phys.isfree[p] = true
	phys.free = append(phys.free, p)
}

// the number of free frames
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	ret := len(phys.free)
	phys.Unlock()
	return ret
}

// returns the bytes of frame p
func (phys *Physmem_t) Dmap(p Ppn_t) []uint8 {
	if p < 0 || int(p) >= phys.npages {
		panic(fmt.Sprintf("bad physical page %d", p))
	}
	off := int(p) * PGSIZE
	return phys.Mem[off : off+PGSIZE : off+PGSIZE]
}
