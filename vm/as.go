package vm

import "log/slog"
import "sync"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/ustr"
import "github.com/canliroc/CS371/util"

// a translation entry: virtual page Vpn maps to physical frame Ppn
type Pte_t struct {
	Vpn      int
	Ppn      mem.Ppn_t
	Valid    bool
	Readonly bool
}

// a process address space. Ptes is indexed by virtual page number.
type Vm_t struct {
	// lock for Ptes
	sync.Mutex
	Ptes []Pte_t
	phys *mem.Physmem_t

	pgfltaken bool
}

func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pmap lock must be held")
	}
}

// maps virtual page i to ppns[i]. the address space takes ownership of the
// frames.
func (as *Vm_t) Vm_init(phys *mem.Physmem_t, ppns []mem.Ppn_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if len(as.Ptes) != 0 {
		panic("address space already initialized")
	}
	as.phys = phys
	as.Ptes = make([]Pte_t, len(ppns))
	for i, p := range ppns {
		as.Ptes[i] = Pte_t{Vpn: i, Ppn: p, Valid: true}
	}
}

func (as *Vm_t) Npages() int {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	return len(as.Ptes)
}

// the size of the address space in bytes
func (as *Vm_t) Size() int {
	return as.Npages() * mem.PGSIZE
}

func (as *Vm_t) Setreadonly(vpn int, ro bool) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if vpn < 0 || vpn >= len(as.Ptes) {
		panic("bad vpn")
	}
	as.Ptes[vpn].Readonly = ro
}

// returns a copy of the translation entry for vpn
func (as *Vm_t) Pte(vpn int) (Pte_t, bool) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if vpn < 0 || vpn >= len(as.Ptes) {
		return Pte_t{}, false
	}
	return as.Ptes[vpn], true
}

// returns every frame to the physical page allocator and empties the address
// space. returns the number of frames released; an already freed address
// space releases nothing.
func (as *Vm_t) Uvmfree() int {
	as.Lock_pmap()
	ptes := as.Ptes
	as.Ptes = nil
	as.Unlock_pmap()
	for _, pte := range ptes {
		if pte.Valid {
			as.phys.Pg_free(pte.Ppn)
		}
	}
	return len(ptes)
}

// returns the bytes from va to the end of va's page. k2u means the kernel
// will write to user memory; writes to read-only pages fail.
func (as *Vm_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lockassert_pmap()
	if va < 0 {
		return nil, -defs.EFAULT
	}
	vpn := va >> mem.PGSHIFT
	if vpn >= len(as.Ptes) || !as.Ptes[vpn].Valid {
		return nil, -defs.EFAULT
	}
	pte := &as.Ptes[vpn]
	if k2u && pte.Readonly {
		return nil, -defs.EFAULT
	}
	voff := va & mem.PGOFFSET
	return as.phys.Dmap(pte.Ppn)[voff:], 0
}

// the number of bytes of [uva, uva+n) inside the address space
func (as *Vm_t) _clamp(uva, n int) int {
	lim := len(as.Ptes) * mem.PGSIZE
	if uva < 0 || uva >= lim || n <= 0 {
		return 0
	}
	return util.Min(n, lim-uva)
}

// copies len(dst) bytes from user address uva to dst. the copy is clamped to
// the end of the address space; returns the number of bytes copied, 0 if uva
// is not mapped.
func (as *Vm_t) User2k(dst []uint8, uva int) int {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) User2k_inner(dst []uint8, uva int) int {
	as.Lockassert_pmap()
	amt := as._clamp(uva, len(dst))
	cnt := 0
	for cnt != amt {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			break
		}
		did := copy(dst[cnt:amt], src)
		cnt += did
	}
	return cnt
}

// copies src to user address uva. the copy is clamped to the end of the
// address space; returns the number of bytes copied. K2user does not honor
// read-only pages; use K2user_prot for writes requested by user programs.
func (as *Vm_t) K2user(src []uint8, uva int) int {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) K2user_inner(src []uint8, uva int) int {
	as.Lockassert_pmap()
	amt := as._clamp(uva, len(src))
	cnt := 0
	for cnt != amt {
		dst, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			break
		}
		did := copy(dst, src[cnt:amt])
		cnt += did
	}
	return cnt
}

// like K2user, but fails with EFAULT without copying anything if any page of
// the clamped destination range is read-only.
func (as *Vm_t) K2user_prot(src []uint8, uva int) (int, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if !as.userwritable_inner(uva, len(src)) {
		slog.Debug("write to read-only user memory refused", "va", uva,
			"len", len(src))
		return 0, -defs.EFAULT
	}
	return as.K2user_inner(src, uva), 0
}

func (as *Vm_t) Userwritable(uva, n int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	return as.userwritable_inner(uva, n)
}

func (as *Vm_t) userwritable_inner(uva, n int) bool {
	amt := as._clamp(uva, n)
	if amt == 0 {
		return true
	}
	first := uva >> mem.PGSHIFT
	last := (uva + amt - 1) >> mem.PGSHIFT
	for vpn := first; vpn <= last; vpn++ {
		if as.Ptes[vpn].Readonly {
			return false
		}
	}
	return true
}

// reads a NUL-terminated string of at most lenmax bytes (not counting the
// NUL) from uva. returns false if no NUL is found within lenmax+1 bytes.
func (as *Vm_t) Userstr(uva int, lenmax int) (ustr.Ustr, bool) {
	if lenmax < 0 {
		panic("negative lenmax")
	}
	buf := make([]uint8, lenmax+1)
	n := as.User2k(buf, uva)
	s, ok := ustr.MkUstrSlice(buf[:n])
	if !ok {
		return nil, false
	}
	return s, true
}

// reads an n byte little-endian integer from uva
func (as *Vm_t) Userreadn(va, n int) (int, bool) {
	buf := make([]uint8, n)
	if as.User2k(buf, va) != n {
		return 0, false
	}
	return util.Readn(buf, n, 0), true
}

func (as *Vm_t) Userwriten(va, n, val int) bool {
	buf := make([]uint8, n)
	util.Writen(buf, n, 0, val)
	return as.K2user(buf, va) == n
}

func (as *Vm_t) Mkuserbuf(userva, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, len)
	return ret
}
