package proc

import "context"
import "errors"
import "fmt"
import "log/slog"

import "github.com/canliroc/CS371/coff"
import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fdops"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/vm"

var ErrNoExec = errors.New("cannot open executable")
var ErrFragmented = errors.New("fragmented executable")
var ErrArgsTooLong = errors.New("arguments too long")
var ErrNoMem = errors.New("insufficient physical memory")

// bytes of the argument page taken by args: a 4-byte pointer plus the
// NUL-terminated string for each.
func Argsize(args []string) int {
	ret := 0
	for _, a := range args {
		ret += 4 + len(a) + 1
	}
	return ret
}

func readall(f fdops.Fdops_i) ([]uint8, defs.Err_t) {
	var ret []uint8
	chunk := make([]uint8, 16*mem.PGSIZE)
	for {
		var fb vm.Fakeubuf_t
		fb.Fake_init(chunk)
		n, err := f.Read(&fb)
		if err != 0 {
			return nil, err
		}
		if n == 0 {
			return ret, 0
		}
		ret = append(ret, chunk[:n]...)
	}
}

// opens the executable, lays its sections out from virtual page 0 followed
// by the stack and one argument page, copies the arguments in and sets the
// initial registers. the address space is allocated in one piece.
func (p *Proc_t) load(ctx context.Context, name string, args []string) error {
	env := p.env
	f, ferr := env.Fs.Fs_open(ctx, name, false)
	if ferr != 0 {
		return fmt.Errorf("%w: %v", ErrNoExec, ferr)
	}
	p.exe = f

	img, ferr := readall(f)
	if ferr != 0 {
		return fmt.Errorf("%w: %v", ErrNoExec, ferr)
	}
	cf, err := coff.Parse(img)
	if err != nil {
		return err
	}

	npages := 0
	for i := 0; i < cf.Nsections(); i++ {
		s := cf.Section(i)
		if s.Firstvpn != npages {
			return fmt.Errorf("%w: section %s at page %d, expected %d",
				ErrFragmented, s.Name, s.Firstvpn, npages)
		}
		npages += s.Npages
	}
	if sz := Argsize(args); sz > mem.PGSIZE {
		return fmt.Errorf("%w: %d bytes", ErrArgsTooLong, sz)
	}

	entry := cf.Entrypoint()
	npages += env.Stackpages
	sp := npages * mem.PGSIZE
	// the argument page
	npages++

	ppns, ok := env.Phys.Pgs_new(npages)
	if !ok {
		return fmt.Errorf("%w: need %d pages, %d free", ErrNoMem, npages,
			env.Phys.Pgcount())
	}
	p.Vm.Vm_init(env.Phys, ppns)

	for i := 0; i < cf.Nsections(); i++ {
		s := cf.Section(i)
		slog.Debug("initializing section", "pid", p.Pid, "section", s.Name,
			"pages", s.Npages)
		for j := 0; j < s.Npages; j++ {
			vpn := s.Firstvpn + j
			p.Vm.Setreadonly(vpn, s.Readonly)
			s.Loadpage(j, env.Phys.Dmap(ppns[vpn]))
		}
	}

	argc, argv := p.insertargs(args)
	p.initregs(entry, sp, argc, argv)
	return nil
}

// writes args to the start of the last page: argc 4-byte pointers followed
// by the NUL-terminated strings they point to. returns argc and the address
// of the pointer table. the caller checked that the arguments fit.
func (p *Proc_t) insertargs(args []string) (int, int) {
	argv := (p.Vm.Npages() - 1) * mem.PGSIZE
	stroff := argv + len(args)*4
	for i, a := range args {
		if !p.Vm.Userwriten(argv+i*4, 4, stroff) {
			panic("argument page")
		}
		b := append([]uint8(a), 0)
		if p.Vm.K2user(b, stroff) != len(b) {
			panic("argument page")
		}
		stroff += len(b)
	}
	return len(args), argv
}

// every register is zero except the program counter, the stack pointer and
// the first two argument registers.
func (p *Proc_t) initregs(entry, sp, argc, argv int) {
	p.Tf = defs.Tf_t{}
	p.Tf[defs.TF_PC] = entry
	p.Tf[defs.TF_NEXTPC] = entry + 4
	p.Tf[defs.TF_SP] = sp
	p.Tf[defs.TF_A0] = argc
	p.Tf[defs.TF_A1] = argv
}
