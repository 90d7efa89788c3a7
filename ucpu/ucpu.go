// Package ucpu runs user programs written in Go in place of MIPS code. A
// program is found by name through the text section of its executable. It
// talks to the kernel only through traps: syscalls carry their number and
// arguments in the register file, and stores to protected pages raise the
// matching exception.
package ucpu

import "context"
import "fmt"
import "log/slog"
import "runtime"
import "sort"
import "strings"
import "sync"

import "github.com/canliroc/CS371/coff"
import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fs"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/proc"
import "github.com/canliroc/CS371/util"

// the text section of a Go program's image holds this prefix and the
// program's name
const magic = "goprog:"

// a user program. the return value is passed to exit.
type Uprog_f func(u *Uctx_t) int

type trap_t struct {
	cause int
	sysno int
	args  [4]int
	badva int
}

type urun_t struct {
	resume chan int
	trap   chan trap_t
}

type Cpu_t struct {
	sync.Mutex
	progs map[string]Uprog_f
	runs  map[*proc.Proc_t]*urun_t
}

// a processor knowing the standard programs
func MkCpu() *Cpu_t {
	c := &Cpu_t{
		progs: make(map[string]Uprog_f),
		runs:  make(map[*proc.Proc_t]*urun_t),
	}
	for n, f := range Stdprogs() {
		c.Register(n, f)
	}
	return c
}

func (c *Cpu_t) Register(name string, f Uprog_f) {
	c.Lock()
	defer c.Unlock()
	c.progs[name] = f
}

func (c *Cpu_t) Names() []string {
	c.Lock()
	defer c.Unlock()
	ret := make([]string, 0, len(c.progs))
	for n := range c.progs {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret
}

// the executable image of program name: a read-only text page naming it and
// one data page
func Image(name string) []uint8 {
	text := append([]uint8(magic+name), 0)
	return coff.Build(0, []coff.Secspec_t{
		{Name: ".text", Vaddr: 0, Flags: coff.STYP_TEXT, Data: text},
		{Name: ".data", Vaddr: mem.PGSIZE, Flags: coff.STYP_DATA,
			Data: make([]uint8, mem.PGSIZE)},
	})
}

// writes the image of every registered program into the store
func (c *Cpu_t) Install(ctx context.Context, fsys *fs.Fs_t) error {
	for _, n := range c.Names() {
		if err := fsys.Fs_install(ctx, n, Image(n)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cpu_t) lookup(p *proc.Proc_t, pc int) Uprog_f {
	s, ok := p.Vm.Userstr(pc, 64)
	name, found := strings.CutPrefix(s.String(), magic)
	c.Lock()
	f, reg := c.progs[name]
	c.Unlock()
	if !ok || !found || !reg {
		slog.Warn("no program at entry point", "pid", p.Pid, "name", p.Name,
			"pc", pc)
		return func(*Uctx_t) int { return defs.FAULTSTATUS }
	}
	return f
}

func (c *Cpu_t) forget(p *proc.Proc_t) {
	c.Lock()
	delete(c.runs, p)
	c.Unlock()
}

// runs p from the register state in tf until it traps, then records the
// trap in tf. the result of the previous syscall is taken from TF_V0.
func (c *Cpu_t) Run(p *proc.Proc_t, tf *defs.Tf_t) {
	c.Lock()
	r, ok := c.runs[p]
	if !ok {
		r = &urun_t{resume: make(chan int), trap: make(chan trap_t)}
		c.runs[p] = r
	}
	c.Unlock()

	if !ok {
		u := &Uctx_t{
			p:    p,
			run:  r,
			sp:   tf[defs.TF_SP],
			argc: tf[defs.TF_A0],
			argv: tf[defs.TF_A1],
		}
		go u.start(c, c.lookup(p, tf[defs.TF_PC]))
	} else {
		r.resume <- tf[defs.TF_V0]
	}
	t := <-r.trap
	tf[defs.TF_CAUSE] = t.cause
	tf[defs.TF_BADVADDR] = t.badva
	if t.cause == defs.EXC_SYSCALL {
		tf[defs.TF_V0] = t.sysno
		tf[defs.TF_A0] = t.args[0]
		tf[defs.TF_A1] = t.args[1]
		tf[defs.TF_A2] = t.args[2]
		tf[defs.TF_A3] = t.args[3]
	}
}

// the user side of a running program
type Uctx_t struct {
	p    *proc.Proc_t
	run  *urun_t
	sp   int
	argc int
	argv int
}

func (u *Uctx_t) start(c *Cpu_t, prog Uprog_f) {
	defer c.forget(u.p)
	u.Exit(prog(u))
}

// hands t to the kernel and waits to be resumed. a process the kernel
// terminated is never resumed; its goroutine ends here.
func (u *Uctx_t) trap(t trap_t) int {
	select {
	case u.run.trap <- t:
	case <-u.p.Done():
		runtime.Goexit()
	}
	select {
	case v := <-u.run.resume:
		return v
	case <-u.p.Done():
	}
	runtime.Goexit()
	return 0
}

func (u *Uctx_t) Pid() int {
	return u.p.Pid
}

func (u *Uctx_t) Syscall(sysno int, args ...int) int {
	if len(args) > 4 {
		panic("too many syscall arguments")
	}
	t := trap_t{cause: defs.EXC_SYSCALL, sysno: sysno}
	copy(t.args[:], args)
	return u.trap(t)
}

// the program's arguments, read back from its argument page
func (u *Uctx_t) Args() []string {
	ret := make([]string, 0, u.argc)
	for i := 0; i < u.argc; i++ {
		ptr, ok := u.p.Vm.Userreadn(u.argv+4*i, 4)
		if !ok {
			break
		}
		s, ok := u.p.Vm.Userstr(ptr, mem.PGSIZE)
		if !ok {
			break
		}
		ret = append(ret, s.String())
	}
	return ret
}

// reserves n bytes of stack and returns their address
func (u *Uctx_t) Alloc(n int) int {
	u.sp -= (n + 3) &^ 3
	return u.sp
}

// stores b at va the way a store instruction would: a read-only page raises
// a read-only exception and an unmapped one an address error.
func (u *Uctx_t) Store(va int, b []uint8) {
	for off := 0; off < len(b); {
		pva := va + off
		pte, ok := u.p.Vm.Pte(pva / mem.PGSIZE)
		if pva < 0 || !ok || !pte.Valid {
			u.trap(trap_t{cause: defs.EXC_ADDRERR, badva: pva})
			return
		}
		if pte.Readonly {
			u.trap(trap_t{cause: defs.EXC_READONLY, badva: pva})
			return
		}
		n := mem.PGSIZE - pva%mem.PGSIZE
		if n > len(b)-off {
			n = len(b) - off
		}
		u.p.Vm.K2user(b[off:off+n], pva)
		off += n
	}
}

func (u *Uctx_t) Load(va, n int) []uint8 {
	ret := make([]uint8, n)
	if c := u.p.Vm.User2k(ret, va); c != n {
		u.trap(trap_t{cause: defs.EXC_ADDRERR, badva: va + c})
	}
	return ret
}

// pushes a NUL-terminated copy of s
func (u *Uctx_t) Str(s string) int {
	va := u.Alloc(len(s) + 1)
	u.Store(va, append([]uint8(s), 0))
	return va
}

func (u *Uctx_t) Halt() int {
	return u.Syscall(defs.SYS_HALT)
}

func (u *Uctx_t) Exit(status int) {
	u.Syscall(defs.SYS_EXIT, status)
	panic(fmt.Sprintf("pid %d resumed after exit", u.p.Pid))
}

func (u *Uctx_t) Exec(name string, args []string) int {
	sp := u.sp
	defer func() { u.sp = sp }()
	ptrs := make([]int, len(args))
	for i, a := range args {
		ptrs[i] = u.Str(a)
	}
	argv := u.Alloc(4 * len(args))
	buf := make([]uint8, 4*len(args))
	for i, ptr := range ptrs {
		util.Writen(buf, 4, 4*i, ptr)
	}
	u.Store(argv, buf)
	return u.Syscall(defs.SYS_EXEC, u.Str(name), len(args), argv)
}

func (u *Uctx_t) Join(pid int) int {
	return u.Syscall(defs.SYS_JOIN, pid)
}

func (u *Uctx_t) _named(sysno int, name string) int {
	sp := u.sp
	defer func() { u.sp = sp }()
	return u.Syscall(sysno, u.Str(name))
}

func (u *Uctx_t) Creat(name string) int {
	return u._named(defs.SYS_CREATE, name)
}

func (u *Uctx_t) Open(name string) int {
	return u._named(defs.SYS_OPEN, name)
}

func (u *Uctx_t) Unlink(name string) int {
	return u._named(defs.SYS_UNLINK, name)
}

// reads up to n bytes from fd. returns nil on error.
func (u *Uctx_t) Read(fdn, n int) []uint8 {
	sp := u.sp
	defer func() { u.sp = sp }()
	va := u.Alloc(n)
	c := u.Syscall(defs.SYS_READ, fdn, va, n)
	if c < 0 {
		return nil
	}
	return u.Load(va, c)
}

func (u *Uctx_t) Write(fdn int, b []uint8) int {
	sp := u.sp
	defer func() { u.sp = sp }()
	va := u.Alloc(len(b))
	u.Store(va, b)
	return u.Syscall(defs.SYS_WRITE, fdn, va, len(b))
}

func (u *Uctx_t) Close(fdn int) int {
	return u.Syscall(defs.SYS_CLOSE, fdn)
}

func (u *Uctx_t) Puts(s string) int {
	return u.Write(defs.FD_STDOUT, []uint8(s))
}
