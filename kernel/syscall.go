package kernel

import "errors"
import "log/slog"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fd"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/proc"
import "github.com/canliroc/CS371/tracing"

// dispatches the syscall whose number and arguments are in tf. returns the
// value for TF_V0; failures are -1.
func (k *Kernel_t) Syscall(p *proc.Proc_t, tf *defs.Tf_t) int {
	sysno := tf[defs.TF_V0]
	if sysno < 0 || sysno >= len(defs.Sysnames) {
		panic("unknown syscall")
	}
	a0 := tf[defs.TF_A0]
	a1 := tf[defs.TF_A1]
	a2 := tf[defs.TF_A2]

	k.Env.Stats.Nsyscall.Inc()
	_, sp := tracing.StartSpan(k.ctx, "sys_"+defs.Sysnames[sysno])
	sp.SetInt("pid", p.Pid).SetInt("a0", a0).SetInt("a1", a1).SetInt("a2", a2)

	var ret int
	var err defs.Err_t
	switch sysno {
	case defs.SYS_HALT:
		ret, err = k.sys_halt(p)
	case defs.SYS_EXIT:
		ret, err = k.sys_exit(p, a0)
	case defs.SYS_EXEC:
		ret, err = k.sys_exec(p, a0, a1, a2)
	case defs.SYS_JOIN:
		ret, err = k.sys_join(p, a0)
	case defs.SYS_CREATE:
		ret, err = k.sys_open(p, a0, true)
	case defs.SYS_OPEN:
		ret, err = k.sys_open(p, a0, false)
	case defs.SYS_READ:
		ret, err = k.sys_read(p, a0, a1, a2)
	case defs.SYS_WRITE:
		ret, err = k.sys_write(p, a0, a1, a2)
	case defs.SYS_CLOSE:
		ret, err = k.sys_close(p, a0)
	case defs.SYS_UNLINK:
		ret, err = k.sys_unlink(p, a0)
	default:
		panic("unknown syscall")
	}

	if err != 0 {
		slog.Debug("syscall failed", "pid", p.Pid,
			"syscall", defs.Sysnames[sysno], "err", err)
		tracing.EndSpan(sp, errors.New(err.String()))
		return -1
	}
	tracing.EndSpan(sp.SetInt("ret", ret), nil)
	return ret
}

func (k *Kernel_t) sys_halt(p *proc.Proc_t) (int, defs.Err_t) {
	if p.Pid != 0 {
		slog.Debug("only the root process can halt the machine", "pid", p.Pid)
		return 0, 0
	}
	k.Halt()
	return 0, 0
}

func (k *Kernel_t) sys_exit(p *proc.Proc_t, status int) (int, defs.Err_t) {
	p.Exit(status)
	return 0, 0
}

func (k *Kernel_t) username(p *proc.Proc_t, uva int) (string, defs.Err_t) {
	s, ok := p.Vm.Userstr(uva, k.Env.Limit.Namemax)
	if !ok {
		return "", -defs.ENAMETOOLONG
	}
	return s.String(), 0
}

func (k *Kernel_t) sys_exec(p *proc.Proc_t, namea, argc, argva int) (int, defs.Err_t) {
	name, err := k.username(p, namea)
	if err != 0 {
		return 0, err
	}
	// each argument takes at least a pointer and a NUL
	if argc < 0 || argc > mem.PGSIZE/5 {
		return 0, -defs.E2BIG
	}
	args := make([]string, 0, argc)
	for i := 0; i < argc; i++ {
		ptr, ok := p.Vm.Userreadn(argva+4*i, 4)
		if !ok {
			return 0, -defs.EFAULT
		}
		s, ok := p.Vm.Userstr(ptr, k.Env.Limit.Argmax)
		if !ok {
			return 0, -defs.EFAULT
		}
		args = append(args, s.String())
	}
	child, lerr := k.Spawn(p, name, args)
	if lerr != nil {
		slog.Debug("exec failed", "pid", p.Pid, "name", name, "error", lerr)
		switch {
		case errors.Is(lerr, proc.ErrNoMem), errors.Is(lerr, proc.ErrNoProcs):
			return 0, -defs.ENOMEM
		case errors.Is(lerr, proc.ErrArgsTooLong):
			return 0, -defs.E2BIG
		case errors.Is(lerr, proc.ErrNoExec):
			return 0, -defs.ENOENT
		}
		return 0, -defs.ENOEXEC
	}
	return child.Pid, 0
}

func (k *Kernel_t) sys_join(p *proc.Proc_t, pid int) (int, defs.Err_t) {
	st, ok := p.Join(pid)
	if !ok {
		return 0, -defs.ECHILD
	}
	return st, 0
}

func (k *Kernel_t) sys_open(p *proc.Proc_t, namea int, create bool) (int, defs.Err_t) {
	name, err := k.username(p, namea)
	if err != 0 {
		return 0, err
	}
	f, err := k.Fs.Fs_open(k.ctx, name, create)
	if err != 0 {
		return 0, err
	}
	fdn := p.Fdt.Fd_insert(&fd.Fd_t{Fops: f, Perms: fd.FD_READ | fd.FD_WRITE})
	slog.Debug("opened", "pid", p.Pid, "name", name, "fd", fdn)
	return fdn, 0
}

func (k *Kernel_t) sys_read(p *proc.Proc_t, fdn, bufa, sz int) (int, defs.Err_t) {
	if sz < 0 {
		return 0, -defs.EINVAL
	}
	f, ok := p.Fdt.Fd_get(fdn)
	if !ok || f.Perms&fd.FD_READ == 0 {
		return 0, -defs.EBADF
	}
	// refuse before the handle consumes any input
	ub := p.Vm.Mkuserbuf(bufa, sz)
	if sz != 0 && ub.Totalsz() == 0 {
		return 0, -defs.EFAULT
	}
	if !p.Vm.Userwritable(bufa, ub.Totalsz()) {
		return 0, -defs.EFAULT
	}
	return f.Fops.Read(ub)
}

func (k *Kernel_t) sys_write(p *proc.Proc_t, fdn, bufa, sz int) (int, defs.Err_t) {
	if sz < 0 {
		return 0, -defs.EINVAL
	}
	f, ok := p.Fdt.Fd_get(fdn)
	if !ok || f.Perms&fd.FD_WRITE == 0 {
		return 0, -defs.EBADF
	}
	ub := p.Vm.Mkuserbuf(bufa, sz)
	if sz != 0 && ub.Totalsz() == 0 {
		return 0, -defs.EFAULT
	}
	return f.Fops.Write(ub)
}

func (k *Kernel_t) sys_close(p *proc.Proc_t, fdn int) (int, defs.Err_t) {
	return 0, p.Fdt.Fd_close(fdn)
}

func (k *Kernel_t) sys_unlink(p *proc.Proc_t, namea int) (int, defs.Err_t) {
	name, err := k.username(p, namea)
	if err != 0 {
		return 0, err
	}
	return 0, k.Fs.Fs_unlink(k.ctx, name)
}
