package proc

import "context"
import "errors"
import "fmt"
import "log/slog"
import "sync"
import "sync/atomic"

import "github.com/canliroc/CS371/cons"
import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fd"
import "github.com/canliroc/CS371/fs"
import "github.com/canliroc/CS371/hashtable"
import "github.com/canliroc/CS371/limits"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/stats"
import "github.com/canliroc/CS371/vm"

type Pstate_t int

const (
	PS_LOADING Pstate_t = iota
	PS_RUNNING
	PS_EXITING
	PS_TERMINATED
)

func (s Pstate_t) String() string {
	switch s {
	case PS_LOADING:
		return "loading"
	case PS_RUNNING:
		return "running"
	case PS_EXITING:
		return "exiting"
	case PS_TERMINATED:
		return "terminated"
	}
	return "?"
}

var ErrNoProcs = errors.New("process limit reached")

// the state shared by every process: physical memory, the file store and its
// open-count registry, the console, the pid counter and the process table.
type Env_t struct {
	Phys       *mem.Physmem_t
	Fs         *fs.Fs_t
	Cons       *cons.Cons_t
	Stackpages int
	Limit      *limits.Syslimit_t
	Stats      *stats.Kstats_t
	// processes that are live or terminated but still joinable
	Ptable *hashtable.Hashtable_t[*Proc_t]
	Pids   Pidalloc_t
	// called once the last live process has terminated
	Shutdown func()
	nlive    int64
}

func MkEnv(phys *mem.Physmem_t, fsys *fs.Fs_t, c *cons.Cons_t, stackpages int,
	lim *limits.Syslimit_t) *Env_t {
	if lim == nil {
		lim = limits.Syslimit
	}
	return &Env_t{
		Phys:       phys,
		Fs:         fsys,
		Cons:       c,
		Stackpages: stackpages,
		Limit:      lim,
		Stats:      &stats.Kstats_t{},
		Ptable:     hashtable.MkHash[*Proc_t](128),
	}
}

// the number of processes that have been spawned but not yet terminated
func (env *Env_t) Nlive() int {
	return int(atomic.LoadInt64(&env.nlive))
}

func (env *Env_t) Proc_check(pid int) (*Proc_t, bool) {
	return env.Ptable.Get(pid)
}

type Proc_t struct {
	Pid  int
	Name string
	// -1 for the first process
	Ppid int

	Vm  vm.Vm_t
	Fdt fd.Fdtable_t
	// register file the process starts with
	Tf defs.Tf_t

	// state, children, and exitstatus are protected by the mutex
	sync.Mutex
	state      Pstate_t
	exitstatus int
	children   []int

	// the running image, held open for the life of the process
	exe    *fs.File_t
	env    *Env_t
	mywait Wait_t
	tonce  sync.Once
	reaped atomic.Bool
}

func (p *Proc_t) State() Pstate_t {
	p.Lock()
	defer p.Unlock()
	return p.state
}

func (p *Proc_t) Children() []int {
	p.Lock()
	defer p.Unlock()
	ret := make([]int, len(p.children))
	copy(ret, p.children)
	return ret
}

func (p *Proc_t) Exitstatus() int {
	p.Lock()
	defer p.Unlock()
	return p.exitstatus
}

// closed once the process has fully terminated
func (p *Proc_t) Done() <-chan struct{} {
	return p.mywait.Ch()
}

func (p *Proc_t) setstate(s Pstate_t) {
	p.Lock()
	p.state = s
	p.Unlock()
}

// creates a process running the executable name with arguments args. the
// process starts with the console at descriptors 0 and 1. on failure every
// resource taken is released and the process never becomes runnable.
func (env *Env_t) Proc_new(ctx context.Context, parent *Proc_t, name string,
	args []string) (*Proc_t, error) {
	if !env.Limit.Sysprocs.Take() {
		env.Stats.Nspawnerr.Inc()
		return nil, ErrNoProcs
	}
	p := &Proc_t{
		Pid:  env.Pids.Next(),
		Name: name,
		Ppid: -1,
		env:  env,
	}
	if parent != nil {
		p.Ppid = parent.Pid
	}
	p.mywait.Wait_init()
	p.state = PS_LOADING
	if env.Cons != nil {
		in := p.Fdt.Fd_insert(&fd.Fd_t{Fops: env.Cons.Openread(), Perms: fd.FD_READ})
		out := p.Fdt.Fd_insert(&fd.Fd_t{Fops: env.Cons.Openwrite(), Perms: fd.FD_WRITE})
		if in != defs.FD_STDIN || out != defs.FD_STDOUT {
			panic("console fds")
		}
	}

	if err := p.load(ctx, name, args); err != nil {
		slog.Debug("load failed", "pid", p.Pid, "name", name, "error", err)
		p.unload()
		env.Limit.Sysprocs.Give()
		env.Stats.Nspawnerr.Inc()
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}

	atomic.AddInt64(&env.nlive, 1)
	if _, ok := env.Ptable.Set(p.Pid, p); !ok {
		panic("pid exists")
	}
	p.setstate(PS_RUNNING)
	if parent != nil {
		parent.Lock()
		parent.children = append(parent.children, p.Pid)
		parent.Unlock()
	}
	env.Stats.Nspawn.Inc()
	slog.Debug("spawned", "pid", p.Pid, "ppid", p.Ppid, "name", name,
		"pages", p.Vm.Npages())
	return p, nil
}

// releases what a failed load acquired
func (p *Proc_t) unload() {
	p.Vm.Uvmfree()
	p.Fdt.Closeall()
	if p.exe != nil {
		p.exe.Close()
		p.exe = nil
	}
}

// waits for child cpid to terminate and returns its exit status. returns
// false without blocking if cpid is not a child of p.
func (p *Proc_t) Join(cpid int) (int, bool) {
	p.Lock()
	found := false
	for _, c := range p.children {
		if c == cpid {
			found = true
			break
		}
	}
	p.Unlock()
	if !found {
		return 0, false
	}
	c, ok := p.env.Ptable.Get(cpid)
	if !ok {
		panic("child reaped while parent alive")
	}
	return c.mywait.Reap(), true
}

// terminates the process with status. returns false if the process had
// already terminated.
func (p *Proc_t) Exit(status int) bool {
	did := p.terminate(status)
	if did {
		p.env.Stats.Nexit.Inc()
	}
	return did
}

// terminates the process after a protection fault.
func (p *Proc_t) Kill() bool {
	did := p.terminate(defs.FAULTSTATUS)
	if did {
		p.env.Stats.Nkill.Inc()
	}
	return did
}

// releases the address space and every descriptor, then wakes joiners. runs
// at most once per process.
func (p *Proc_t) terminate(status int) bool {
	did := false
	p.tonce.Do(func() {
		did = true
		p._terminate(status)
	})
	return did
}

func (p *Proc_t) _terminate(status int) {
	env := p.env
	p.Lock()
	if p.state != PS_RUNNING {
		panic(fmt.Sprintf("terminate in state %v", p.state))
	}
	p.state = PS_EXITING
	p.exitstatus = status
	p.Unlock()

	npg := p.Vm.Uvmfree()
	nfd := p.Fdt.Closeall()
	if p.exe != nil {
		p.exe.Close()
		p.exe = nil
	}
	env.Limit.Sysprocs.Give()
	slog.Debug("terminated", "pid", p.Pid, "status", status, "pages", npg,
		"fds", nfd)

	last := atomic.AddInt64(&env.nlive, -1)
	if last < 0 {
		panic("negative live processes")
	}
	if last == 0 && env.Shutdown != nil {
		env.Shutdown()
	}

	p.setstate(PS_TERMINATED)
	p.mywait.putstatus(status)

	// a terminated process stays in the table while its parent can still
	// join it
	if par, ok := env.Ptable.Get(p.Ppid); !ok || par.mywait.Posted() {
		p.reap()
	}
	for _, cpid := range p.Children() {
		if c, ok := env.Ptable.Get(cpid); ok && c.mywait.Posted() {
			c.reap()
		}
	}
}

func (p *Proc_t) reap() {
	if p.reaped.CompareAndSwap(false, true) {
		p.env.Ptable.Del(p.Pid)
	}
}
