package kernel

import "context"
import "fmt"
import "io"
import "log/slog"
import "sync"

import "github.com/canliroc/CS371/cons"
import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fs"
import "github.com/canliroc/CS371/internal/idgen"
import "github.com/canliroc/CS371/limits"
import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/proc"
import "github.com/canliroc/CS371/stats"

import "github.com/viant/afs"

// a processor. Run executes p's user code from the registers in tf until the
// next exception, whose cause it leaves in tf[TF_CAUSE] (and the faulting
// address in tf[TF_BADVADDR]). the syscall result from the previous trap is
// in tf[TF_V0].
type Cpu_i interface {
	Run(p *proc.Proc_t, tf *defs.Tf_t)
}

type Kernel_t struct {
	Config *Config
	// boot instance id
	Id   string
	Phys *mem.Physmem_t
	Fs   *fs.Fs_t
	Cons *cons.Cons_t
	Env  *proc.Env_t

	cpu      Cpu_i
	ctx      context.Context
	halt     chan struct{}
	haltonce sync.Once
	wg       sync.WaitGroup
}

// builds a kernel whose file store lives under cfg.Fsroot in store and whose
// console reads in and writes out.
func MkKernel(ctx context.Context, cfg *Config, store afs.Service, in io.Reader,
	out io.Writer, cpu Cpu_i) (*Kernel_t, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel_t{
		Config: cfg,
		Id:     idgen.New(),
		Phys:   mem.Phys_init(cfg.Physpages),
		Fs:     fs.MkFs(store, cfg.Fsroot),
		cpu:    cpu,
		ctx:    ctx,
		halt:   make(chan struct{}),
	}
	k.Cons = cons.MkCons(in, out, k.Fs.Oc)
	k.Env = proc.MkEnv(k.Phys, k.Fs, k.Cons, cfg.Stackpages,
		limits.MkSysLimit(cfg.Maxprocs))
	k.Fs.Oc.Ndeferred = &k.Env.Stats.Ndeferdel
	k.Env.Shutdown = func() {
		slog.Info("no processes left")
		k.Halt()
	}
	return k, nil
}

// starts the shell as the first process.
func (k *Kernel_t) Boot() error {
	slog.Info("booting", "id", k.Id, "physpages", k.Config.Physpages,
		"fsroot", k.Config.Fsroot, "shell", k.Config.Shell)
	if _, err := k.Spawn(nil, k.Config.Shell, k.Config.Shellargs); err != nil {
		return fmt.Errorf("failed to start %s: %w", k.Config.Shell, err)
	}
	return nil
}

// creates a process and starts running it.
func (k *Kernel_t) Spawn(parent *proc.Proc_t, name string, args []string) (*proc.Proc_t, error) {
	p, err := k.Env.Proc_new(k.ctx, parent, name, args)
	if err != nil {
		return nil, err
	}
	k.wg.Add(1)
	go k.run(p)
	return p, nil
}

func (k *Kernel_t) run(p *proc.Proc_t) {
	defer k.wg.Done()
	tf := p.Tf
	for {
		select {
		case <-p.Done():
			return
		case <-k.halt:
			return
		default:
		}
		k.cpu.Run(p, &tf)
		k.Trap(p, &tf)
	}
}

// handles the exception recorded in tf for p.
func (k *Kernel_t) Trap(p *proc.Proc_t, tf *defs.Tf_t) {
	cause := tf[defs.TF_CAUSE]
	switch cause {
	case defs.EXC_SYSCALL:
		tf[defs.TF_V0] = k.Syscall(p, tf)
		tf[defs.TF_PC] = tf[defs.TF_NEXTPC]
		tf[defs.TF_NEXTPC] += 4
	case defs.EXC_READONLY, defs.EXC_BUSERR:
		k.Env.Stats.Nfault.Inc()
		slog.Warn("killing process", "pid", p.Pid, "name", p.Name,
			"fault", defs.Excname(cause), "addr", tf[defs.TF_BADVADDR])
		p.Kill()
	default:
		panic(fmt.Sprintf("pid %d: unexpected exception %v at %#x", p.Pid,
			defs.Excname(cause), tf[defs.TF_BADVADDR]))
	}
}

func (k *Kernel_t) Halt() {
	k.haltonce.Do(func() {
		slog.Info("halting", "id", k.Id)
		close(k.halt)
	})
}

// closed once the kernel halts
func (k *Kernel_t) Halted() <-chan struct{} {
	return k.halt
}

// waits for every process goroutine to stop
func (k *Kernel_t) Wait() {
	k.wg.Wait()
}

func (k *Kernel_t) Stats() *stats.Kstats_t {
	return k.Env.Stats
}
