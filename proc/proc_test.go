package proc

import "bytes"
import "context"
import "errors"
import "strings"
import "sync"
import "testing"
import "time"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/canliroc/CS371/coff"
import "github.com/canliroc/CS371/cons"
import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fs"
import "github.com/canliroc/CS371/limits"
import "github.com/canliroc/CS371/mem"

import "github.com/viant/afs"

type tenv_t struct {
	*Env_t
	out       bytes.Buffer
	shutdowns int
}

func mkenv(t *testing.T, npages int) *tenv_t {
	root := "mem://localhost/proctest/" + strings.ReplaceAll(t.Name(), "/", "_")
	fsys := fs.MkFs(afs.New(), root)
	te := &tenv_t{}
	c := cons.MkCons(strings.NewReader(""), &te.out, fsys.Oc)
	te.Env_t = MkEnv(mem.Phys_init(npages), fsys, c, 8, limits.MkSysLimit(100))
	te.Shutdown = func() { te.shutdowns++ }
	return te
}

// an executable with textpg read-only pages followed by one data page
func prog(textpg int) []uint8 {
	secs := []coff.Secspec_t{
		{Name: ".text", Vaddr: 0, Flags: coff.STYP_TEXT,
			Data: bytes.Repeat([]uint8{0x11}, textpg*mem.PGSIZE)},
		{Name: ".data", Vaddr: textpg * mem.PGSIZE, Flags: coff.STYP_DATA,
			Data: []uint8("hello")},
	}
	return coff.Build(0x100, secs)
}

func install(t *testing.T, te *tenv_t, name string, img []uint8) {
	require.NoError(t, te.Fs.Fs_install(context.Background(), name, img))
}

func TestPidalloc(t *testing.T) {
	var pa Pidalloc_t
	assert.Equal(t, 0, pa.Next())
	assert.Equal(t, 1, pa.Next())

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := pa.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
	assert.Equal(t, 402, pa.Next())
}

func TestSpawnExitReclaims(t *testing.T) {
	te := mkenv(t, 12)
	install(t, te, "prog.coff", prog(2))

	p, err := te.Proc_new(context.Background(), nil, "prog.coff", []string{"x", "yy"})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Pid)
	assert.Equal(t, PS_RUNNING, p.State())
	assert.Equal(t, 0, te.Phys.Pgcount())
	assert.Equal(t, 12, p.Vm.Npages())
	assert.Equal(t, 1, te.Nlive())

	pte, _ := p.Vm.Pte(0)
	assert.True(t, pte.Readonly)
	pte, _ = p.Vm.Pte(1)
	assert.True(t, pte.Readonly)
	pte, _ = p.Vm.Pte(2)
	assert.False(t, pte.Readonly)

	assert.Equal(t, 0x100, p.Tf[defs.TF_PC])
	assert.Equal(t, 0x104, p.Tf[defs.TF_NEXTPC])
	assert.Equal(t, 11*mem.PGSIZE, p.Tf[defs.TF_SP])
	assert.Equal(t, 2, p.Tf[defs.TF_A0])
	assert.Equal(t, 11*mem.PGSIZE, p.Tf[defs.TF_A1])
	assert.Equal(t, 0, p.Tf[defs.TF_V0])

	// section contents
	s, ok := p.Vm.Userstr(2*mem.PGSIZE, 16)
	require.True(t, ok)
	assert.Equal(t, "hello", s.String())

	oc := te.Fs.Oc
	assert.Equal(t, 2, oc.Count(te.Cons.Key()))
	assert.Equal(t, 1, oc.Count(te.Fs.Key("prog.coff")))

	assert.True(t, p.Exit(7))
	assert.Equal(t, PS_TERMINATED, p.State())
	assert.Equal(t, 12, te.Phys.Pgcount())
	assert.Equal(t, 0, te.Nlive())
	assert.Equal(t, 1, te.shutdowns)
	assert.Equal(t, 0, oc.Len())
	assert.Equal(t, 7, p.Exitstatus())
	assert.Equal(t, int64(1), te.Stats.Nexit.Get())
}

func TestArgumentLayout(t *testing.T) {
	te := mkenv(t, 16)
	install(t, te, "p", prog(1))
	p, err := te.Proc_new(context.Background(), nil, "p", []string{"a", "bb"})
	require.NoError(t, err)

	argc := p.Tf[defs.TF_A0]
	argv := p.Tf[defs.TF_A1]
	require.Equal(t, 2, argc)
	assert.Equal(t, (p.Vm.Npages()-1)*mem.PGSIZE, argv)

	p0, ok := p.Vm.Userreadn(argv, 4)
	require.True(t, ok)
	p1, ok := p.Vm.Userreadn(argv+4, 4)
	require.True(t, ok)
	assert.Equal(t, argv+8, p0)
	assert.Equal(t, p0+2, p1)

	s, ok := p.Vm.Userstr(p0, 256)
	require.True(t, ok)
	assert.Equal(t, "a", s.String())
	s, ok = p.Vm.Userstr(p1, 256)
	require.True(t, ok)
	assert.Equal(t, "bb", s.String())
	z, _ := p.Vm.Userreadn(p1+2, 1)
	assert.Equal(t, 0, z)
	p.Exit(0)
}

func TestLoadFailuresReleaseEverything(t *testing.T) {
	te := mkenv(t, 11)
	install(t, te, "big", prog(2))
	install(t, te, "junk", bytes.Repeat([]uint8("#!/bin/sh\n"), 20))
	frag := coff.Build(0, []coff.Secspec_t{
		{Name: ".text", Vaddr: 0, Flags: coff.STYP_TEXT, Data: []uint8{1}},
		{Name: ".data", Vaddr: 2 * mem.PGSIZE, Flags: coff.STYP_DATA, Data: []uint8{2}},
	})
	install(t, te, "frag", frag)
	install(t, te, "small", prog(0))

	long := strings.Repeat("z", mem.PGSIZE)
	cases := []struct {
		name string
		args []string
		want error
	}{
		{"missing", nil, ErrNoExec},
		{"big", nil, ErrNoMem},
		{"junk", nil, coff.ErrBadMagic},
		{"frag", nil, ErrFragmented},
		{"small", []string{long}, ErrArgsTooLong},
	}
	for _, c := range cases {
		_, err := te.Proc_new(context.Background(), nil, c.name, c.args)
		assert.True(t, errors.Is(err, c.want), "%s: %v", c.name, err)
		assert.Equal(t, 11, te.Phys.Pgcount(), c.name)
		assert.Equal(t, 0, te.Fs.Oc.Len(), c.name)
		assert.Equal(t, 0, te.Nlive(), c.name)
		assert.Equal(t, 0, te.Ptable.Size(), c.name)
	}
	assert.Equal(t, 100, te.Limit.Sysprocs.Remain())
	assert.Equal(t, int64(len(cases)), te.Stats.Nspawnerr.Get())
	assert.Equal(t, 0, te.shutdowns)

	// exactly one page argument fits
	exact := strings.Repeat("q", mem.PGSIZE-5)
	p, err := te.Proc_new(context.Background(), nil, "small", []string{exact})
	require.NoError(t, err)
	p.Exit(0)
}

func TestJoin(t *testing.T) {
	te := mkenv(t, 40)
	install(t, te, "p", prog(1))
	ctx := context.Background()
	parent, err := te.Proc_new(ctx, nil, "p", nil)
	require.NoError(t, err)

	// not a child
	_, ok := parent.Join(12345)
	assert.False(t, ok)

	c1, err := te.Proc_new(ctx, parent, "p", nil)
	require.NoError(t, err)
	c2, err := te.Proc_new(ctx, parent, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{c1.Pid, c2.Pid}, parent.Children())
	assert.Equal(t, parent.Pid, c1.Ppid)

	// a sibling is not a child
	_, ok = c1.Join(c2.Pid)
	assert.False(t, ok)

	// already exited
	c1.Exit(3)
	st, ok := parent.Join(c1.Pid)
	assert.True(t, ok)
	assert.Equal(t, 3, st)
	// still joinable
	st, _ = parent.Join(c1.Pid)
	assert.Equal(t, 3, st)

	// blocks until exit
	type res_t struct {
		st   int
		free int
	}
	ch := make(chan res_t)
	go func() {
		st, _ := parent.Join(c2.Pid)
		ch <- res_t{st, te.Phys.Pgcount()}
	}()
	select {
	case <-ch:
		t.Fatal("join returned before exit")
	case <-time.After(50 * time.Millisecond):
	}
	c2.Exit(5)
	r := <-ch
	assert.Equal(t, 5, r.st)
	// the child's frames were back before the joiner woke
	assert.Equal(t, 40-11, r.free)

	assert.Equal(t, 0, te.shutdowns)
	parent.Exit(0)
	assert.Equal(t, 1, te.shutdowns)
	assert.Equal(t, 40, te.Phys.Pgcount())
	// nobody can join them anymore
	assert.Equal(t, 0, te.Ptable.Size())
}

func TestOrphanReapsItself(t *testing.T) {
	te := mkenv(t, 30)
	install(t, te, "p", prog(1))
	ctx := context.Background()
	parent, _ := te.Proc_new(ctx, nil, "p", nil)
	child, err := te.Proc_new(ctx, parent, "p", nil)
	require.NoError(t, err)

	parent.Exit(0)
	_, ok := te.Proc_check(parent.Pid)
	assert.False(t, ok)
	_, ok = te.Proc_check(child.Pid)
	assert.True(t, ok)
	assert.Equal(t, 0, te.shutdowns)

	child.Exit(1)
	_, ok = te.Proc_check(child.Pid)
	assert.False(t, ok)
	assert.Equal(t, 1, te.shutdowns)
}

func TestTerminateOnce(t *testing.T) {
	te := mkenv(t, 12)
	install(t, te, "p", prog(1))
	p, err := te.Proc_new(context.Background(), nil, "p", nil)
	require.NoError(t, err)

	assert.True(t, p.Kill())
	assert.False(t, p.Exit(0))
	assert.False(t, p.Kill())
	assert.Equal(t, defs.FAULTSTATUS, p.Exitstatus())
	assert.Equal(t, 12, te.Phys.Pgcount())
	assert.Equal(t, 1, te.shutdowns)
	assert.Equal(t, int64(1), te.Stats.Nkill.Get())
	assert.Equal(t, int64(0), te.Stats.Nexit.Get())
	select {
	case <-p.Done():
	default:
		t.Fatal("rendezvous not posted")
	}
}

func TestRunningImageUnlinkDeferred(t *testing.T) {
	te := mkenv(t, 12)
	ctx := context.Background()
	install(t, te, "p", prog(1))
	p, err := te.Proc_new(ctx, nil, "p", nil)
	require.NoError(t, err)

	assert.Equal(t, defs.Err_t(0), te.Fs.Fs_unlink(ctx, "p"))
	assert.True(t, te.Fs.Fs_exists(ctx, "p"))
	_, err = te.Proc_new(ctx, nil, "p", nil)
	assert.True(t, errors.Is(err, ErrNoExec))

	p.Exit(0)
	assert.False(t, te.Fs.Fs_exists(ctx, "p"))
}

func TestProcessLimit(t *testing.T) {
	te := mkenv(t, 40)
	te.Limit = limits.MkSysLimit(1)
	install(t, te, "p", prog(1))
	ctx := context.Background()
	p, err := te.Proc_new(ctx, nil, "p", nil)
	require.NoError(t, err)
	_, err = te.Proc_new(ctx, p, "p", nil)
	assert.True(t, errors.Is(err, ErrNoProcs))
	p.Exit(0)
	p2, err := te.Proc_new(ctx, nil, "p", nil)
	require.NoError(t, err)
	p2.Exit(0)
}
