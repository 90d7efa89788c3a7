package ucpu

import "strconv"
import "strings"

import "github.com/canliroc/CS371/defs"

// the programs every processor knows
func Stdprogs() map[string]Uprog_f {
	return map[string]Uprog_f{
		"sh":    sh,
		"echo":  echo,
		"cat":   cat,
		"cp":    cp,
		"rm":    rm,
		"halt":  halt,
		"fault": fault,
	}
}

// runs each argument as a command line, waiting for each to finish. args
// are the command lines; the program name is not passed.
func sh(u *Uctx_t) int {
	ret := 0
	for _, line := range u.Args() {
		f, err := Cmdline(line)
		if err != nil {
			u.Puts("sh: " + err.Error() + "\n")
			ret = 1
			continue
		}
		if len(f) == 0 {
			continue
		}
		pid := u.Exec(f[0], f)
		if pid < 0 {
			u.Puts("sh: cannot run " + f[0] + "\n")
			ret = 1
			continue
		}
		if st := u.Join(pid); st != 0 {
			u.Puts("sh: " + f[0] + " exited with " + strconv.Itoa(st) + "\n")
			ret = 1
		}
	}
	return ret
}

// the arguments after the program name
func operands(u *Uctx_t) []string {
	args := u.Args()
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}

func echo(u *Uctx_t) int {
	u.Puts(strings.Join(operands(u), " ") + "\n")
	return 0
}

func copyfd(u *Uctx_t, dst, src int) bool {
	for {
		b := u.Read(src, 256)
		if b == nil {
			return false
		}
		if len(b) == 0 {
			return true
		}
		if u.Write(dst, b) != len(b) {
			return false
		}
	}
}

func cat(u *Uctx_t) int {
	ret := 0
	for _, n := range operands(u) {
		fdn := u.Open(n)
		if fdn < 0 {
			u.Puts("cat: " + n + ": cannot open\n")
			ret = 1
			continue
		}
		if !copyfd(u, defs.FD_STDOUT, fdn) {
			ret = 1
		}
		u.Close(fdn)
	}
	return ret
}

func cp(u *Uctx_t) int {
	args := u.Args()
	if len(args) != 3 {
		u.Puts("usage: cp src dst\n")
		return 2
	}
	src := u.Open(args[1])
	if src < 0 {
		u.Puts("cp: " + args[1] + ": cannot open\n")
		return 1
	}
	dst := u.Creat(args[2])
	if dst < 0 {
		u.Close(src)
		u.Puts("cp: " + args[2] + ": cannot create\n")
		return 1
	}
	ok := copyfd(u, dst, src)
	u.Close(src)
	u.Close(dst)
	if !ok {
		return 1
	}
	return 0
}

func rm(u *Uctx_t) int {
	ret := 0
	for _, n := range operands(u) {
		if u.Unlink(n) != 0 {
			u.Puts("rm: " + n + ": cannot unlink\n")
			ret = 1
		}
	}
	return ret
}

func halt(u *Uctx_t) int {
	u.Halt()
	return 0
}

// stores into its own text
func fault(u *Uctx_t) int {
	u.Store(0, []uint8{0xff})
	return 0
}
