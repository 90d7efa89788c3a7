package defs

// processor exception causes, as reported in TF_CAUSE
const (
	EXC_SYSCALL  = 0
	EXC_PGFAULT  = 1
	EXC_TLBMISS  = 2
	EXC_READONLY = 3
	EXC_BUSERR   = 4
	EXC_ADDRERR  = 5
	EXC_OVERFLOW = 6
	EXC_ILLEGAL  = 7
)

var Excnames = [...]string{
	EXC_SYSCALL:  "syscall",
	EXC_PGFAULT:  "page fault",
	EXC_TLBMISS:  "TLB miss",
	EXC_READONLY: "read-only",
	EXC_BUSERR:   "bus error",
	EXC_ADDRERR:  "address error",
	EXC_OVERFLOW: "overflow",
	EXC_ILLEGAL:  "illegal instruction",
}

func Excname(cause int) string {
	if cause < 0 || cause >= len(Excnames) {
		return "unknown"
	}
	return Excnames[cause]
}

// register file slots. the syscall number is passed in TF_V0, arguments in
// TF_A0-TF_A3, and the result is returned in TF_V0.
const (
	TF_V0       = 2
	TF_V1       = 3
	TF_A0       = 4
	TF_A1       = 5
	TF_A2       = 6
	TF_A3       = 7
	TF_SP       = 29
	TF_RA       = 31
	TF_LO       = 32
	TF_HI       = 33
	TF_PC       = 34
	TF_NEXTPC   = 35
	TF_CAUSE    = 36
	TF_BADVADDR = 37
	TFSIZE      = 38
)

type Tf_t [TFSIZE]int

// the exit status recorded for a process killed by a fault
const FAULTSTATUS = -1
