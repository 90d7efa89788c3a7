package defs

const (
	SYS_HALT   = 0
	SYS_EXIT   = 1
	SYS_EXEC   = 2
	SYS_JOIN   = 3
	SYS_CREATE = 4
	SYS_OPEN   = 5
	SYS_READ   = 6
	SYS_WRITE  = 7
	SYS_CLOSE  = 8
	SYS_UNLINK = 9
)

var Sysnames = [...]string{
	SYS_HALT:   "halt",
	SYS_EXIT:   "exit",
	SYS_EXEC:   "exec",
	SYS_JOIN:   "join",
	SYS_CREATE: "create",
	SYS_OPEN:   "open",
	SYS_READ:   "read",
	SYS_WRITE:  "write",
	SYS_CLOSE:  "close",
	SYS_UNLINK: "unlink",
}

// fd numbers of the two console endpoints every process starts with
const (
	FD_STDIN  = 0
	FD_STDOUT = 1
)
