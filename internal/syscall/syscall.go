// Package syscall implements the core's 21-entry syscall ABI (spec.md
// §4.7, numbered table in §6.2): argument registers x0-x6, return values
// in x0 (primary), x1 (secondary), and an error code in x7.
//
// Grounded on the teacher's syscall.go (SyscallClose/
// SyscallSchedGetaffinity shape: each handler reads its arguments straight
// out of the trap frame and writes its result back into the same frame;
// the handlers here carry no go:nosplit directive) and on spec.md §4.7's
// per-handler notes. Where the
// teacher fakes Linux syscall numbers for an embedded Go runtime, this
// package instead implements the fixed application ABI of §6.2.
package syscall

import (
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/trapframe"
)

// ErrCode is the value syscalls return in x7 — spec.md §6.2's fixed
// enumeration.
type ErrCode uint64

const (
	Ok ErrCode = iota
	NoMemory
	BadAddress
	InvalidArgument
	NoEntry
	InvalidFile
	InvalidDirectory
	IoError
	IoErrorEof
	InvalidSocket
	IllegalSocketOperation
	Unknown
)

// Syscall numbers, spec.md §6.2.
const (
	Sleep = 1
	Time  = 2
	Exit  = 3

	Getpid   = 4
	Write    = 5
	WriteStr = 6
	Open     = 7
	Close    = 8
	Read     = 9
	Seek     = 10
	Len      = 11
	Readdir  = 12
	Exec     = 13
	Fork     = 14
	Waitpid  = 15

	SockCreate  = 16
	SockStatus  = 17
	SockConnect = 18
	SockListen  = 19
	SockSend    = 20
	SockRecv    = 21
)

// Clock returns the current time as (seconds, nanoseconds) for the `time`
// syscall. cmd/kernel wires it to internal/arch's counter during boot; the
// default returns (0, 0).
var Clock = func() (int64, int64) { return 0, 0 }

// Table routes a syscall number to its handler. Built once in init() so
// Dispatch is a simple slice index, matching spec.md §6.2's flat numeric
// contract.
type handlerFunc func(s Scheduler, p *process.Process, tf *trapframe.Frame)

var table [SockRecv + 1]handlerFunc

func init() {
	table[Sleep] = sysSleep
	table[Time] = sysTime
	table[Exit] = sysExit
	table[Getpid] = sysGetpid
	table[Write] = sysWrite
	table[WriteStr] = sysWriteStr
	table[Open] = sysOpen
	table[Close] = sysClose
	table[Read] = sysRead
	table[Seek] = sysSeek
	table[Len] = sysLen
	table[Readdir] = sysReaddir
	table[Exec] = sysExec
	table[Fork] = sysFork
	table[Waitpid] = sysWaitpid
	table[SockCreate] = sysSockCreate
	table[SockStatus] = sysSockStatus
	table[SockConnect] = sysSockConnect
	table[SockListen] = sysSockListen
	table[SockSend] = sysSockSend
	table[SockRecv] = sysSockRecv
}

// Scheduler is the thin dependency set a syscall handler needs, satisfied
// by *sched.Scheduler. Kept as an interface so this package's tests can
// supply a fake scheduler without wiring a real one.
type Scheduler interface {
	WithCurrentProcess(tpidr uint64, fn func(p *process.Process)) bool
	Switch(newState process.State, tf *trapframe.Frame) uint64
	Block(newState process.State, tf *trapframe.Frame) uint64
	Kill(tf *trapframe.Frame) (uint64, bool)
	Add(p *process.Process) uint64
}

// Current is the live scheduler Dispatch looks processes up in. Set once
// during boot to the real *sched.Scheduler.
var Current Scheduler

// Loader is the filesystem Exec/Open read through. Set once during boot.
var Loader process.Loader

// Dispatch is wired to internal/irq.Dispatch: looks up the process
// currently running with tf.TPIDR and invokes syscall n's handler. An
// out-of-range n, or a tpidr with no matching process, sets Unknown in x7
// and changes nothing else.
func Dispatch(n uint64, tf *trapframe.Frame) {
	if Current == nil || n >= uint64(len(table)) || table[n] == nil {
		tf.SetArg(7, uint64(Unknown))
		return
	}
	h := table[n]
	found := Current.WithCurrentProcess(tf.TPIDR, func(p *process.Process) {
		h(Current, p, tf)
	})
	if !found {
		tf.SetArg(7, uint64(Unknown))
	}
}

func setOk(tf *trapframe.Frame) { tf.SetArg(7, uint64(Ok)) }

func setErr(tf *trapframe.Frame, code ErrCode) { tf.SetArg(7, uint64(code)) }
