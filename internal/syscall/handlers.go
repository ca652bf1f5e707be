package syscall

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
)

// NowMillis is the monotonic millisecond clock `sleep` measures elapsed
// time against. cmd/kernel wires it to internal/arch's counter during
// boot; the default returns 0.
var NowMillis = func() int64 { return 0 }

func fileAt(p *process.Process, fd uint64) (*process.ProcessFile, bool) {
	if fd >= uint64(len(p.Files)) || p.Files[fd] == nil {
		return nil, false
	}
	return p.Files[fd], true
}

func allocFD(p *process.Process, f process.File) (int, bool) {
	for i, pf := range p.Files {
		if pf == nil {
			p.Files[i] = &process.ProcessFile{File: f}
			return i, true
		}
	}
	return 0, false
}

// readCString reads a NUL-terminated string out of user memory, validating
// every chunk touched against vm.InUserRange before reading it.
func readCString(p *process.Process, ptr uintptr) (string, error) {
	const chunk = 64
	const maxLen = 4096
	var buf []byte
	for {
		if !vm.InUserRange(ptr+uintptr(len(buf)), chunk) {
			return "", fmt.Errorf("syscall: path pointer out of range")
		}
		tmp := make([]byte, chunk)
		if _, err := p.UserTable.ReadAt(ptr+uintptr(len(buf)), tmp); err != nil {
			return "", err
		}
		if i := indexByte(tmp, 0); i >= 0 {
			return string(append(buf, tmp[:i]...)), nil
		}
		buf = append(buf, tmp...)
		if len(buf) > maxLen {
			return "", fmt.Errorf("syscall: path exceeds %d bytes", maxLen)
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// readArgvBlock decodes spec.md §6.2's argv block: an argc little-endian
// u64 followed by argc pointers, each to a NUL-terminated string.
func readArgvBlock(p *process.Process, ptr uintptr) ([]string, error) {
	if !vm.InUserRange(ptr, 8) {
		return nil, fmt.Errorf("syscall: argv header out of range")
	}
	var hdr [8]byte
	if _, err := p.UserTable.ReadAt(ptr, hdr[:]); err != nil {
		return nil, err
	}
	argc := binary.LittleEndian.Uint64(hdr[:])

	argv := make([]string, 0, argc)
	for i := uint64(0); i < argc; i++ {
		entryAddr := ptr + 8 + uintptr(i)*8
		if !vm.InUserRange(entryAddr, 8) {
			return nil, fmt.Errorf("syscall: argv entry %d out of range", i)
		}
		var pbuf [8]byte
		if _, err := p.UserTable.ReadAt(entryAddr, pbuf[:]); err != nil {
			return nil, err
		}
		s, err := readCString(p, uintptr(binary.LittleEndian.Uint64(pbuf[:])))
		if err != nil {
			return nil, err
		}
		argv = append(argv, s)
	}
	return argv, nil
}

// sysSleep implements spec.md §4.7: install a Waiting poll comparing the
// current time against a captured deadline; once satisfied, the poll
// writes elapsed milliseconds into x0 and Ok into x7.
func sysSleep(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	ms := int64(tf.Arg(0))
	start := NowMillis()
	deadline := start + ms

	waiting := process.State{Kind: process.Waiting, Poll: func(pp *process.Process) bool {
		now := NowMillis()
		if now < deadline {
			return false
		}
		pp.TrapFrame.SetArg(0, uint64(now-start))
		pp.TrapFrame.SetArg(7, uint64(Ok))
		return true
	}}
	s.Block(waiting, tf)
}

func sysTime(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	sec, nsec := Clock()
	tf.SetArg(0, uint64(sec))
	tf.SetArg(1, uint64(nsec))
	setOk(tf)
}

// sysExit implements spec.md §4.7: marks the parent's child-status done,
// removes the process from the scheduler, and falls through to the idle
// thread (it never returns to userspace).
func sysExit(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	if p.Parent != nil {
		p.Parent.SetExitCode(int32(tf.Arg(0)))
	}
	s.Kill(tf)
	s.Block(process.State{Kind: process.Dead}, tf)
}

func sysGetpid(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	tf.SetArg(0, p.ID)
	setOk(tf)
}

func sysWrite(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd, buf, length := tf.Arg(0), uintptr(tf.Arg(1)), tf.Arg(2)
	pf, ok := fileAt(p, fd)
	if !ok || !pf.File.IsWritable() {
		setErr(tf, InvalidFile)
		return
	}
	if !vm.InUserRange(buf, uintptr(length)) {
		setErr(tf, BadAddress)
		return
	}
	data := make([]byte, length)
	if _, err := p.UserTable.ReadAt(buf, data); err != nil {
		setErr(tf, BadAddress)
		return
	}
	n, err := pf.File.Write(data)
	if err != nil {
		setErr(tf, IoError)
		return
	}
	tf.SetArg(0, uint64(n))
	setOk(tf)
}

// sysWriteStr implements spec.md §6.2's write_str: an unbuffered write
// straight to fd 1 (console stdout), bypassing the fd argument write(2)
// needs.
func sysWriteStr(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	buf, length := uintptr(tf.Arg(0)), tf.Arg(1)
	pf, ok := fileAt(p, 1)
	if !ok {
		setErr(tf, InvalidFile)
		return
	}
	if !vm.InUserRange(buf, uintptr(length)) {
		setErr(tf, BadAddress)
		return
	}
	data := make([]byte, length)
	if _, err := p.UserTable.ReadAt(buf, data); err != nil {
		setErr(tf, BadAddress)
		return
	}
	n, err := pf.File.Write(data)
	if err != nil {
		setErr(tf, IoError)
		return
	}
	tf.SetArg(0, uint64(n))
	setOk(tf)
}

func sysOpen(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	path, err := readCString(p, uintptr(tf.Arg(0)))
	if err != nil {
		setErr(tf, BadAddress)
		return
	}
	if Loader == nil {
		setErr(tf, NoEntry)
		return
	}
	f, err := Loader.Open(path)
	if err != nil {
		setErr(tf, NoEntry)
		return
	}
	fd, ok := allocFD(p, f)
	if !ok {
		setErr(tf, NoMemory)
		return
	}
	tf.SetArg(0, uint64(fd))
	setOk(tf)
}

func sysClose(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd := tf.Arg(0)
	if _, ok := fileAt(p, fd); !ok {
		setErr(tf, InvalidFile)
		return
	}
	p.Files[fd] = nil
	setOk(tf)
}

func sysRead(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd, buf, length := tf.Arg(0), uintptr(tf.Arg(1)), tf.Arg(2)
	pf, ok := fileAt(p, fd)
	if !ok || !pf.File.IsReadable() {
		setErr(tf, InvalidFile)
		return
	}
	if !vm.InUserRange(buf, uintptr(length)) {
		setErr(tf, BadAddress)
		return
	}
	data := make([]byte, length)
	n, err := pf.File.Read(data)
	if err != nil && n == 0 {
		setErr(tf, IoErrorEof)
		return
	}
	if _, err := p.UserTable.WriteAt(buf, data[:n]); err != nil {
		setErr(tf, BadAddress)
		return
	}
	pf.Offset += int64(n)
	tf.SetArg(0, uint64(n))
	setOk(tf)
}

func sysSeek(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd, offset := tf.Arg(0), int64(tf.Arg(1))
	pf, ok := fileAt(p, fd)
	if !ok {
		setErr(tf, InvalidFile)
		return
	}
	if _, err := pf.File.Seek(offset, 0); err != nil {
		setErr(tf, IoError)
		return
	}
	pf.Offset = offset
	setOk(tf)
}

func sysLen(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd := tf.Arg(0)
	pf, ok := fileAt(p, fd)
	if !ok {
		setErr(tf, InvalidFile)
		return
	}
	size, err := pf.File.Size()
	if err != nil {
		setErr(tf, IoError)
		return
	}
	tf.SetArg(0, uint64(size))
	setOk(tf)
}

func sysReaddir(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	fd, buf, length := tf.Arg(0), uintptr(tf.Arg(1)), tf.Arg(2)
	pf, ok := fileAt(p, fd)
	if !ok {
		setErr(tf, InvalidFile)
		return
	}
	if !pf.File.IsDir() {
		setErr(tf, InvalidDirectory)
		return
	}
	names, err := pf.File.Readdir()
	if err != nil {
		setErr(tf, IoError)
		return
	}
	data := []byte(strings.Join(names, "\n"))
	if uint64(len(data)) > length {
		data = data[:length]
	}
	if !vm.InUserRange(buf, uintptr(len(data))) {
		setErr(tf, BadAddress)
		return
	}
	if _, err := p.UserTable.WriteAt(buf, data); err != nil {
		setErr(tf, BadAddress)
		return
	}
	tf.SetArg(0, uint64(len(data)))
	setOk(tf)
}

// sysExec implements spec.md §4.7's exec: decode the path and argv block,
// call Execve, and return via the same trap frame — Execve has already
// rewritten pc/sp/x0/x1 for userspace entry on success.
func sysExec(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	path, err := readCString(p, uintptr(tf.Arg(0)))
	if err != nil {
		setErr(tf, BadAddress)
		return
	}
	argv, err := readArgvBlock(p, uintptr(tf.Arg(1)))
	if err != nil {
		setErr(tf, BadAddress)
		return
	}
	if Loader == nil {
		setErr(tf, NoEntry)
		return
	}
	if err := p.Execve(Loader, path, argv); err != nil {
		setErr(tf, InvalidFile)
		return
	}
	setOk(tf)
}

// sysFork implements spec.md §4.7's fork: clone, enqueue the child, link
// both ways only after a successful enqueue, and write x0 = 0 in the
// child's frame / x0 = child pid in the parent's.
func sysFork(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	// p.TrapFrame only reflects the parent's register state as of its last
	// schedule-in (sched.scheduleOut syncs it on a preemption, not on an
	// svc); tf carries the live registers for this syscall, so fork must
	// sync p.TrapFrame from tf before cloning or the child inherits a
	// stale frame instead of the parent's state at the instant of fork.
	*p.TrapFrame = *tf
	child, status, err := p.Fork()
	if err != nil {
		setErr(tf, NoMemory)
		return
	}
	childPID := s.Add(child)
	p.AdoptChild(status, childPID)

	child.TrapFrame.SetArg(0, 0)
	child.TrapFrame.SetArg(7, uint64(Ok))

	tf.SetArg(0, childPID)
	setOk(tf)
}

// sysWaitpid implements spec.md §4.7's wait(pid): installs a Waiting poll
// that completes once the named child's ChildStatus is Done.
func sysWaitpid(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	pid := tf.Arg(0)
	var target *process.ChildStatus
	for _, c := range p.Children {
		if c.PID == pid {
			target = c
			break
		}
	}
	if target == nil {
		setErr(tf, InvalidArgument)
		return
	}

	waiting := process.State{Kind: process.Waiting, Poll: func(pp *process.Process) bool {
		if !target.Done.Load() {
			return false
		}
		pp.TrapFrame.SetArg(0, pid)
		pp.TrapFrame.SetArg(7, uint64(Ok))
		return true
	}}
	s.Block(waiting, tf)
}
