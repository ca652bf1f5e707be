package syscall

import (
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
)

// SocketBackend abstracts internal/driver/usbeth's socket primitives
// (spec.md §4.7, §5: "the ethernet driver is a single global locked
// record; callers execute inside a closure passed to a critical
// combinator") so this package never imports networking/hardware code
// directly — the same host-testability seam as vm.ZeroPage and
// mutex.CoreIDFunc.
type SocketBackend interface {
	Create() (handle int, err error)
	Connected(handle int) bool
	Connect(handle int, addr uint32, port uint16) error
	Listen(handle int, port uint16) error
	Send(handle int, data []byte) (int, error)
	Recv(handle int, buf []byte) (int, error)
	Close(handle int)
}

// Sockets is the live backend Dispatch's sock_* handlers call through.
// cmd/kernel does not set it, so while it is nil every sock_* syscall
// returns InvalidSocket.
var Sockets SocketBackend

func socketAt(p *process.Process, fd uint64) (*process.SocketSlot, bool) {
	if fd >= uint64(len(p.Sockets)) || p.Sockets[fd] == nil {
		return nil, false
	}
	return p.Sockets[fd], true
}

func allocSocketFD(p *process.Process, handle int) (int, bool) {
	for i, slot := range p.Sockets {
		if slot == nil {
			p.Sockets[i] = &process.SocketSlot{Handle: handle}
			return i, true
		}
	}
	return 0, false
}

func sysSockCreate(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	if Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	h, err := Sockets.Create()
	if err != nil {
		setErr(tf, InvalidSocket)
		return
	}
	fd, ok := allocSocketFD(p, h)
	if !ok {
		Sockets.Close(h)
		setErr(tf, NoMemory)
		return
	}
	tf.SetArg(0, uint64(fd))
	setOk(tf)
}

func sysSockStatus(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	slot, ok := socketAt(p, tf.Arg(0))
	if !ok || Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	if Sockets.Connected(slot.Handle) {
		tf.SetArg(0, 1)
	} else {
		tf.SetArg(0, 0)
	}
	setOk(tf)
}

func sysSockConnect(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	slot, ok := socketAt(p, tf.Arg(0))
	if !ok || Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	addr, port := uint32(tf.Arg(1)), uint16(tf.Arg(2))
	if err := Sockets.Connect(slot.Handle, addr, port); err != nil {
		setErr(tf, IllegalSocketOperation)
		return
	}
	setOk(tf)
}

func sysSockListen(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	slot, ok := socketAt(p, tf.Arg(0))
	if !ok || Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	if err := Sockets.Listen(slot.Handle, uint16(tf.Arg(1))); err != nil {
		setErr(tf, IllegalSocketOperation)
		return
	}
	setOk(tf)
}

func sysSockSend(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	slot, ok := socketAt(p, tf.Arg(0))
	if !ok || Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	buf, length := uintptr(tf.Arg(1)), tf.Arg(2)
	if !vm.InUserRange(buf, uintptr(length)) {
		setErr(tf, BadAddress)
		return
	}
	data := make([]byte, length)
	if _, err := p.UserTable.ReadAt(buf, data); err != nil {
		setErr(tf, BadAddress)
		return
	}
	n, err := Sockets.Send(slot.Handle, data)
	if err != nil {
		setErr(tf, IllegalSocketOperation)
		return
	}
	tf.SetArg(0, uint64(n))
	setOk(tf)
}

func sysSockRecv(s Scheduler, p *process.Process, tf *trapframe.Frame) {
	slot, ok := socketAt(p, tf.Arg(0))
	if !ok || Sockets == nil {
		setErr(tf, InvalidSocket)
		return
	}
	buf, length := uintptr(tf.Arg(1)), tf.Arg(2)
	if !vm.InUserRange(buf, uintptr(length)) {
		setErr(tf, BadAddress)
		return
	}
	data := make([]byte, length)
	n, err := Sockets.Recv(slot.Handle, data)
	if err != nil {
		setErr(tf, IllegalSocketOperation)
		return
	}
	if _, err := p.UserTable.WriteAt(buf, data[:n]); err != nil {
		setErr(tf, BadAddress)
		return
	}
	tf.SetArg(0, uint64(n))
	setOk(tf)
}
