// Package trap implements the kernel-fatal panic path: a fixed banner,
// file/line/message, optional register dump, then an unrecoverable halt.
// Grounded on the teacher's fatal branch in exceptions.go's
// handleException (uartPutsDirect("*EXCEPTION: ..."), PrintTraceback, then
// "for {}").
package trap

import "github.com/iansmith/nanokernel/internal/klog"

// Halt is called after the banner is printed. It never returns in
// production (internal/arch's WaitForInterrupt loop, installed by
// cmd/kernel's bootUART); tests install a func that records the call and
// returns, since trap.Panic's contract is "print banner, then stop
// scheduling new work" and a test cannot let a goroutine spin forever.
var Halt = func() { select {} }

// Render draws the panic banner to whatever graphical console is
// available. The default is a no-op (headless/test builds); cmd/kernel
// wires it to internal/fbconsole.Console.RenderPanic so a crash leaves a
// banner on screen even if the UART log is never read back, per spec.md
// §6.3's framebuffer console being a first-class fatal-path surface.
var Render = func(msg string, info Info) {}

// Info is the fixed register/location context printed with a panic.
type Info struct {
	File string
	Line int
	ESR  uint64
	ELR  uint64
	FAR  uint64
}

// Panic prints the fixed banner plus file/line and message, then calls
// Halt. It never returns to the caller under normal operation.
func Panic(msg string, info Info) {
	klog.Errf("KERNEL PANIC", klog.Str("at", msg))
	klog.Errf("location", klog.Str("file", info.File), klog.Dec("line", int64(info.Line)))
	if info.ESR != 0 || info.ELR != 0 || info.FAR != 0 {
		klog.Errf("fault", klog.Hex("esr", info.ESR), klog.Hex("elr", info.ELR), klog.Hex("far", info.FAR))
	}
	klog.Errf("System halted")
	Render(msg, info)
	Halt()
}
