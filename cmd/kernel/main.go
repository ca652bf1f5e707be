//go:build arm64

// Command kernel is the core's entry point: the staged bring-up spec.md
// §2 describes ("boot -> memInit -> vmmInit -> schedInit -> run"),
// assembled out of every internal/ package built for this port.
//
// Grounded on the teacher's mazboot/golang/main/kernel.go kernelMainBody:
// the same staged shape (UART breadcrumbs first, then the interrupt
// controller, then the timer, then storage, then "boot complete" and
// enabling interrupts) is kept verbatim as an ordering, with one
// deliberate, load-bearing departure. The teacher's kernelMainBody is the
// Go continuation of a hand-patched Go runtime (runtime_stub.go rewrites
// TPIDR_EL0->EL1 in the runtime's own load_g/save_g, hand-builds g0/m0/p0,
// and drives concurrency by spawning further Go goroutines that the
// patched runtime schedules) — that machinery exists so the teacher's
// demo can use real goroutines as its unit of concurrency on bare metal.
// This core never needs that: internal/process and internal/sched already
// implement spec.md's own process/scheduler model entirely in ordinary
// Go values (no goroutine ever represents a user process), so main here
// is a single, ordinary control flow that never returns — there is
// nothing in this repo for a patched Go scheduler to schedule. main is
// the Go-level continuation assembly hands off to once the vector table
// is installed and the MMU is enabled; building and linking that assembly
// trampoline is outside this module.
package main

import (
	"github.com/iansmith/nanokernel/internal/arch"
	"github.com/iansmith/nanokernel/internal/driver/gic"
	"github.com/iansmith/nanokernel/internal/driver/sd"
	"github.com/iansmith/nanokernel/internal/driver/timer"
	"github.com/iansmith/nanokernel/internal/driver/uart"
	"github.com/iansmith/nanokernel/internal/fat32"
	"github.com/iansmith/nanokernel/internal/fbconsole"
	"github.com/iansmith/nanokernel/internal/irq"
	"github.com/iansmith/nanokernel/internal/klog"
	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/mutex"
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/sched"
	"github.com/iansmith/nanokernel/internal/shell"
	"github.com/iansmith/nanokernel/internal/syscall"
	"github.com/iansmith/nanokernel/internal/trap"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
	"github.com/iansmith/nanokernel/internal/xmodem"
)

// ramTop bounds the identity map the kernel page table builds and the pool
// internal/vm carves page frames from — 256 MiB of QEMU virt RAM, well
// short of the board's usual 1 GiB+ so the same image boots under a
// minimal `-m 256` QEMU invocation.
const ramTop = 0x1000_0000

// framebufferWidth/Height size the fbconsole backbuffer; QEMU virt's
// virtio-gpu default mode.
const (
	framebufferWidth  = 1024
	framebufferHeight = 768
)

// console, fbc, scheduler and loader are boot-assembled singletons the
// irq/syscall dispatch tables and the shell close over; there is exactly
// one of each for the life of the kernel.
var (
	console   *uart.Console
	fbc       *fbconsole.Console
	scheduler *sched.Scheduler
	loader    process.Loader
)

func main() {
	boot()
	run()
}

// boot runs the staged bring-up exactly once. Grounded on kernelMainBody's
// stage numbering; stage names below mirror the teacher's FramebufferPuts
// breadcrumbs but go to klog (UART) since the framebuffer console isn't
// attached to real hardware memory until after its own init stage.
func boot() {
	bootUART()
	bootInterruptController()
	bootTimer()
	bootMemory()
	bootFramebuffer()
	bootStorage()
	bootScheduler()

	klog.Infof("boot complete")
	runSelftest()
}

// bootUART brings up the PL011 console and wires it as klog's sink —
// spec.md's earliest possible breadcrumb path, matching kernelMainBody's
// "Stage 0: UART initialization (required for early debugging)".
func bootUART() {
	uart.SetMMIO(arch.MMIOWrite, arch.MMIORead)
	console = uart.New(memmap.UARTBase)
	console.Init()
	klog.SetSink(uartSink{console})
	trap.Halt = func() {
		for {
			arch.WaitForInterrupt()
		}
	}
	mutex.CoreIDFunc = arch.CoreID
	mutex.SetSpinHint(arch.WaitForEvent)
	mutex.SetWakeHint(arch.SendEvent)
	klog.Infof("uart console ready")
}

// bootInterruptController installs the GIC and claims the two lines this
// core cares about: the PL011's SPI (so an enabled-but-unhandled UART IRQ
// never reaches irq.HandleException's "unclaimed IRQ" panic path — Putc/
// Getc stay polling-driven, the interrupt is claimed and silently
// dropped) and the generic timer's PPI, which drives preemption.
func bootInterruptController() {
	gicController := gic.New(memmap.GICDistBase, memmap.GICCPUBase)
	gic.SetMMIO(arch.MMIOWrite, arch.MMIORead)
	gicController.Init()

	const (
		uartSPI  = 33 // PL011 UART0, qemu virt
		timerPPI = 30 // CNTP_*_EL0 non-secure physical timer
	)
	gicController.RegisterGlobalSource(0, uartSPI)
	gicController.RegisterLocalSource(0, timerPPI)

	irq.Global = gicController
	irq.Local = gicController
	irq.RegisterGlobal(0, func(tf *trapframe.Frame) {})
	irq.RegisterLocal(0, onTimerTick)
	irq.Dispatch = syscall.Dispatch

	klog.Infof("interrupt controller ready")
}

// onTimerTick is the local-IRQ-slot-0 handler: rearm the next quantum,
// then ask the scheduler to pick the next Ready process, spec.md §4.5's
// preemption contract. When nothing is Ready, Switch leaves tf.TPIDR at
// process.NoPID and the exception-return path (outside this Go source)
// re-enters the idle loop.
func onTimerTick(tf *trapframe.Frame) {
	timer.Rearm()
	scheduler.Switch(process.State{Kind: process.Ready}, tf)
}

// bootTimer arms the generic timer for the first quantum. Grounded on
// kernelMainBody's "Stage 9: Timer init".
func bootTimer() {
	timer.SetHardware(arch.TickFrequency, arch.ArmPhysicalTimer)
	timer.Init()
	klog.Infof("timer ready", klog.Dec("tick_ms", int64(memmap.Tick.Milliseconds())))
}

// bootMemory carves the physical frame pool out of everything above the
// fixed kernel stack region, builds the one kernel page table, and wires
// internal/vm's zero-page hook to the architecture's cache-aware bulk
// zeroer — spec.md §4.2/§4.3's memInit and vmmInit stages folded together,
// since both operate on the same physical RAM region.
func bootMemory() {
	vm.ZeroPage = arch.Bzero
	poolStart := uintptr(memmap.KernStackBase + memmap.KernStackSize)
	vm.InitFrameAllocator(poolStart, ramTop-poolStart)

	kt, err := vm.NewKernelTable(ramTop)
	if err != nil {
		trap.Panic("building kernel page table", trap.Info{})
	}
	arch.SetKernelTableBase(uint64(kt.BaseAddr()))
	process.SetKernelTableBase(uint64(kt.BaseAddr()))
	vm.MarkMMUReady()

	klog.Infof("memory ready", klog.Hex("kernel_table", uint64(kt.BaseAddr())))
}

// bootFramebuffer sizes the text console and binds it as trap's panic
// renderer — spec.md §6.3's "the framebuffer console is a first-class
// fatal-path surface", wired the way the teacher treats its framebuffer
// as the boot-status surface once it's up ("Stage 5: Framebuffer
// initialization", FramebufferPuts replacing raw UART writes).
func bootFramebuffer() {
	fbc = fbconsole.New(framebufferWidth, framebufferHeight)
	trap.Render = fbc.RenderPanic
	klog.Infof("framebuffer console ready")
}

// bootStorage mounts the SD card's FAT32 partition, matching
// kernelMainBody's "Stage 10: SDHCI init" plus the original's vfat.rs
// mount step. If the SD controller never responds — no card inserted, a
// dev-loop flash in progress — this core falls back to spec.md §6.5's
// serial recovery path instead of the teacher's abortBoot("cannot load
// kernel"): it receives a boot image over the UART via XMODEM into a
// growable in-memory buffer and mounts that buffer directly, so a board with no
// SD card can still boot a shell from whatever cmd/xmodemsend pushes.
func bootStorage() {
	sd.SetMMIO(arch.MMIOWrite, arch.MMIORead, mmio16Write, mmio16Read)
	dev := sd.New(memmap.SDBase)

	fs, err := fat32.Mount(dev)
	if err != nil {
		klog.Warnf("SD mount failed, falling back to XMODEM recovery", klog.Str("err", err.Error()))
		fs = recoverImageOverSerial()
	}
	loader = fs
	klog.Infof("storage ready")
}

// mmio16Write/mmio16Read are the 16-bit MMIO accessors internal/driver/sd
// needs for its command/response registers; internal/arch only exposes
// 32-bit MMIOWrite/MMIORead (the width every other device on this core
// uses), so the two half-word accesses are composed from one 32-bit
// access here rather than adding a second width to internal/arch's
// assembly surface for a single caller.
func mmio16Write(reg uintptr, v uint16) {
	aligned := reg &^ 3
	shift := (reg & 3) * 8
	cur := arch.MMIORead(aligned)
	mask := uint32(0xFFFF) << shift
	arch.MMIOWrite(aligned, (cur&^mask)|(uint32(v)<<shift))
}

func mmio16Read(reg uintptr) uint16 {
	aligned := reg &^ 3
	shift := (reg & 3) * 8
	return uint16(arch.MMIORead(aligned) >> shift)
}

// recoverImageOverSerial blocks on an XMODEM reception over the console
// UART and mounts the received bytes as an in-memory block device —
// spec.md §6.5's bootloader path, reusing internal/xmodem.Receive and
// internal/fat32.NewSliceDevice rather than inventing a second storage
// backend.
func recoverImageOverSerial() *fat32.FileSystem {
	klog.Infof("waiting for XMODEM boot image over UART")
	var buf byteBuffer
	n, err := xmodem.Receive(console, &buf)
	if err != nil {
		trap.Panic("XMODEM recovery failed", trap.Info{})
	}
	klog.Infof("received boot image", klog.Dec("bytes", int64(n)))
	fs, err := fat32.Mount(fat32.NewSliceDevice(buf.data, 512))
	if err != nil {
		trap.Panic("mounting recovered image", trap.Info{})
	}
	return fs
}

// byteBuffer is the io.Writer xmodem.Receive appends into; a plain
// growable slice, since the received image lives entirely in the frame
// pool's backing RAM rather than on any block device.
type byteBuffer struct{ data []byte }

func (b *byteBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// bootScheduler creates the scheduler and the first process — the
// resident shell — and adds it to the run queue. Grounded on spec.md §2's
// "create initial process" step; unlike a Unix init process, this core's
// first process is not a loaded ELF-equivalent image but the shell loop
// running as kernel code directly (internal/shell's package doc explains
// why: there is no second compiled program in this repo to load as PID
// 1, only the ones the shell might later exec via "./name").
func bootScheduler() {
	scheduler = sched.New()
	syscall.Current = scheduler
	syscall.Loader = loader
	syscall.NowMillis = func() int64 {
		ticks := arch.NowTicks()
		freq := arch.TickFrequency()
		if freq == 0 {
			return 0
		}
		return int64(ticks * 1000 / freq)
	}
	syscall.Clock = func() (int64, int64) {
		freq := arch.TickFrequency()
		if freq == 0 {
			return 0, 0
		}
		ticks := arch.NowTicks()
		return int64(ticks / freq), int64(ticks % freq * 1_000_000_000 / freq)
	}

	p, err := process.New(nil, console)
	if err != nil {
		trap.Panic("creating initial process", trap.Info{})
	}
	scheduler.Add(p)

	klog.Infof("scheduler ready", klog.Dec("cores", int64(memmap.NCores)))
}

// run starts the resident shell on the boot core and never returns —
// spec.md §2's final "run" stage. Once other cores come up (their own
// entry path, outside this file) they fall straight into the scheduler's
// idle loop and wait for onTimerTick to hand them a process.
func run() {
	arch.InvalidateInstructionCache()
	sh := shell.New(console, console, kernelSyscalls{})
	sh.Run()

	klog.Warnf("shell exited; halting")
	for {
		arch.WaitForInterrupt()
	}
}

// uartSink adapts *uart.Console to klog.Writer (WriteByte) without
// teaching the UART driver about klog, the same one-method-adapter shape
// internal/driver packages use throughout this core to stay
// host-testable independent of the logger.
type uartSink struct{ c *uart.Console }

func (s uartSink) WriteByte(b byte) { s.c.Putc(b) }
