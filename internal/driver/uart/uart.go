// Package uart drives a PL011 UART as the kernel's console: fds 0/1/2 on
// every process are this driver's single Console value (spec.md §3, "the
// console" shared read/write device every process starts with).
//
// Grounded on the teacher's kernel.go UART0_* register block and
// uartInit/uartPutc/uartGetc/uartPuts: the same init sequence (disable,
// clear pending interrupts, set baud-rate divisors, 8N1 line control,
// unmask RX/TX/error interrupts, re-enable with TX+RX) and the same
// busy-wait-on-flag Putc/Getc shape, generalized into a process.File so it
// can sit in a process's fd table instead of being called as bare package
// functions.
package uart

import (
	"errors"
	"sync"
)

// Register offsets relative to the UART0 base address, verbatim from the
// teacher's kernel.go.
const (
	regDR     = 0x00
	regRSRECR = 0x04
	regFR     = 0x18
	regIBRD   = 0x24
	regFBRD   = 0x28
	regLCRH   = 0x2C
	regCR     = 0x30
	regIMSC   = 0x38
	regICR    = 0x44

	frTXFF = 1 << 5 // transmit FIFO full
	frRXFE = 1 << 4 // receive FIFO empty
)

// mmioWrite/mmioRead are the only hardware touchpoints, swappable for host
// tests the same way internal/driver/gic and internal/driver/timer are.
var (
	mmioWrite = func(reg uintptr, v uint32) {}
	mmioRead  = func(reg uintptr) uint32 { return 0 }
)

// SetMMIO installs the real register accessors; called once during boot.
func SetMMIO(write func(uintptr, uint32), read func(uintptr) uint32) {
	mmioWrite = write
	mmioRead = read
}

// Console is a PL011 UART exposed as a process.File: unbuffered,
// unseekable, never a directory. It is the shared fd 0/1/2 handle every
// process is given at creation (internal/process.New's console parameter).
type Console struct {
	base uintptr
	mu   sync.Mutex
}

// New builds a Console for the UART at the given base address (board
// specific: memmap's qemuvirt vs rpi4 constants select it).
func New(base uintptr) *Console {
	return &Console{base: base}
}

// Init runs the teacher's uartInit bring-up sequence, minus the BCM2711
// GPIO-pin-muxing steps (GPPUD/GPPUDCLK0) that are Raspberry-Pi-specific;
// QEMU's PL011 model needs no pin configuration, so board-specific pin mux
// is left to a board-tagged Init variant rather than baked in here.
func (c *Console) Init() {
	c.write(regCR, 0)
	c.write(regICR, 0x7FF)
	c.write(regIBRD, 1)
	c.write(regFBRD, 40)
	c.write(regLCRH, (1<<4)|(1<<5)|(1<<6)) // 8 bits, FIFO enable
	c.write(regIMSC, (1<<1)|(1<<4)|(1<<5)|(1<<6)|(1<<7)|(1<<8)|(1<<9)|(1<<10))
	c.write(regCR, (1<<0)|(1<<8)|(1<<9)) // UARTEN | TXE | RXE
}

func (c *Console) write(offset uintptr, v uint32) { mmioWrite(c.base+offset, v) }
func (c *Console) read(offset uintptr) uint32     { return mmioRead(c.base + offset) }

// Putc blocks until the transmit FIFO has room, then writes one byte.
func (c *Console) Putc(b byte) {
	for c.read(regFR)&frTXFF != 0 {
	}
	c.write(regDR, uint32(b))
}

// Getc blocks until the receive FIFO has data, then reads one byte.
func (c *Console) Getc() byte {
	for c.read(regFR)&frRXFE != 0 {
	}
	return byte(c.read(regDR))
}

// process.File implementation.

func (c *Console) IsDir() bool      { return false }
func (c *Console) IsReadable() bool { return true }
func (c *Console) IsWritable() bool { return true }

// Size reports no fixed length: a console is a stream, not a sized file —
// spec.md §4.7's `len` syscall on fd 0/1/2 returns this error rather than a
// byte count.
func (c *Console) Size() (int64, error) {
	return 0, errors.New("uart: console has no length")
}

// Read fills p one byte at a time from the UART's receive FIFO, blocking
// on the first byte and then draining whatever is already buffered without
// blocking further — this is the same "block for at least one byte, then
// take what's there" shape the teacher's interactive uartGetc use sites
// assume, generalized into a multi-byte Read.
func (c *Console) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p[0] = c.Getc()
	n := 1
	for n < len(p) && c.read(regFR)&frRXFE == 0 {
		p[n] = c.Getc()
		n++
	}
	return n, nil
}

// Write sends every byte of p to the UART in order.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range p {
		c.Putc(b)
	}
	return len(p), nil
}

// Seek is unsupported: a UART stream has no notion of position.
func (c *Console) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("uart: console is not seekable")
}

// Readdir is unsupported: a console is not a directory.
func (c *Console) Readdir() ([]string, error) {
	return nil, errors.New("uart: console is not a directory")
}
