package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/iansmith/nanokernel/internal/xmodem"
)

// readTimeout bounds each XMODEM control-byte read; internal/xmodem's own
// retry policy (10 attempts per packet) handles the rest.
const readTimeout = 5 * time.Second

func run(o options) error {
	if o.watch {
		return watchAndSend(o)
	}
	return sendOnce(o)
}

func sendOnce(o options) error {
	port, err := openPort(o)
	if err != nil {
		return err
	}
	defer port.Close()

	f, err := os.Open(o.imagePath)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	fmt.Printf("xmodemsend: sending %s over %s at %d baud\n", o.imagePath, o.port, o.baud)
	n, err := xmodem.TransmitWithProgress(f, port, logProgress)
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	fmt.Printf("xmodemsend: sent %d bytes\n", n)
	return nil
}

func openPort(o options) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: o.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(o.port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", o.port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}
	return &retryingPort{port}, nil
}

func logProgress(p xmodem.Progress) {
	switch p {
	case xmodem.ProgressWaiting:
		fmt.Println("xmodemsend: waiting for receiver's initial NAK")
	case xmodem.ProgressStarted:
		fmt.Println("xmodemsend: transfer started")
	case xmodem.ProgressPacket:
		fmt.Print(".")
	}
}

// retryingPort wraps a serial.Port so a caller can treat it as a plain
// io.ReadWriteCloser: Go's goroutine-level scheduling makes EINTR a
// routine occurrence on a blocking serial read/write, exactly the
// condition gmofishsauce-wut4/exer/cex/dev/arduino.go retries around in
// readByte/writeBytes, generalized here into one wrapper instead of
// duplicating the retry loop at every call site.
type retryingPort struct {
	serial.Port
}

func (p *retryingPort) Read(b []byte) (int, error) {
	for {
		n, err := p.Port.Read(b)
		if !isRetryableSyscallError(err) {
			return n, err
		}
	}
}

func (p *retryingPort) Write(b []byte) (int, error) {
	for {
		n, err := p.Port.Write(b)
		if !isRetryableSyscallError(err) {
			return n, err
		}
	}
}

func isRetryableSyscallError(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.EINTR
}

func watchAndSend(o options) error {
	dir := filepath.Dir(o.imagePath)
	name := filepath.Base(o.imagePath)

	watcher, err := newImageWatcher(dir)
	if err != nil {
		return err
	}
	defer watcher.Close()

	fmt.Printf("xmodemsend: watching %s for rebuilds of %s\n", dir, name)
	if _, err := os.Stat(o.imagePath); err == nil {
		if err := sendOnce(o); err != nil {
			fmt.Fprintln(os.Stderr, "xmodemsend: initial send failed:", err)
		}
	}

	return watcher.run(name, func() error { return sendOnce(o) })
}
