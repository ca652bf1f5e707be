// Package klog is an allocation-free leveled line logger for the kernel
// core. It never allocates, formats everything with fixed hex/decimal
// routines, and is safe to call from the exception path and from inside
// the allocator's own failure branches — grounded on the teacher's
// uartPutsDirect/uartPutHex64Direct helpers in exceptions.go, which exist
// precisely because the ring-buffer-backed uartPuts is not safe to call
// while interrupts are masked or the allocator is mid-operation.
package klog

// Writer is the minimal sink klog writes bytes to. cmd/kernel's uartSink
// adapter implements it over internal/driver/uart; tests can supply any io.Writer-shaped stub.
type Writer interface {
	WriteByte(c byte)
}

var sink Writer

// SetSink installs the byte sink klog writes to. Called once during boot
// after the UART driver is initialized.
func SetSink(w Writer) { sink = w }

func puts(s string) {
	if sink == nil {
		return
	}
	for i := 0; i < len(s); i++ {
		sink.WriteByte(s[i])
	}
}

func putHex64(v uint64) {
	const digits = "0123456789ABCDEF"
	for shift := 60; shift >= 0; shift -= 4 {
		sink.WriteByte(digits[(v>>uint(shift))&0xF])
	}
}

func putUint(v uint64) {
	if v == 0 {
		sink.WriteByte('0')
		return
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	for ; i < len(buf); i++ {
		sink.WriteByte(buf[i])
	}
}

// Field is one piece of structured context attached to a log line. Value is
// pre-rendered by the caller into a shape klog knows how to print without
// allocating: a decimal, a hex word, or a raw string. Grounded on the
// teacher's habit of always following a message with a labeled hex dump
// ("ELR=0x...", "FAR=0x...") rather than free-form interpolation.
type Field struct {
	Key string
	Hex uint64
	Dec int64
	Str string
	Kind byte // 'x' hex, 'd' decimal, 's' string
}

// Hex builds a hex-valued Field.
func Hex(key string, v uint64) Field { return Field{Key: key, Hex: v, Kind: 'x'} }

// Dec builds a decimal-valued Field.
func Dec(key string, v int64) Field { return Field{Key: key, Dec: v, Kind: 'd'} }

// Str builds a string-valued Field.
func Str(key string, v string) Field { return Field{Key: key, Str: v, Kind: 's'} }

func emit(level, msg string, fields []Field) {
	if sink == nil {
		return
	}
	puts(level)
	puts(": ")
	puts(msg)
	for _, f := range fields {
		puts(" ")
		puts(f.Key)
		puts("=")
		switch f.Kind {
		case 'x':
			puts("0x")
			putHex64(f.Hex)
		case 'd':
			if f.Dec < 0 {
				sink.WriteByte('-')
				putUint(uint64(-f.Dec))
			} else {
				putUint(uint64(f.Dec))
			}
		default:
			puts(f.Str)
		}
	}
	puts("\r\n")
}

// Infof logs an informational line.
func Infof(msg string, fields ...Field) { emit("I", msg, fields) }

// Warnf logs a warning line.
func Warnf(msg string, fields ...Field) { emit("W", msg, fields) }

// Errf logs an error line, non-fatal.
func Errf(msg string, fields ...Field) { emit("E", msg, fields) }
