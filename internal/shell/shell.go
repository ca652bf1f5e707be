// Package shell implements the command-line shell spec.md §6 treats as an
// external collaborator: a line-editing REPL over the console fds that
// resolves a working directory against a FAT32-shaped loader and dispatches
// a small builtin set, falling back to fork+exec for anything else.
//
// Grounded on original_source/user/code/src/bin/shell.rs — the userspace
// binary the original boots as /programs/shell.bin. That program is a
// no_std Rust binary issuing raw syscalls (open/read/write/readdir/fork/
// exec/sleep/exit) across an EL0/EL1 boundary. This port keeps the command
// set, the line-editing behavior (backspace, bell-on-invalid-byte), and the
// path-normalization logic, but collapses the syscall boundary into the
// Syscalls interface below: Shell is the kernel's privileged command loop
// rather than a second copy of itself cross-compiled for EL0, so there is
// no separate process to fork before an exec — see Spawn.
package shell

import (
	"fmt"
	"io"
	"strings"

	"github.com/iansmith/nanokernel/internal/process"
)

// Syscalls is the capability set the shell consumes: opening paths through
// the filesystem loader, spawning external programs, sleeping, and exiting.
// cmd/kernel supplies the production implementation (wired to
// internal/process.Load, internal/sched.Scheduler.Add, and internal/arch's
// counter for Sleep); tests supply a fake.
type Syscalls interface {
	// Open resolves path (already normalized against the shell's current
	// working directory) to a file or directory.
	Open(path string) (process.File, error)

	// Spawn loads and schedules path as a new process and returns its pid.
	// Unlike the original's fork-then-exec pair, this is one call: the
	// shell is not itself a process that needs duplicating before the new
	// program can replace a (nonexistent) child copy of it.
	Spawn(path string) (pid uint64, err error)

	// Sleep blocks the caller for ms milliseconds and returns the elapsed
	// time actually observed, mirroring sysSleep's contract.
	Sleep(ms int64) int64

	// Exit terminates the shell process. Implementations of this never
	// return to Run's caller on real hardware; the fake used in tests may.
	Exit()
}

const (
	rootName     = "/"
	maxLineBytes = 512
)

const welcomeBanner = `
 _ __   __ _ _ __   ___  | | _____ _ __ _ __   ___| |
| '_ \ / _` + "`" + ` | '_ \ / _ \ | |/ / _ \ '__| '_ \ / _ \ |
| | | | (_| | | | | (_) ||   <  __/ |  | | | |  __/ |
|_| |_|\__,_|_| |_|\___(_)_|\_\___|_|  |_| |_|\___|_|
`

// Shell is a single REPL instance: one console, one filesystem view, one
// notion of current working directory.
type Shell struct {
	in  io.Reader
	out io.Writer
	sys Syscalls

	pwd string
}

// New builds a Shell reading commands from in and writing output to out.
func New(in io.Reader, out io.Writer, sys Syscalls) *Shell {
	return &Shell{in: in, out: out, sys: sys, pwd: rootName}
}

// Run prints the welcome banner and loops reading and dispatching commands
// until a command requests exit or the input reader is exhausted (EOF).
// Grounded on shell.rs's main(): open the root directory up front so a bare
// `ls` always has somewhere to look, then print-prompt/read-line/dispatch
// forever.
func (s *Shell) Run() {
	fmt.Fprint(s.out, welcomeBanner)

	if _, err := s.sys.Open(rootName); err != nil {
		fmt.Fprintln(s.out, "error: could not open root directory")
		return
	}

	for {
		fmt.Fprintf(s.out, "(%s) > ", s.pwd)

		line, ok := s.readLine()
		if !ok {
			return
		}
		fmt.Fprintln(s.out)

		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		s.dispatch(args)
		if args[0] == "exit" {
			return
		}
	}
}

// readLine implements shell.rs's byte-at-a-time editor: CR/LF ends the
// line, backspace (8 or 127) erases the previous byte and echoes
// "\x08 \x08", any other ASCII byte (below 0x80) is appended and echoed
// while the line is shorter than maxLineBytes, and anything else rings the
// bell. Returns ok=false when a read yields no byte and an error (the
// input is exhausted), discarding any partial line.
func (s *Shell) readLine() (string, bool) {
	var line []byte
	buf := make([]byte, 1)

	for {
		n, err := s.in.Read(buf)
		if n == 0 {
			if err != nil {
				return "", false
			}
			continue
		}
		b := buf[0]

		switch {
		case b == '\r' || b == '\n':
			return string(line), true
		case b == 8 || b == 127:
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(s.out, "\x08 \x08")
			}
		case b < 0x80 && len(line) < maxLineBytes:
			line = append(line, b)
			fmt.Fprintf(s.out, "%c", b)
		default:
			fmt.Fprint(s.out, "\x07")
		}
	}
}

func (s *Shell) dispatch(args []string) {
	switch args[0] {
	case "echo":
		fmt.Fprintln(s.out, strings.Join(args[1:], " "))
	case "pwd":
		fmt.Fprintln(s.out, s.pwd)
	case "cd":
		s.cmdCd(args)
	case "ls":
		s.cmdLs(args)
	case "cat":
		s.cmdCat(args)
	case "sleep":
		s.cmdSleep(args)
	case "exit":
		s.sys.Exit()
	default:
		if strings.HasPrefix(args[0], "./") {
			s.cmdRun(args[0])
			return
		}
		fmt.Fprintf(s.out, "unknown command: %s\n", args[0])
	}
}

func (s *Shell) cmdCd(args []string) {
	if len(args) < 2 {
		return
	}
	target := resolvePath(s.pwd, args[1])

	if _, err := s.sys.Open(target); err != nil {
		fmt.Fprintf(s.out, "error: directory %s not found\n", args[1])
		return
	}
	s.pwd = target
}

func (s *Shell) cmdLs(args []string) {
	path := s.pwd
	if len(args) > 1 {
		path = resolvePath(s.pwd, args[1])
	}

	f, err := s.sys.Open(path)
	if err != nil {
		fmt.Fprintf(s.out, "error: directory %s not found\n", path)
		return
	}

	names, err := f.Readdir()
	if err != nil {
		fmt.Fprintf(s.out, "error: failed to read directory %s\n", path)
		return
	}
	if len(names) == 0 {
		fmt.Fprintf(s.out, "error: directory %s is empty or could not be read\n", path)
		return
	}
	fmt.Fprintln(s.out, strings.Join(names, "\n"))
}

func (s *Shell) cmdCat(args []string) {
	for _, name := range args[1:] {
		path := resolvePath(s.pwd, name)
		f, err := s.sys.Open(path)
		if err != nil {
			fmt.Fprintf(s.out, "error: file %s not found\n", name)
			continue
		}

		size, err := f.Size()
		if err != nil {
			fmt.Fprintf(s.out, "error: file %s not found\n", name)
			continue
		}
		buf := make([]byte, size)
		n, _ := f.Read(buf)
		fmt.Fprintln(s.out, string(buf[:n]))
	}
}

func (s *Shell) cmdSleep(args []string) {
	if len(args) != 2 {
		return
	}
	var ms int64
	if _, err := fmt.Sscanf(args[1], "%d", &ms); err != nil {
		return
	}
	elapsed := s.sys.Sleep(ms)
	fmt.Fprintf(s.out, "slept for %dms\n", elapsed)
}

func (s *Shell) cmdRun(arg string) {
	path := resolvePath(s.pwd, strings.TrimPrefix(arg, "."))
	pid, err := s.sys.Spawn(path)
	if err != nil {
		fmt.Fprintf(s.out, "error: failed to execute %s\n", arg)
		return
	}
	fmt.Fprintf(s.out, "created child process with PID %d\n", pid)
}

// resolvePath turns a command argument (absolute, relative, or "..") into a
// normalized absolute path against pwd, porting shell.rs's cd/ls path
// handling plus its normalize_path.
func resolvePath(pwd, target string) string {
	if target == ".." {
		return parentOf(pwd)
	}
	if strings.HasPrefix(target, "/") {
		return normalizePath(target)
	}
	return normalizePath(strings.TrimSuffix(pwd, "/") + "/" + target)
}

func parentOf(pwd string) string {
	if pwd == rootName {
		return rootName
	}
	parts := splitNonEmpty(pwd)
	if len(parts) == 0 {
		return rootName
	}
	parts = parts[:len(parts)-1]
	return joinAbs(parts)
}

// normalizePath collapses "." and ".." components the way shell.rs's
// normalize_path does, rebuilding an absolute path from what remains.
func normalizePath(path string) string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return joinAbs(out)
}

func splitNonEmpty(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinAbs(parts []string) string {
	if len(parts) == 0 {
		return rootName
	}
	return "/" + strings.Join(parts, "/")
}
