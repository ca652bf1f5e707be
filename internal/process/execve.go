package process

import (
	"encoding/binary"
	"fmt"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
)

// Execve replaces the process's image in place (spec.md §4.4 Execve): opens
// and reads path, allocates fresh image and heap pages over the existing
// user table, rebuilds the user stack with argv, and points the trap frame
// at the new entry point. The process's pid, kernel stack, and fd table are
// untouched — only the user address space and trap frame change.
func (p *Process) Execve(fs Loader, path string, argv []string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("process: Execve: open %s: %w", path, err)
	}
	size, err := f.Size()
	if err != nil {
		return fmt.Errorf("process: Execve: size %s: %w", path, err)
	}

	p.UserTable.Alloc(stackBase(), vm.PermUserRW)
	if err := p.loadImage(f, size); err != nil {
		return err
	}
	p.allocHeap(imagePages(size))

	sp, argc, argvPtr := p.buildArgv(argv)

	tf := p.TrapFrame
	tf.PC = uint64(memmap.UserImgBase)
	tf.SP = uint64(sp)
	tf.KernelTableBase = kernelTableBase
	tf.UserTableBase = uint64(p.UserTable.BaseAddr())
	tf.PState = trapframe.UserEntryPState
	tf.SetArg(0, uint64(argc))
	tf.SetArg(1, uint64(argvPtr))
	return nil
}

// buildArgv implements spec.md §4.4 Execve step 4: push argv strings
// top-down, then a null pointer, then the argv pointer array in reverse
// order, then argc; the final stack pointer is 16-byte aligned. Returns the
// aligned sp, argc, and the address of the argv pointer array (x1).
func (p *Process) buildArgv(argv []string) (sp uintptr, argc int, argvPtr uintptr) {
	top := stackTop()
	page := p.UserTable.Alloc(stackBase(), vm.PermUserRW)
	pageBase := stackBase()

	cursor := top

	strAddrs := make([]uintptr, len(argv))
	for i, s := range argv {
		b := append([]byte(s), 0)
		cursor -= uintptr(len(b))
		copy(page[cursor-pageBase:], b)
		strAddrs[i] = cursor
	}

	// Null terminator for the argv pointer array.
	cursor -= 8
	binary.LittleEndian.PutUint64(page[cursor-pageBase:], 0)

	for i := len(strAddrs) - 1; i >= 0; i-- {
		cursor -= 8
		binary.LittleEndian.PutUint64(page[cursor-pageBase:], uint64(strAddrs[i]))
	}
	argvPtr = cursor

	cursor -= 8
	binary.LittleEndian.PutUint64(page[cursor-pageBase:], uint64(len(argv)))

	sp = cursor &^ 15
	return sp, len(argv), argvPtr
}
