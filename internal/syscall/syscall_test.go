package syscall

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
)

func setupFramePool(t *testing.T, pages int) {
	t.Helper()
	size := pages * memmap.PageSize
	region := make([]byte, size+memmap.PageSize)
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + memmap.PageSize - 1) &^ (memmap.PageSize - 1)
	vm.InitFrameAllocator(base, uintptr(size))
	t.Cleanup(func() { _ = region })
}

type fakeFile struct {
	*bytes.Reader
	writable bool
	writes   [][]byte
}

func (f *fakeFile) IsDir() bool          { return false }
func (f *fakeFile) IsReadable() bool     { return true }
func (f *fakeFile) IsWritable() bool     { return f.writable }
func (f *fakeFile) Size() (int64, error) { return f.Reader.Size(), nil }
func (f *fakeFile) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.writes = append(f.writes, cp)
	return len(p), nil
}
func (f *fakeFile) Seek(o int64, w int) (int64, error) { return f.Reader.Seek(o, w) }
func (f *fakeFile) Readdir() ([]string, error)         { return nil, nil }

func newConsole() *fakeFile {
	return &fakeFile{Reader: bytes.NewReader(nil), writable: true}
}

type fakeLoader struct{ files map[string][]byte }

func (l *fakeLoader) Open(path string) (process.File, error) {
	d, ok := l.files[path]
	if !ok {
		return nil, io.ErrNotExist
	}
	return &fakeFile{Reader: bytes.NewReader(d), writable: false}, nil
}

// fakeScheduler is a minimal Scheduler double: Block/Switch return NoPID
// without running any Waiting poll, Kill records the call, and Add hands
// out pids 1, 2, ... in order.
type fakeScheduler struct {
	added   []*process.Process
	nextPID uint64
	killed  bool
}

func (f *fakeScheduler) WithCurrentProcess(tpidr uint64, fn func(p *process.Process)) bool {
	return false // unused directly by these tests; Dispatch is exercised separately
}
func (f *fakeScheduler) Switch(newState process.State, tf *trapframe.Frame) uint64 {
	return process.NoPID
}
func (f *fakeScheduler) Block(newState process.State, tf *trapframe.Frame) uint64 {
	return process.NoPID
}
func (f *fakeScheduler) Kill(tf *trapframe.Frame) (uint64, bool) {
	f.killed = true
	return tf.TPIDR, true
}
func (f *fakeScheduler) Add(p *process.Process) uint64 {
	f.nextPID++
	f.added = append(f.added, p)
	return f.nextPID
}

func newTestProcess(t *testing.T) *process.Process {
	t.Helper()
	setupFramePool(t, 64)
	p, err := process.New(nil, newConsole())
	require.NoError(t, err)
	return p
}

func TestGetpidWritesIDAndOk(t *testing.T) {
	p := newTestProcess(t)
	p.ID = 7
	tf := trapframe.New()
	sysGetpid(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, 7, tf.Arg(0))
	assert.EqualValues(t, Ok, tf.Arg(7))
}

func TestWriteCopiesUserBufferIntoFile(t *testing.T) {
	p := newTestProcess(t)
	tf := trapframe.New()

	page := p.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)
	copy(page, []byte("hello"))

	tf.SetArg(0, 1) // fd 1: console
	tf.SetArg(1, uint64(memmap.UserImgBase))
	tf.SetArg(2, 5)
	sysWrite(&fakeScheduler{}, p, tf)

	assert.EqualValues(t, Ok, tf.Arg(7))
	assert.EqualValues(t, 5, tf.Arg(0))
	console := p.Files[1].File.(*fakeFile)
	require.Len(t, console.writes, 1)
	assert.Equal(t, "hello", string(console.writes[0]))
}

func TestWriteRejectsOutOfRangePointer(t *testing.T) {
	p := newTestProcess(t)
	tf := trapframe.New()
	tf.SetArg(0, 1)
	tf.SetArg(1, 0x10) // far below USER_IMG_BASE
	tf.SetArg(2, 8)
	sysWrite(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, BadAddress, tf.Arg(7))
}

func TestOpenAllocatesLowestFreeFD(t *testing.T) {
	p := newTestProcess(t)
	Loader = &fakeLoader{files: map[string][]byte{"/x": []byte("data")}}
	defer func() { Loader = nil }()

	tf := trapframe.New()
	page := p.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)
	copy(page, append([]byte("/x"), 0))
	tf.SetArg(0, uint64(memmap.UserImgBase))

	sysOpen(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, Ok, tf.Arg(7))
	assert.EqualValues(t, 3, tf.Arg(0), "fds 0-2 are console, first free slot is 3")
}

func TestOpenMissingFileReturnsNoEntry(t *testing.T) {
	p := newTestProcess(t)
	Loader = &fakeLoader{files: map[string][]byte{}}
	defer func() { Loader = nil }()

	tf := trapframe.New()
	page := p.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)
	copy(page, []byte{0})
	tf.SetArg(0, uint64(memmap.UserImgBase))

	sysOpen(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, NoEntry, tf.Arg(7))
}

func TestCloseClearsTheSlot(t *testing.T) {
	p := newTestProcess(t)
	tf := trapframe.New()
	tf.SetArg(0, 1)
	sysClose(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, Ok, tf.Arg(7))
	assert.Nil(t, p.Files[1])
}

func TestCloseUnknownFDReturnsInvalidFile(t *testing.T) {
	p := newTestProcess(t)
	tf := trapframe.New()
	tf.SetArg(0, 5)
	sysClose(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, InvalidFile, tf.Arg(7))
}

func TestForkAddsChildAndLinksParent(t *testing.T) {
	p := newTestProcess(t)
	s := &fakeScheduler{}

	// p.TrapFrame and tf are deliberately distinct frames here: in
	// production they never alias (p.TrapFrame only mirrors the live
	// registers as of the process's last schedule-in), so sysFork must
	// pull the child's initial state from tf, not from p.TrapFrame.
	tf := trapframe.New()
	tf.PC = 0xF00D
	tf.SetArg(3, 77) // marker only present in the live frame

	sysFork(s, p, tf)

	assert.EqualValues(t, Ok, tf.Arg(7))
	require.Len(t, s.added, 1)
	assert.EqualValues(t, 1, tf.Arg(0), "parent observes the child's pid")
	require.Len(t, p.Children, 1)
	assert.EqualValues(t, 1, p.Children[0].PID)
	assert.EqualValues(t, 0, s.added[0].TrapFrame.Arg(0), "child's frame carries x0 == 0")
	assert.EqualValues(t, 0xF00D, s.added[0].TrapFrame.PC, "child inherits tf's live pc, not a stale p.TrapFrame")
	assert.EqualValues(t, 77, s.added[0].TrapFrame.Arg(3), "child inherits tf's live registers, not a stale p.TrapFrame")
	assert.EqualValues(t, 0xF00D, p.TrapFrame.PC, "sysFork syncs p.TrapFrame's contents from the live tf before cloning")
}

func TestWaitpidUnknownPIDReturnsInvalidArgument(t *testing.T) {
	p := newTestProcess(t)
	tf := trapframe.New()
	tf.SetArg(0, 42)
	sysWaitpid(&fakeScheduler{}, p, tf)
	assert.EqualValues(t, InvalidArgument, tf.Arg(7))
}

func TestReadArgvBlockDecodesArgcAndPointers(t *testing.T) {
	p := newTestProcess(t)
	page := p.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)

	strAddr := memmap.UserImgBase + 1000
	str2Addr := memmap.UserImgBase + 1010
	copy(page[1000:], append([]byte("first"), 0))
	copy(page[1010:], append([]byte("second"), 0))

	blockAddr := memmap.UserImgBase
	binary.LittleEndian.PutUint64(page[0:8], 2)
	binary.LittleEndian.PutUint64(page[8:16], uint64(strAddr))
	binary.LittleEndian.PutUint64(page[16:24], uint64(str2Addr))

	argv, err := readArgvBlock(p, blockAddr)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, argv)
}

func TestDispatchUnknownSyscallSetsUnknown(t *testing.T) {
	old := Current
	Current = &dispatchFake{}
	defer func() { Current = old }()

	tf := trapframe.New()
	Dispatch(999, tf)
	assert.EqualValues(t, Unknown, tf.Arg(7))
}

type dispatchFake struct{}

func (dispatchFake) WithCurrentProcess(tpidr uint64, fn func(p *process.Process)) bool {
	return false
}
func (dispatchFake) Switch(process.State, *trapframe.Frame) uint64 { return process.NoPID }
func (dispatchFake) Block(process.State, *trapframe.Frame) uint64  { return process.NoPID }
func (dispatchFake) Kill(*trapframe.Frame) (uint64, bool)          { return process.NoPID, false }
func (dispatchFake) Add(*process.Process) uint64                   { return 0 }
