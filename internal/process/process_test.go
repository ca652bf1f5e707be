package process

import (
	"bytes"
	"io"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/memmap"
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

type fakeConsole struct{}

func (fakeConsole) IsDir() bool                           { return false }
func (fakeConsole) IsReadable() bool                      { return true }
func (fakeConsole) IsWritable() bool                      { return true }
func (fakeConsole) Size() (int64, error)                  { return 0, nil }
func (fakeConsole) Read(p []byte) (int, error)             { return 0, io.EOF }
func (fakeConsole) Write(p []byte) (int, error)            { return len(p), nil }
func (fakeConsole) Seek(int64, int) (int64, error)         { return 0, nil }
func (fakeConsole) Readdir() ([]string, error)             { return nil, nil }

type fakeFile struct {
	*bytes.Reader
	data []byte
}

func (f *fakeFile) IsDir() bool                   { return false }
func (f *fakeFile) IsReadable() bool              { return true }
func (f *fakeFile) IsWritable() bool              { return false }
func (f *fakeFile) Size() (int64, error)          { return int64(len(f.data)), nil }
func (f *fakeFile) Write(p []byte) (int, error)   { return 0, io.ErrClosedPipe }
func (f *fakeFile) Seek(o int64, w int) (int64, error) { return f.Reader.Seek(o, w) }
func (f *fakeFile) Readdir() ([]string, error)    { return nil, nil }

func newFakeFile(data []byte) *fakeFile {
	return &fakeFile{Reader: bytes.NewReader(data), data: data}
}

type fakeLoader struct {
	files map[string][]byte
}

func (l *fakeLoader) Open(path string) (File, error) {
	d, ok := l.files[path]
	if !ok {
		return nil, io.ErrNotExist
	}
	return newFakeFile(d), nil
}

func TestNewInitializesConsoleFds(t *testing.T) {
	setupFramePool(t, 16)
	p, err := New(nil, fakeConsole{})
	require.NoError(t, err)
	assert.Equal(t, Ready, p.State.Kind)
	for fd := 0; fd < 3; fd++ {
		require.NotNil(t, p.Files[fd])
		assert.Equal(t, fakeConsole{}, p.Files[fd].File)
	}
	assert.Nil(t, p.Files[3])
}

func TestLoadSetsColdStartTrapFrame(t *testing.T) {
	setupFramePool(t, 64)
	SetKernelTableBase(0xDEAD0000)
	fs := &fakeLoader{files: map[string][]byte{"/programs/shell.bin": bytes.Repeat([]byte{0x11}, 200000)}}

	p, err := Load(fs, "/programs/shell.bin", nil, fakeConsole{})
	require.NoError(t, err)

	assert.EqualValues(t, memmap.UserImgBase, p.TrapFrame.PC)
	assert.EqualValues(t, 0xDEAD0000, p.TrapFrame.KernelTableBase)
	assert.NotZero(t, p.TrapFrame.UserTableBase)
	assert.Equal(t, uint64(0), p.TrapFrame.SP%16, "sp must stay 16-byte aligned (128-aligned implies 16-aligned)")
}

func TestIsReadyTransitionsWaitingToReady(t *testing.T) {
	setupFramePool(t, 16)
	p, err := New(nil, fakeConsole{})
	require.NoError(t, err)

	fired := false
	p.State = State{Kind: Waiting, Poll: func(*Process) bool {
		fired = true
		return true
	}}
	assert.True(t, p.IsReady())
	assert.True(t, fired)
	assert.Equal(t, Ready, p.State.Kind)
}

func TestIsReadyStaysWaitingUntilPollTrue(t *testing.T) {
	setupFramePool(t, 16)
	p, err := New(nil, fakeConsole{})
	require.NoError(t, err)

	p.State = State{Kind: Waiting, Poll: func(*Process) bool { return false }}
	assert.False(t, p.IsReady())
	assert.Equal(t, Waiting, p.State.Kind)
}

func TestIsReadyDeadIsNeverReady(t *testing.T) {
	setupFramePool(t, 16)
	p, err := New(nil, fakeConsole{})
	require.NoError(t, err)
	p.State = State{Kind: Dead}
	assert.False(t, p.IsReady())
}

func TestForkClonesTrapFrameAndDoesNotAssignPID(t *testing.T) {
	setupFramePool(t, 64)
	fs := &fakeLoader{files: map[string][]byte{"/programs/shell.bin": bytes.Repeat([]byte{0x22}, 65536)}}
	parent, err := Load(fs, "/programs/shell.bin", nil, fakeConsole{})
	require.NoError(t, err)
	parent.TrapFrame.SetArg(0, 99) // arbitrary marker

	child, status, err := parent.Fork()
	require.NoError(t, err)
	assert.Equal(t, parent.TrapFrame.PC, child.TrapFrame.PC)
	assert.EqualValues(t, 0, status.PID, "pid is assigned later by the scheduler")
	assert.Equal(t, Ready, child.State.Kind)

	// Simulate the scheduler + syscall dispatch finishing the fork.
	child.TrapFrame.SetArg(0, 0)
	parent.TrapFrame.SetArg(0, 42)
	parent.AdoptChild(status, 42)

	assert.EqualValues(t, 0, child.TrapFrame.Arg(0))
	assert.EqualValues(t, 42, parent.TrapFrame.Arg(0))
	assert.EqualValues(t, 42, status.PID)
	require.Len(t, parent.Children, 1)
	assert.Same(t, status, parent.Children[0])
}

func TestForkClonesPageTableContentsByteForByte(t *testing.T) {
	setupFramePool(t, 64)
	fs := &fakeLoader{files: map[string][]byte{"/programs/shell.bin": bytes.Repeat([]byte{0x33}, 65536)}}
	parent, err := Load(fs, "/programs/shell.bin", nil, fakeConsole{})
	require.NoError(t, err)

	child, _, err := parent.Fork()
	require.NoError(t, err)

	parentPage := parent.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)
	childPage := child.UserTable.Alloc(memmap.UserImgBase, vm.PermUserRW)
	assert.Equal(t, parentPage, childPage)
}
