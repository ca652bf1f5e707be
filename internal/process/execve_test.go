package process

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/vm"
)

func TestExecveBuildsArgvOnStack(t *testing.T) {
	setupFramePool(t, 64)
	SetKernelTableBase(0xDEAD0000)
	fs := &fakeLoader{files: map[string][]byte{
		"/programs/old.bin": bytes.Repeat([]byte{0x11}, 65536),
		"/programs/new.bin": bytes.Repeat([]byte{0x22}, 65536),
	}}

	p, err := Load(fs, "/programs/old.bin", nil, fakeConsole{})
	require.NoError(t, err)

	argv := []string{"new", "-x", "hello"}
	require.NoError(t, p.Execve(fs, "/programs/new.bin", argv))

	assert.EqualValues(t, memmap.UserImgBase, p.TrapFrame.PC)
	assert.Equal(t, uint64(0), p.TrapFrame.SP%16, "sp must be 16-byte aligned")
	assert.EqualValues(t, len(argv), p.TrapFrame.Arg(0), "argc")

	page := p.UserTable.Alloc(stackBase(), vm.PermUserRW)
	pageBase := stackBase()
	argvPtr := uintptr(p.TrapFrame.Arg(1))

	for i, want := range argv {
		strAddr := binary.LittleEndian.Uint64(page[argvPtr-pageBase+uintptr(i)*8:])
		got := readCString(page, uintptr(strAddr)-pageBase)
		assert.Equal(t, want, got, "argv[%d]", i)
	}

	null := binary.LittleEndian.Uint64(page[argvPtr-pageBase+uintptr(len(argv))*8:])
	assert.Zero(t, null, "argv pointer array must be null-terminated")
}

func TestExecveBuildsArgvOnStackWithEmptyArgv(t *testing.T) {
	setupFramePool(t, 64)
	fs := &fakeLoader{files: map[string][]byte{
		"/programs/old.bin": bytes.Repeat([]byte{0x33}, 65536),
	}}

	p, err := Load(fs, "/programs/old.bin", nil, fakeConsole{})
	require.NoError(t, err)

	require.NoError(t, p.Execve(fs, "/programs/old.bin", nil))
	assert.Equal(t, uint64(0), p.TrapFrame.SP%16, "sp must stay 16-byte aligned with no argv")
	assert.EqualValues(t, 0, p.TrapFrame.Arg(0))
}

func readCString(page []byte, offset uintptr) string {
	end := offset
	for page[end] != 0 {
		end++
	}
	return string(page[offset:end])
}
