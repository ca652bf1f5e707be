package sd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController models just enough SDHCI state to drive ReadBlock:
// present-state is always ready, sendCommand always completes
// immediately, and the buffer port replays a canned 512-byte block.
type fakeController struct {
	regs32  map[uintptr]uint32
	regs16  map[uintptr]uint16
	block   []byte
	bufPos  int
	failCmd bool
}

func newFakeController(block []byte) *fakeController {
	return &fakeController{regs32: map[uintptr]uint32{}, regs16: map[uintptr]uint16{}, block: block}
}

func (f *fakeController) write32(reg uintptr, v uint32) { f.regs32[reg] = v }
func (f *fakeController) write16(reg uintptr, v uint16) {
	f.regs16[reg] = v
	if reg == regTransferCmd+2 {
		if f.failCmd {
			f.regs16[regIntStatus] = intError
		} else {
			f.regs16[regIntStatus] = intCmdComplete
		}
	}
	if reg == regIntStatus && v == intCmdComplete {
		// command-complete acknowledged; arm buffer-read-ready for the
		// data phase that follows.
		f.regs16[regIntStatus] = intBufferRead
		f.bufPos = 0
	}
}
func (f *fakeController) read32(reg uintptr) uint32 {
	if reg == regBuffer {
		w := binary.LittleEndian.Uint32(f.block[f.bufPos:])
		f.bufPos += 4
		return w
	}
	return f.regs32[reg] // PRESENT_STATE defaults to 0: never inhibited
}
func (f *fakeController) read16(reg uintptr) uint16 { return f.regs16[reg] }

func withFakeController(t *testing.T, block []byte) (*Device, *fakeController) {
	t.Helper()
	f := newFakeController(block)
	ow32, or32, ow16, or16 := mmioWrite32, mmioRead32, mmioWrite16, mmioRead16
	mmioWrite32, mmioRead32, mmioWrite16, mmioRead16 = f.write32, f.read32, f.write16, f.read16
	t.Cleanup(func() {
		mmioWrite32, mmioRead32, mmioWrite16, mmioRead16 = ow32, or32, ow16, or16
	})
	return New(0), f
}

func TestReadBlockDecodesCannedBlock(t *testing.T) {
	want := make([]byte, blockSize)
	for i := range want {
		want[i] = byte(i)
	}
	d, _ := withFakeController(t, want)

	got := make([]byte, blockSize)
	err := d.ReadBlock(7, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadBlockRejectsShortBuffer(t *testing.T) {
	d, _ := withFakeController(t, make([]byte, blockSize))
	err := d.ReadBlock(0, make([]byte, 10))
	assert.Error(t, err)
}

func TestReadBlockPropagatesCommandError(t *testing.T) {
	d, f := withFakeController(t, make([]byte, blockSize))
	f.failCmd = true
	err := d.ReadBlock(0, make([]byte, blockSize))
	assert.Error(t, err)
}

func TestReadBlockSetsBlockSizeRegister(t *testing.T) {
	d, f := withFakeController(t, make([]byte, blockSize))
	_ = d.ReadBlock(0, make([]byte, blockSize))
	assert.EqualValues(t, blockSize, f.regs16[regBlockSize])
}
