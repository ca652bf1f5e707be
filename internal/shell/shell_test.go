package shell

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/process"
)

type fakeFile struct {
	isDir   bool
	names   []string
	content []byte
	offset  int
}

func (f *fakeFile) IsDir() bool          { return f.isDir }
func (f *fakeFile) IsReadable() bool     { return true }
func (f *fakeFile) IsWritable() bool     { return false }
func (f *fakeFile) Size() (int64, error) { return int64(len(f.content)), nil }
func (f *fakeFile) Read(p []byte) (int, error) {
	if f.offset >= len(f.content) {
		return 0, errors.New("EOF")
	}
	n := copy(p, f.content[f.offset:])
	f.offset += n
	return n, nil
}
func (f *fakeFile) Write(p []byte) (int, error)            { return 0, errors.New("read-only") }
func (f *fakeFile) Seek(o int64, whence int) (int64, error) { return 0, nil }
func (f *fakeFile) Readdir() ([]string, error) {
	if !f.isDir {
		return nil, errors.New("not a directory")
	}
	return f.names, nil
}

type fakeSyscalls struct {
	files     map[string]*fakeFile
	spawned   []string
	spawnErr  error
	sleptMS   []int64
	sleepRet  int64
	exited    bool
}

func newFakeSyscalls() *fakeSyscalls {
	return &fakeSyscalls{files: map[string]*fakeFile{}}
}

func (f *fakeSyscalls) Open(path string) (process.File, error) {
	ff, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	clone := *ff
	return &clone, nil
}

func (f *fakeSyscalls) Spawn(path string) (uint64, error) {
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	f.spawned = append(f.spawned, path)
	return uint64(len(f.spawned) + 1), nil
}

func (f *fakeSyscalls) Sleep(ms int64) int64 {
	f.sleptMS = append(f.sleptMS, ms)
	return f.sleepRet
}

func (f *fakeSyscalls) Exit() { f.exited = true }

func newTestShell(in string, sys *fakeSyscalls) (*Shell, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return New(strings.NewReader(in), out, sys), out
}

func TestRunPrintsBannerAndPromptThenExitsOnEOF(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("", sys)

	sh.Run()

	assert.Contains(t, out.String(), "(/) > ")
}

func TestRunReportsMissingRootDirectory(t *testing.T) {
	sys := newFakeSyscalls() // no "/" registered
	sh, out := newTestShell("", sys)

	sh.Run()

	assert.Contains(t, out.String(), "could not open root directory")
}

func TestEchoPrintsJoinedArgs(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("echo hello world\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "hello world\n")
}

func TestPwdPrintsCurrentDirectory(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("pwd\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "\n/\n")
}

func TestCdDescendsAndPwdReflectsIt(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sys.files["/SUBDIR"] = &fakeFile{isDir: true}
	sh, out := newTestShell("cd SUBDIR\npwd\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "(/SUBDIR) > ")
	assert.Contains(t, out.String(), "\n/SUBDIR\n")
}

func TestCdDotDotReturnsToParent(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sys.files["/SUBDIR"] = &fakeFile{isDir: true}
	sh, out := newTestShell("cd SUBDIR\ncd ..\npwd\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "\n/\n")
}

func TestCdToMissingDirectoryReportsErrorAndStaysPut(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("cd NOPE\npwd\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "error: directory NOPE not found")
	assert.Contains(t, out.String(), "\n/\n")
}

func TestLsListsEntriesInOrder(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true, names: []string{"HELLO.TXT", "SUBDIR"}}
	sh, out := newTestShell("ls\nexit\n", sys)

	sh.Run()

	idxHello := strings.Index(out.String(), "HELLO.TXT")
	idxSub := strings.Index(out.String(), "SUBDIR")
	require.True(t, idxHello >= 0 && idxSub >= 0)
	assert.Less(t, idxHello, idxSub)
}

func TestLsOnMissingDirectoryReportsError(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("ls NOPE\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "error: directory /NOPE not found")
}

func TestCatPrintsFileContents(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sys.files["/HELLO.TXT"] = &fakeFile{content: []byte("hello")}
	sh, out := newTestShell("cat HELLO.TXT\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "hello\n")
}

func TestCatOnMissingFileReportsError(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("cat NOPE.TXT\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "error: file NOPE.TXT not found")
}

func TestSleepReportsElapsedFromSyscalls(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sys.sleepRet = 1002
	sh, out := newTestShell("sleep 1000\nexit\n", sys)

	sh.Run()

	require.Len(t, sys.sleptMS, 1)
	assert.EqualValues(t, 1000, sys.sleptMS[0])
	assert.Contains(t, out.String(), "slept for 1002ms")
}

func TestExitCallsSyscallsExit(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, _ := newTestShell("exit\n", sys)

	sh.Run()

	assert.True(t, sys.exited)
}

func TestUnknownCommandReportsError(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("frobnicate\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "unknown command: frobnicate")
}

func TestDotSlashCommandSpawnsAndPrintsPID(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("./fib\nexit\n", sys)

	sh.Run()

	require.Equal(t, []string{"/fib"}, sys.spawned)
	assert.Contains(t, out.String(), "created child process with PID 2")
}

func TestDotSlashCommandReportsSpawnFailure(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sys.spawnErr = errors.New("no such program")
	sh, out := newTestShell("./fib\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "error: failed to execute ./fib")
}

func TestBackspaceErasesPreviousCharacterBeforeSubmit(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	// "echoo" with a trailing backspace corrects to "echo".
	sh, out := newTestShell("echoo\x08 1\nexit\n", sys)

	sh.Run()

	assert.Contains(t, out.String(), "1\n")
}

func TestEmptyLineReprintsPromptWithoutDispatch(t *testing.T) {
	sys := newFakeSyscalls()
	sys.files["/"] = &fakeFile{isDir: true}
	sh, out := newTestShell("\nexit\n", sys)

	sh.Run()

	assert.Equal(t, 2, strings.Count(out.String(), "(/) > "))
}

func TestNormalizePathCollapsesDotAndDotDot(t *testing.T) {
	assert.Equal(t, "/a/c", normalizePath("/a/./b/../c"))
	assert.Equal(t, "/", normalizePath("/a/.."))
	assert.Equal(t, "/", normalizePath("/"))
}

func TestResolvePathHandlesAbsoluteRelativeAndParent(t *testing.T) {
	assert.Equal(t, "/SUBDIR", resolvePath("/", "SUBDIR"))
	assert.Equal(t, "/a/b", resolvePath("/a", "b"))
	assert.Equal(t, "/", resolvePath("/a", ".."))
	assert.Equal(t, "/x", resolvePath("/a/b", "/x"))
}
