package fat32

import (
	"errors"
	"io"
)

// File is a read-mostly regular file loaded entirely into memory on
// open, the Go port of file.rs's File<HANDLE> minus its io::Write/sync
// path — spec.md's Non-goals drop filesystem write support, so Write
// here returns an error instead of mutating the in-memory copy and
// silently never flushing it back (file.rs's own `sync` writes the
// in-memory buffer back via write_chain; keeping Write without sync
// would silently discard edits, which is worse than refusing them).
type File struct {
	name     string
	data     []byte
	offset   int
	metadata Metadata
}

func (f *File) IsDir() bool      { return false }
func (f *File) IsReadable() bool { return true }
func (f *File) IsWritable() bool { return false }

func (f *File) Size() (int64, error) { return int64(len(f.data)), nil }

// Read implements process.File's Read, the same bytes-remaining-at-offset
// contract as file.rs's io::Read impl.
func (f *File) Read(p []byte) (int, error) {
	if f.offset >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.offset:])
	f.offset += n
	return n, nil
}

// Write always fails: this filesystem is read-only per spec.md's
// Non-goals.
func (f *File) Write(p []byte) (int, error) {
	return 0, errors.New("fat32: filesystem is read-only")
}

// Seek implements process.File's Seek with the same three SeekFrom cases
// and out-of-range rejection as file.rs's io::Seek impl (seek to exactly
// the end is allowed; seeking past either end is InvalidInput).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(f.offset) + offset
	case io.SeekEnd:
		target = int64(len(f.data)) + offset
	default:
		return 0, errors.New("fat32: Seek: invalid whence")
	}
	if target < 0 || target > int64(len(f.data)) {
		return 0, errors.New("fat32: Seek: out of range")
	}
	f.offset = int(target)
	return target, nil
}

func (f *File) Readdir() ([]string, error) {
	return nil, errors.New("fat32: Readdir: not a directory")
}
