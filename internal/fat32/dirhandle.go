package fat32

import "errors"

// Dir is a directory entry implementing process.File's iteration-only
// contract — Entry in spec.md's GLOSSARY is "either a file (read/write/
// seek, plus byte size) or a directory (iteration)"; Dir is the latter.
// Grounded on dir.rs's Dir<HANDLE>, minus its `find` method (folded into
// FileSystem.Open's path-walk instead, since that is the only caller).
type Dir struct {
	name     string
	entries  []rawDirEntry
	metadata Metadata
}

func (d *Dir) IsDir() bool      { return true }
func (d *Dir) IsReadable() bool { return false }
func (d *Dir) IsWritable() bool { return false }

func (d *Dir) Size() (int64, error) {
	return 0, errors.New("fat32: Size: a directory has no byte size")
}

func (d *Dir) Read(p []byte) (int, error) {
	return 0, errors.New("fat32: Read: is a directory")
}

func (d *Dir) Write(p []byte) (int, error) {
	return 0, errors.New("fat32: Write: is a directory")
}

func (d *Dir) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("fat32: Seek: is a directory")
}

// Readdir lists the directory's live entry names, spec.md's "directory
// (iteration)" contract.
func (d *Dir) Readdir() ([]string, error) {
	names := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		names = append(names, e.name)
	}
	return names, nil
}
