package fat32

import (
	"errors"
	"strings"
	"sync"

	"github.com/iansmith/nanokernel/internal/process"
)

// FileSystem is the mounted-volume handle spec.md §6 calls "an external
// FAT32 read-only provider exposing open(path) -> Entry"; it implements
// process.Loader directly. Grounded on vfat.rs's `impl FileSystem for &'a
// HANDLE` — the original is generic over a VFatHandle trait object so
// callers can choose their own locking; this port fixes that choice to a
// single sync.Mutex owned here, per spec.md §6.3's "the core takes a
// mutex around it".
type FileSystem struct {
	mu sync.Mutex
	v  *volume
}

// Mount reads the MBR/EBPB and returns a ready FileSystem — vfat.rs's
// `VFat::from`.
func Mount(dev BlockDevice) (*FileSystem, error) {
	v, err := mountVolume(dev)
	if err != nil {
		return nil, err
	}
	return &FileSystem{v: v}, nil
}

// Open resolves a '/'-separated path from the root directory, the Go
// port of vfat.rs's `FileSystem::open` path-component walk, folded
// together with dir.rs's `Dir::find` (case-insensitive name comparison)
// since FileSystem.Open is the only caller of either in this port.
func (fs *FileSystem) Open(path string) (process.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := fs.readDirEntries(fs.v.rootDirCluster)
	if err != nil {
		return nil, err
	}
	cluster := fs.v.rootDirCluster
	var current rawDirEntry
	haveCurrent := false

	components := splitPath(path)
	for i, comp := range components {
		found, ok := lookup(entries, comp)
		if !ok {
			return nil, errors.New("fat32: Open: no entry named " + comp)
		}
		current, haveCurrent = found, true
		cluster = found.firstCluster
		isLast := i == len(components)-1
		if !isLast {
			if !current.metadata.Attributes.IsDir() {
				return nil, errors.New("fat32: Open: " + comp + " is not a directory")
			}
			entries, err = fs.readDirEntries(cluster)
			if err != nil {
				return nil, err
			}
		}
	}

	if !haveCurrent {
		// Path resolved to the root directory itself.
		return &Dir{name: "/", entries: entries}, nil
	}
	if current.metadata.Attributes.IsDir() {
		childEntries, err := fs.readDirEntries(cluster)
		if err != nil {
			return nil, err
		}
		return &Dir{name: current.name, entries: childEntries, metadata: current.metadata}, nil
	}

	data, err := fs.readFileData(cluster, current.size)
	if err != nil {
		return nil, err
	}
	return &File{name: current.name, data: data, metadata: current.metadata}, nil
}

func (fs *FileSystem) readDirEntries(cluster Cluster) ([]rawDirEntry, error) {
	data, err := fs.v.readChain(cluster)
	if err != nil {
		return nil, err
	}
	return parseDirectory(data), nil
}

// readFileData reads a file's whole cluster chain and truncates it to the
// directory entry's recorded size, vfat.rs's DirIterator assertion
// `assert!(br >= regular_entry.file_size)` turned into a plain truncate.
func (fs *FileSystem) readFileData(cluster Cluster, size uint32) ([]byte, error) {
	if cluster == 0 {
		return nil, nil // zero-length file: no cluster chain to read
	}
	data, err := fs.v.readChain(cluster)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) > size {
		data = data[:size]
	}
	return data, nil
}

func splitPath(path string) []string {
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func lookup(entries []rawDirEntry, name string) (rawDirEntry, bool) {
	for _, e := range entries {
		if strings.EqualFold(e.name, name) {
			return e, true
		}
	}
	return rawDirEntry{}, false
}
