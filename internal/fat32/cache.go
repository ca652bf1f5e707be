// Cached sector layer, grounded on
// original_source/lib/fat32/src/vfat/cache.rs's CachedPartition: maps
// logical (partition-relative) sectors to physical device sectors and
// caches sector contents in memory. Recovered per SPEC_FULL.md §12 ("a
// read-mostly filesystem without any caching would make the boot
// scenario... pay a raw SD read per cluster, which the original source
// explicitly avoids").
//
// The Rust original is an unbounded HashMap (every sector ever read stays
// cached forever) with a `dirty` flag for an eventual write-back path this
// core's Non-goals explicitly drop ("write support for the filesystem").
// This port bounds the cache at cacheCapacity sectors with simple FIFO
// eviction instead of growing without limit — the original's own
// `get_mut`/dirty-tracking machinery existed only to support writes, so it
// is not carried over.
package fat32

import "fmt"

const cacheCapacity = 256

type cachedPartition struct {
	device     BlockDevice
	start      uint64 // physical sector where the partition begins
	numSectors uint64
	sectorSize uint64
	factor     uint64 // physical sectors per logical sector

	cache map[uint64][]byte
	order []uint64 // FIFO eviction order
}

func newCachedPartition(dev BlockDevice, start, numSectors, sectorSize uint64) (*cachedPartition, error) {
	if sectorSize < dev.SectorSize() {
		return nil, fmt.Errorf("fat32: partition sector size %d smaller than device sector size %d", sectorSize, dev.SectorSize())
	}
	return &cachedPartition{
		device:     dev,
		start:      start,
		numSectors: numSectors,
		sectorSize: sectorSize,
		factor:     sectorSize / dev.SectorSize(),
		cache:      make(map[uint64][]byte),
	}, nil
}

func (p *cachedPartition) virtualToPhysical(virt uint64) (uint64, bool) {
	if virt >= p.numSectors {
		return 0, false
	}
	return p.start + virt*p.factor, true
}

// get returns the cached contents of logical sector `sector`, reading it
// from the device first if it is not already cached.
func (p *cachedPartition) get(sector uint64) ([]byte, error) {
	if data, ok := p.cache[sector]; ok {
		return data, nil
	}
	phys, ok := p.virtualToPhysical(sector)
	if !ok {
		return nil, fmt.Errorf("fat32: logical sector %d out of range", sector)
	}
	data := make([]byte, p.sectorSize)
	devSectorSize := p.device.SectorSize()
	for i := uint64(0); i < p.factor; i++ {
		start := i * devSectorSize
		if _, err := p.device.ReadSector(phys+i, data[start:start+devSectorSize]); err != nil {
			return nil, err
		}
	}
	p.insert(sector, data)
	return data, nil
}

func (p *cachedPartition) insert(sector uint64, data []byte) {
	if len(p.cache) >= cacheCapacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.cache, oldest)
	}
	p.cache[sector] = data
	p.order = append(p.order, sector)
}

// readSector copies up to len(buf) bytes of logical sector `sector` into
// buf, the same truncate-to-buffer-length contract as the original's
// BlockDevice::read_sector implementation for CachedPartition.
func (p *cachedPartition) readSector(sector uint64, buf []byte) (int, error) {
	data, err := p.get(sector)
	if err != nil {
		return 0, err
	}
	n := len(buf)
	if n > len(data) {
		n = len(data)
	}
	copy(buf[:n], data[:n])
	return n, nil
}
