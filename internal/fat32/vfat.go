package fat32

import "fmt"

// volume holds the geometry and cached device backing one mounted FAT32
// filesystem, the Go port of vfat.rs's VFat<HANDLE> minus the HANDLE type
// parameter (this core's FileSystem owns the mutex directly instead, per
// §6.3's "the core takes a mutex around it").
type volume struct {
	device            *cachedPartition
	bytesPerSector    uint16
	sectorsPerCluster uint8
	fatStartSector    uint64
	dataStartSector   uint64
	rootDirCluster    Cluster
}

// mountVolume reads the MBR, EBPB, and sets up the cached sector layer —
// vfat.rs's `VFat::from` flattened out of its HANDLE::new wrapping.
func mountVolume(dev BlockDevice) (*volume, error) {
	partitions, err := readMBR(dev)
	if err != nil {
		return nil, err
	}
	part, err := findFAT32Partition(partitions)
	if err != nil {
		return nil, err
	}
	bpb, err := readEBPB(dev, uint64(part.relativeSector))
	if err != nil {
		return nil, err
	}

	cp, err := newCachedPartition(dev, uint64(part.relativeSector), uint64(part.totalSectors), uint64(bpb.bytesPerSector))
	if err != nil {
		return nil, err
	}

	dataStart := uint64(bpb.reservedSectors) + uint64(bpb.numFATs)*uint64(bpb.sectorsPerFAT)
	return &volume{
		device:            cp,
		bytesPerSector:    bpb.bytesPerSector,
		sectorsPerCluster: bpb.sectorsPerCluster,
		fatStartSector:    uint64(bpb.reservedSectors),
		dataStartSector:   dataStart,
		rootDirCluster:    Cluster(bpb.rootDirCluster),
	}, nil
}

// clusterStartSector maps a cluster number to its first logical sector —
// vfat.rs's cluster_start_sector (clusters 0 and 1 are reserved; cluster 2
// is the first addressable one, hence the "- 2").
func (v *volume) clusterStartSector(c Cluster) uint64 {
	return v.dataStartSector + (uint64(c)-2)*uint64(v.sectorsPerCluster)
}

// readCluster appends one full cluster's bytes to buf — vfat.rs's
// read_cluster, minus its unused `offset` parameter (every caller in the
// original passes 0; read_chain never uses a nonzero offset either).
func (v *volume) readCluster(c Cluster, buf *[]byte) (int, error) {
	sector := v.clusterStartSector(c)
	total := 0
	for i := uint8(0); i < v.sectorsPerCluster; i++ {
		chunk := make([]byte, v.bytesPerSector)
		n, err := v.device.readSector(sector+uint64(i), chunk)
		if err != nil {
			return total, err
		}
		*buf = append(*buf, chunk[:n]...)
		total += n
	}
	return total, nil
}

// fatEntry looks up the FAT table entry for cluster c — vfat.rs's
// fat_entry, generalized to not require a live reference into the cache
// (Go's cache already returns owned byte slices, so there is no
// borrow-checker reason to keep one).
func (v *volume) fatEntry(c Cluster) (FatEntry, error) {
	entriesPerSector := uint64(v.bytesPerSector) / 4
	fatSector := v.fatStartSector + uint64(c)/entriesPerSector
	buf := make([]byte, v.bytesPerSector)
	if _, err := v.device.readSector(fatSector, buf); err != nil {
		return 0, err
	}
	idx := (uint64(c) % entriesPerSector) * 4
	return FatEntry(leUint32(buf[idx : idx+4])), nil
}

// readChain reads every cluster in the chain starting at `start`, the
// same Free/Reserved/Bad/Eoc/Data dispatch as vfat.rs's read_chain
// (including its "Free ends the chain instead of erroring" quirk, kept
// because the original's own comment flags it as load-bearing: "why is
// this needed for kernel to run").
func (v *volume) readChain(start Cluster) ([]byte, error) {
	var buf []byte
	curr := start
	for {
		if _, err := v.readCluster(curr, &buf); err != nil {
			return buf, err
		}
		entry, err := v.fatEntry(curr)
		if err != nil {
			return buf, err
		}
		status, next := entry.Status()
		switch status {
		case StatusData:
			curr = next
		case StatusEOC, StatusFree:
			return buf, nil
		case StatusReserved:
			return buf, fmt.Errorf("fat32: readChain: cluster %d has reserved status", curr)
		case StatusBad:
			return buf, fmt.Errorf("fat32: readChain: cluster %d has bad status", curr)
		}
	}
}
