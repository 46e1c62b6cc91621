package fat

const (
	// reservedClusters is the number of FAT entries which never map to
	// data: the first two entries hold a copy of the media descriptor and
	// the file system state.
	reservedClusters = 2

	// endOfChain marks the end of a cluster chain in the FAT.
	endOfChain = uint16(0xFFFF)

	// hardDisk is the media descriptor for a hard disk (as opposed to floppy).
	hardDisk = uint8(0xF8)

	// clean describes a cleanly unmounted FAT file system.
	clean = uint16(0xFFFF)

	dirEntrySize = 32

	// Cluster counts outside of this range are classified as FAT12 or
	// FAT32 by at least one common implementation.
	minClusters = 4087
	maxClusters = 65524

	maxClusterSize = 32 * 1024

	reservedSectors = 1
)

// Defaults applied by New for zero Config fields.
const (
	DefaultBlockSize   = 512
	DefaultFATCopies   = 2
	DefaultRootEntries = 512
)

// Geometry holds the BIOS Parameter Block values of a virtual volume. It
// is computed once by NewGeometry and never changes afterwards.
type Geometry struct {
	BlockSize         int
	TotalBlocks       uint32
	SectorsPerCluster int
	ReservedSectors   int
	FATCopies         int
	SectorsPerFAT     int
	RootEntries       int
	RootDirSectors    int
	Media             uint8

	// Clusters is the number of data clusters, i.e. valid cluster
	// numbers are [2, Clusters+2).
	Clusters int
}

// NewGeometry derives a FAT16 geometry for a volume of (at least)
// capacity bytes.
//
// The sectors per cluster value is the smallest power of two which keeps
// the cluster count within the FAT16 range. Capacities too small for
// FAT16 are rounded up to the smallest FAT16 volume, which costs nothing
// on a virtual disk. Capacities which would need clusters larger than
// 32 KiB are rejected.
func NewGeometry(capacity int64, blockSize, fatCopies, rootEntries int) (Geometry, error) {
	switch blockSize {
	case 512, 1024, 2048, 4096:
	default:
		return Geometry{}, configErrorf("block size %d not one of 512, 1024, 2048, 4096", blockSize)
	}
	if fatCopies != 1 && fatCopies != 2 {
		return Geometry{}, configErrorf("%d FAT copies, want 1 or 2", fatCopies)
	}
	if rootEntries <= 0 || rootEntries > 0xFFFF || (rootEntries*dirEntrySize)%blockSize != 0 {
		return Geometry{}, configErrorf("%d root directory entries do not fill whole %d byte sectors", rootEntries, blockSize)
	}
	if capacity <= 0 {
		return Geometry{}, configErrorf("capacity %d bytes", capacity)
	}
	total := capacity / int64(blockSize)
	if total > 0xFFFFFFFF {
		return Geometry{}, configErrorf("capacity %d bytes exceeds 32-bit sector count", capacity)
	}

	for spc := 1; spc*blockSize <= maxClusterSize; spc *= 2 {
		g := Geometry{
			BlockSize:         blockSize,
			TotalBlocks:       uint32(total),
			SectorsPerCluster: spc,
			ReservedSectors:   reservedSectors,
			FATCopies:         fatCopies,
			RootEntries:       rootEntries,
			RootDirSectors:    rootEntries * dirEntrySize / blockSize,
			Media:             hardDisk,
		}
		for {
			g.layout()
			if g.Clusters >= minClusters {
				break
			}
			// Only reachable with one sector per cluster: grow the volume
			// until it holds the minimum number of clusters.
			g.TotalBlocks += uint32((minClusters - g.Clusters) * spc)
		}
		if g.Clusters <= maxClusters {
			return g, nil
		}
	}
	return Geometry{}, configErrorf("capacity %d bytes too large for FAT16 with %d byte sectors", capacity, blockSize)
}

// clustersFor returns the number of data clusters left when each FAT
// copy occupies fatSectors sectors.
func (g *Geometry) clustersFor(fatSectors int) int {
	data := int64(g.TotalBlocks) - int64(g.ReservedSectors+g.RootDirSectors+g.FATCopies*fatSectors)
	if data < 0 {
		return 0
	}
	return int(data / int64(g.SectorsPerCluster))
}

// fatFits reports whether fatSectors sectors hold an entry for every
// cluster plus the two reserved entries.
func (g *Geometry) fatFits(fatSectors int) bool {
	return fullSectors((g.clustersFor(fatSectors)+reservedClusters)*2, g.BlockSize) <= fatSectors
}

func (g *Geometry) layout() {
	// Estimate as in Microsoft's FAT documentation, generalized to
	// other sector sizes; it never underestimates.
	meta := int64(g.ReservedSectors + g.RootDirSectors)
	perSector := int64(g.BlockSize/2*g.SectorsPerCluster + g.FATCopies)
	f := int((int64(g.TotalBlocks) - meta + perSector - 1) / perSector)
	if f < 1 {
		f = 1
	}
	for f > 1 && g.fatFits(f-1) {
		f--
	}
	for !g.fatFits(f) {
		f++
	}
	g.SectorsPerFAT = f
	g.Clusters = g.clustersFor(f)
}

// ClusterSize returns the size of a cluster in bytes.
func (g *Geometry) ClusterSize() int {
	return g.SectorsPerCluster * g.BlockSize
}

// FATStart returns the first block of the given FAT copy (0-based).
func (g *Geometry) FATStart(copy int) uint32 {
	return uint32(g.ReservedSectors + copy*g.SectorsPerFAT)
}

// RootDirStart returns the first block of the root directory.
func (g *Geometry) RootDirStart() uint32 {
	return g.FATStart(g.FATCopies)
}

// DataStart returns the first block of the data region, i.e. of cluster 2.
func (g *Geometry) DataStart() uint32 {
	return g.RootDirStart() + uint32(g.RootDirSectors)
}

// ClusterStart returns the first block of the given cluster.
func (g *Geometry) ClusterStart(cluster int) uint32 {
	return g.DataStart() + uint32((cluster-reservedClusters)*g.SectorsPerCluster)
}

type region uint8

const (
	regionBoot region = iota
	regionFAT
	regionRootDir
	regionData
)

func (r region) String() string {
	switch r {
	case regionBoot:
		return "boot"
	case regionFAT:
		return "fat"
	case regionRootDir:
		return "rootdir"
	default:
		return "data"
	}
}

// classify maps an in-range lba to its region and the block index within
// that region. For FAT blocks the index is relative to the start of the
// FAT copy the block belongs to.
func (g *Geometry) classify(lba uint32) (region, uint32) {
	switch {
	case lba < uint32(g.ReservedSectors):
		return regionBoot, lba
	case lba < g.RootDirStart():
		return regionFAT, (lba - g.FATStart(0)) % uint32(g.SectorsPerFAT)
	case lba < g.DataStart():
		return regionRootDir, lba - g.RootDirStart()
	default:
		return regionData, lba - g.DataStart()
	}
}

func fullSectors(bytes, sectorSize int) int {
	sectors := bytes / sectorSize
	if bytes%sectorSize > 0 {
		sectors++
	}
	return sectors
}

func fullClusters(bytes int64, clusterSize int) int {
	clusters := bytes / int64(clusterSize)
	if bytes%int64(clusterSize) > 0 {
		clusters++
	}
	return int(clusters)
}
