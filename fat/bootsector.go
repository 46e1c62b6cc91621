package fat

import (
	"bytes"
	"encoding/binary"
)

// bootSector renders the boot sector of the volume. It only depends on
// the geometry, so Device renders it once in New.
func bootSector(g *Geometry, oem string, label [11]byte, volumeID uint32) []byte {
	var (
		jumpCode            = [3]byte{0xEB, 0x3C, 0x90}
		fileSystemType      = [8]byte{'F', 'A', 'T', '1', '6', ' ', ' ', ' '}
		bootSectorSignature = [2]byte{0x55, 0xAA}
		oemName             = [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	)
	copy(oemName[:], oem)

	totalSectors16 := uint16(0)
	totalSectors32 := uint32(0)
	if g.TotalBlocks < 0x10000 {
		totalSectors16 = uint16(g.TotalBlocks)
	} else {
		totalSectors32 = g.TotalBlocks
	}

	buf := bytes.NewBuffer(make([]byte, 0, g.BlockSize))
	for _, v := range []interface{}{
		jumpCode,                     // jump code: intel 80x86 jump instruction
		oemName,                      // OEM
		uint16(g.BlockSize),          // in bytes
		uint8(g.SectorsPerCluster),   // i.e. each FAT entry covers SectorsPerCluster*BlockSize bytes
		uint16(g.ReservedSectors),    // reserved sectors
		uint8(g.FATCopies),           // copies of the FAT
		uint16(g.RootEntries),        // root directory entries
		totalSectors16,               // 0 = use uint32 number of sectors following later
		g.Media,                      // media descriptor
		uint16(g.SectorsPerFAT),      // number of sectors per FAT
		uint16(1),                    // (only for bootcode) number of sectors per track
		uint16(1),                    // (only for bootcode) number of heads
		uint32(0),                    // no hidden sectors
		totalSectors32,               // total number of sectors
		uint8(0x80),                  // (only for bootcode) drive number
		uint8(0),                     // reserved
		uint8(0x29),                  // magic value: extended boot signature
		volumeID,                     // volume serial number
		label,                        // volume label
		fileSystemType,               // informational only
	} {
		// bytes.Buffer writes never fail
		binary.Write(buf, binary.LittleEndian, v)
	}
	sector := make([]byte, g.BlockSize)
	copy(sector, buf.Bytes())
	// The signature goes into the last two bytes of the first 512, even
	// for larger sectors.
	copy(sector[510:512], bootSectorSignature[:])
	return sector
}
