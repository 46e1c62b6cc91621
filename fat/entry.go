package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Attr is a set of FAT directory entry attribute bits.
type Attr uint8

const (
	AttrReadOnly    Attr = 0x01
	AttrHidden      Attr = 0x02
	AttrSystem      Attr = 0x04
	AttrVolumeLabel Attr = 0x08
	AttrDirectory   Attr = 0x10
	AttrArchive     Attr = 0x20

	// attrLongName marks VFAT long file name entries, which are ignored.
	attrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

const (
	// deletedMarker in the first name byte marks a deleted entry.
	deletedMarker = 0xE5

	// kanjiMarker in the first name byte stands for a literal 0xE5.
	kanjiMarker = 0x05
)

var blank = [11]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// shortName is a name in the on-disk 8.3 format: 8 bytes of name and 3
// bytes of extension, both padded with spaces.
type shortName [11]byte

// String returns the name in NAME.EXT notation.
func (n shortName) String() string {
	name := strings.TrimRight(string(n[:8]), " ")
	if n[0] == kanjiMarker {
		name = "\xe5" + name[1:]
	}
	if ext := strings.TrimRight(string(n[8:]), " "); ext != "" {
		return name + "." + ext
	}
	return name
}

func validShortNameChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c < 0x20 || c == 0x7F:
		return false
	}
	return !strings.ContainsRune(" \"*+,./:;<=>?[\\]|", rune(c)) && c < 0x80
}

// parseShortName converts NAME.EXT into its on-disk form. Lower case
// letters are upper-cased, as names compare case-insensitively in FAT.
func parseShortName(s string) (shortName, error) {
	upper := strings.ToUpper(s)
	base, ext := upper, ""
	if idx := strings.LastIndexByte(upper, '.'); idx > -1 {
		base, ext = upper[:idx], upper[idx+1:]
	}
	if len(base) < 1 || len(base) > 8 || len(ext) > 3 {
		return shortName{}, fmt.Errorf("name %q is not in 8.3 format", s)
	}
	for i := 0; i < len(base); i++ {
		if !validShortNameChar(base[i]) {
			return shortName{}, fmt.Errorf("name %q: invalid character %q", s, base[i])
		}
	}
	for i := 0; i < len(ext); i++ {
		if !validShortNameChar(ext[i]) {
			return shortName{}, fmt.Errorf("name %q: invalid character %q", s, ext[i])
		}
	}
	result := shortName(blank)
	copy(result[:8], base)
	copy(result[8:], ext)
	return result, nil
}

// validLabel checks that label can be stored in the label entry.
// Unlike file names, labels may contain spaces.
func validLabel(label string) error {
	upper := strings.ToUpper(label)
	for i := 0; i < len(upper); i++ {
		if c := upper[i]; c != ' ' && !validShortNameChar(c) {
			return fmt.Errorf("volume label %q: invalid character %q", label, c)
		}
	}
	return nil
}

func labelBytes(label string) [11]byte {
	result := blank
	copy(result[:], strings.ToUpper(label))
	return result
}

// dirEntry is the 32 byte FAT directory entry.
type dirEntry struct {
	Name         shortName
	Attr         Attr
	NTReserved   uint8
	CreateTenth  uint8
	CreateTime   uint16
	CreateDate   uint16
	AccessDate   uint16
	ClusterHigh  uint16
	WriteTime    uint16
	WriteDate    uint16
	FirstCluster uint16
	Size         uint32
}

func (e *dirEntry) put(b []byte) {
	copy(b[0:11], e.Name[:])
	b[11] = uint8(e.Attr)
	b[12] = e.NTReserved
	b[13] = e.CreateTenth
	binary.LittleEndian.PutUint16(b[14:], e.CreateTime)
	binary.LittleEndian.PutUint16(b[16:], e.CreateDate)
	binary.LittleEndian.PutUint16(b[18:], e.AccessDate)
	binary.LittleEndian.PutUint16(b[20:], e.ClusterHigh)
	binary.LittleEndian.PutUint16(b[22:], e.WriteTime)
	binary.LittleEndian.PutUint16(b[24:], e.WriteDate)
	binary.LittleEndian.PutUint16(b[26:], e.FirstCluster)
	binary.LittleEndian.PutUint32(b[28:], e.Size)
}

func decodeDirEntry(b []byte) dirEntry {
	var e dirEntry
	copy(e.Name[:], b[0:11])
	e.Attr = Attr(b[11])
	e.NTReserved = b[12]
	e.CreateTenth = b[13]
	e.CreateTime = binary.LittleEndian.Uint16(b[14:])
	e.CreateDate = binary.LittleEndian.Uint16(b[16:])
	e.AccessDate = binary.LittleEndian.Uint16(b[18:])
	e.ClusterHigh = binary.LittleEndian.Uint16(b[20:])
	e.WriteTime = binary.LittleEndian.Uint16(b[22:])
	e.WriteDate = binary.LittleEndian.Uint16(b[24:])
	e.FirstCluster = binary.LittleEndian.Uint16(b[26:])
	e.Size = binary.LittleEndian.Uint32(b[28:])
	return e
}

// free reports whether the entry is unused: never used, or deleted.
func (e *dirEntry) free() bool {
	return e.Name[0] == 0 || e.Name[0] == deletedMarker
}

func (e *dirEntry) isFile() bool {
	return !e.free() && e.Attr&attrLongName != attrLongName && e.Attr&(AttrVolumeLabel|AttrDirectory) == 0
}

func fatTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

// representable reports whether t fits the 7 bit year field of a FAT
// date.
func representable(t time.Time) bool {
	y := t.Year()
	return y >= 1980 && y <= 2107
}

func fatDate(t time.Time) uint16 {
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

func unmarshalTimeDate(t, d uint16) time.Time {
	return time.Date(
		1980+int(d>>9),
		time.Month((d>>5)&0xF),
		int(d&0x1F),
		int(t>>11),
		int((t>>5)&0x3F),
		int(t&0x1F)*2,
		0,
		time.UTC)
}
