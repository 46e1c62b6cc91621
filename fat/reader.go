package fat

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// Reader parses the root directory of a FAT16 file system. It is used to
// look at a synthesized image the way a host would, and to locate files
// within an image file.
type Reader struct {
	r io.ReaderAt

	sectorSize        int
	sectorsPerCluster int
	reservedSectors   int
	fatCopies         int
	rootEntries       int
	sectorsPerFAT     int
	totalSectors      uint32

	label   string
	entries []rootEntry
}

// rootEntry is a directory entry with its byte offset in the image.
type rootEntry struct {
	dirEntry
	off int64
}

// NewReader reads the boot sector and root directory from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	boot := make([]byte, 512)
	if _, err := r.ReadAt(boot, 0); err != nil {
		return nil, fmt.Errorf("reading boot sector: %v", err)
	}
	if boot[510] != 0x55 || boot[511] != 0xAA {
		return nil, fmt.Errorf("boot sector signature %#x %#x, want 0x55 0xaa", boot[510], boot[511])
	}
	if got := string(boot[54:62]); got != "FAT16   " {
		return nil, fmt.Errorf("file system type %q, want FAT16", got)
	}
	rd := &Reader{
		r:                 r,
		sectorSize:        int(binary.LittleEndian.Uint16(boot[11:])),
		sectorsPerCluster: int(boot[13]),
		reservedSectors:   int(binary.LittleEndian.Uint16(boot[14:])),
		fatCopies:         int(boot[16]),
		rootEntries:       int(binary.LittleEndian.Uint16(boot[17:])),
		sectorsPerFAT:     int(binary.LittleEndian.Uint16(boot[22:])),
		totalSectors:      uint32(binary.LittleEndian.Uint16(boot[19:])),
	}
	if rd.totalSectors == 0 {
		rd.totalSectors = binary.LittleEndian.Uint32(boot[32:])
	}
	if rd.sectorSize == 0 || rd.sectorsPerCluster == 0 || rd.sectorsPerFAT == 0 {
		return nil, fmt.Errorf("invalid BIOS parameter block")
	}

	root := make([]byte, rd.rootEntries*dirEntrySize)
	if _, err := r.ReadAt(root, rd.rootDirOffset()); err != nil {
		return nil, fmt.Errorf("reading root directory: %v", err)
	}
	for i := 0; i+dirEntrySize <= len(root); i += dirEntrySize {
		if root[i] == 0 {
			break // end of directory
		}
		e := decodeDirEntry(root[i : i+dirEntrySize])
		if !e.free() && e.Attr&(attrLongName|AttrDirectory) == AttrVolumeLabel {
			rd.label = strings.TrimRight(string(e.Name[:]), " ")
			continue
		}
		if e.isFile() {
			rd.entries = append(rd.entries, rootEntry{
				dirEntry: e,
				off:      rd.rootDirOffset() + int64(i),
			})
		}
	}
	return rd, nil
}

func (rd *Reader) rootDirOffset() int64 {
	return int64(rd.reservedSectors+rd.fatCopies*rd.sectorsPerFAT) * int64(rd.sectorSize)
}

func (rd *Reader) clusterOffset(cluster int) int64 {
	dataStart := rd.rootDirOffset() + int64(rd.rootEntries*dirEntrySize)
	return dataStart + int64(cluster-reservedClusters)*int64(rd.clusterSize())
}

func (rd *Reader) clusterSize() int {
	return rd.sectorSize * rd.sectorsPerCluster
}

// ClusterSize returns the allocation unit of the file system in bytes.
func (rd *Reader) ClusterSize() int { return rd.clusterSize() }

// Label returns the volume label from the root directory.
func (rd *Reader) Label() string { return rd.label }

func (rd *Reader) lookup(path string) (*rootEntry, error) {
	name := strings.TrimPrefix(path, "/")
	for i := range rd.entries {
		if strings.EqualFold(rd.entries[i].Name.String(), name) {
			return &rd.entries[i], nil
		}
	}
	return nil, fmt.Errorf("%q: %w", path, fs.ErrNotExist)
}

// Chain returns the clusters of the file at path, following the first
// FAT copy.
func (rd *Reader) Chain(path string) ([]int, error) {
	e, err := rd.lookup(path)
	if err != nil {
		return nil, err
	}
	return rd.chain(&e.dirEntry)
}

// EntryOffset returns the byte offset of the directory entry of the file
// at path within the image. A host changes the size of a file by writing
// the four bytes at EntryOffset+28.
func (rd *Reader) EntryOffset(path string) (int64, error) {
	e, err := rd.lookup(path)
	if err != nil {
		return 0, err
	}
	return e.off, nil
}

func (rd *Reader) chain(e *dirEntry) ([]int, error) {
	if e.FirstCluster == 0 {
		return nil, nil
	}
	fatOffset := int64(rd.reservedSectors * rd.sectorSize)
	maxLen := rd.sectorsPerFAT * rd.sectorSize / 2
	var (
		clusters []int
		entry    [2]byte
	)
	for c := int(e.FirstCluster); ; {
		if c < reservedClusters || c >= maxLen {
			return nil, fmt.Errorf("%s: invalid cluster %d in chain", e.Name, c)
		}
		clusters = append(clusters, c)
		if len(clusters) > maxLen {
			return nil, fmt.Errorf("%s: cluster chain loops", e.Name)
		}
		if _, err := rd.r.ReadAt(entry[:], fatOffset+int64(c)*2); err != nil {
			return nil, err
		}
		next := binary.LittleEndian.Uint16(entry[:])
		if next >= 0xFFF8 {
			return clusters, nil
		}
		c = int(next)
	}
}

// Extents returns the byte offset of the file at path within the image
// and its length. It fails for files which are not stored contiguously.
func (rd *Reader) Extents(path string) (offset int64, length int64, err error) {
	e, err := rd.lookup(path)
	if err != nil {
		return 0, 0, err
	}
	clusters, err := rd.chain(&e.dirEntry)
	if err != nil {
		return 0, 0, err
	}
	if len(clusters) == 0 {
		return 0, 0, nil
	}
	for i := 1; i < len(clusters); i++ {
		if clusters[i] != clusters[i-1]+1 {
			return 0, 0, fmt.Errorf("%q is fragmented", path)
		}
	}
	return rd.clusterOffset(clusters[0]), int64(e.Size), nil
}

// Open implements fs.FS for the root directory.
func (rd *Reader) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return &rootDir{rd: rd}, nil
	}
	e, err := rd.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	clusters, err := rd.chain(&e.dirEntry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	cr := &chainReader{rd: rd, clusters: clusters}
	return &file{
		info: fileInfo{e: e.dirEntry},
		r:    io.NewSectionReader(cr, 0, int64(e.Size)),
	}, nil
}

// chainReader reads the concatenated clusters of a chain.
type chainReader struct {
	rd       *Reader
	clusters []int
}

func (cr *chainReader) ReadAt(p []byte, off int64) (int, error) {
	cs := int64(cr.rd.clusterSize())
	var n int
	for len(p) > 0 {
		idx := off / cs
		if idx >= int64(len(cr.clusters)) {
			return n, io.EOF
		}
		within := off % cs
		chunk := p
		if rest := cs - within; int64(len(chunk)) > rest {
			chunk = chunk[:rest]
		}
		got, err := cr.rd.r.ReadAt(chunk, cr.rd.clusterOffset(cr.clusters[idx])+within)
		n += got
		if err != nil {
			return n, err
		}
		p = p[got:]
		off += int64(got)
	}
	return n, nil
}

type fileInfo struct {
	e dirEntry
}

func (fi fileInfo) Name() string { return fi.e.Name.String() }
func (fi fileInfo) Size() int64  { return int64(fi.e.Size) }
func (fi fileInfo) Mode() fs.FileMode {
	if fi.e.Attr&AttrReadOnly != 0 {
		return 0444
	}
	return 0644
}
func (fi fileInfo) ModTime() time.Time { return unmarshalTimeDate(fi.e.WriteTime, fi.e.WriteDate) }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() interface{}   { return fi.e.Attr }

// Type and Info make fileInfo an fs.DirEntry, too.
func (fi fileInfo) Type() fs.FileMode          { return 0 }
func (fi fileInfo) Info() (fs.FileInfo, error) { return fi, nil }

type file struct {
	info fileInfo
	r    *io.SectionReader
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *file) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *file) Close() error               { return nil }

type rootInfo struct{}

func (rootInfo) Name() string       { return "." }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() fs.FileMode  { return fs.ModeDir | 0555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() interface{}   { return nil }

type rootDir struct {
	rd  *Reader
	pos int
}

func (d *rootDir) Stat() (fs.FileInfo, error) { return rootInfo{}, nil }
func (d *rootDir) Close() error               { return nil }

func (d *rootDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: ".", Err: fs.ErrInvalid}
}

func (d *rootDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.rd.entries[d.pos:]
	if n > 0 && len(rest) == 0 {
		return nil, io.EOF
	}
	if n > 0 && n < len(rest) {
		rest = rest[:n]
	}
	d.pos += len(rest)
	result := make([]fs.DirEntry, len(rest))
	for i, e := range rest {
		result[i] = fileInfo{e: e.dirEntry}
	}
	return result, nil
}
