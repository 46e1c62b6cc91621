package fat

import (
	"io"
	"time"
)

// WriteSink receives the data the host writes into the clusters of the
// writable file. Offsets are relative to the start of the file.
type WriteSink interface {
	io.WriterAt
}

// Completer is implemented by sinks which can tell on their own that an
// upload is complete, e.g. because they count the blocks of a container
// format. Complete is called after every data write.
type Completer interface {
	Complete() bool
}

type contentKind uint8

const (
	staticContent contentKind = iota
	generatedContent
	sinkContent
)

// Content is where the bytes of a File come from. Use Bytes, String,
// Generate or Writable to create one.
type Content struct {
	kind contentKind
	data []byte
	gen  io.ReaderAt
	sink WriteSink
}

// Bytes returns static file content.
func Bytes(b []byte) Content { return Content{kind: staticContent, data: b} }

// String returns static file content.
func String(s string) Content { return Bytes([]byte(s)) }

// Generate returns content which is computed on read: r is asked for
// every block of the file the host reads. Short reads are zero-padded.
func Generate(r io.ReaderAt) Content { return Content{kind: generatedContent, gen: r} }

// Writable returns the content of the write sink. If s also implements
// io.ReaderAt, reads of the file are served from it, otherwise the file
// reads as zeros.
func Writable(s WriteSink) Content {
	c := Content{kind: sinkContent, sink: s}
	if r, ok := s.(io.ReaderAt); ok {
		c.gen = r
	}
	return c
}

// File describes one file in the root directory of the virtual volume.
type File struct {
	// Name in 8.3 format, e.g. INFO.TXT.
	Name string

	// Size in bytes. May be left zero for static content, in which case
	// the length of the content is used. For a write sink, Size is the
	// largest upload accepted.
	Size int64

	// Attr defaults to read-only for static and generated content and
	// to archive for the write sink.
	Attr Attr

	// ModTime is stored in the directory entry. Defaults to Config.ModTime.
	ModTime time.Time

	Content Content
}

// virtualFile is a File after validation, with its place in the cluster
// chain.
type virtualFile struct {
	File
	short        shortName
	firstCluster int // 0 for empty files
	clusters     int
	slot         int // root directory slot
	wdate, wtime uint16
}

func (f *virtualFile) lastCluster() int {
	return f.firstCluster + f.clusters - 1
}

// table is the ordered list of files on the volume. Files occupy
// contiguous cluster ranges in table order, starting at cluster 2.
type table struct {
	files []virtualFile
	sink  int // index into files, -1 without a write sink

	// nextFree is the first cluster not allocated to any file.
	nextFree int
}

func newTable(g *Geometry, files []File, modTime time.Time) (*table, error) {
	t := &table{
		files:    make([]virtualFile, 0, len(files)),
		sink:     -1,
		nextFree: reservedClusters,
	}
	// slot 0 holds the volume label
	if len(files) > g.RootEntries-1 {
		return nil, configErrorf("%d files do not fit into %d root directory entries", len(files), g.RootEntries-1)
	}
	seen := make(map[shortName]string)
	clusterSize := g.ClusterSize()
	for idx, f := range files {
		short, err := parseShortName(f.Name)
		if err != nil {
			return nil, configErrorf("%v", err)
		}
		if prev, ok := seen[short]; ok {
			return nil, configErrorf("file %q collides with %q", f.Name, prev)
		}
		seen[short] = f.Name

		switch f.Content.kind {
		case staticContent:
			if f.Size == 0 {
				f.Size = int64(len(f.Content.data))
			}
			if int64(len(f.Content.data)) > f.Size {
				return nil, configErrorf("file %q: %d bytes of content exceed size %d", f.Name, len(f.Content.data), f.Size)
			}
		case generatedContent:
			if f.Content.gen == nil {
				return nil, configErrorf("file %q: nil generator", f.Name)
			}
			if f.Size <= 0 {
				return nil, configErrorf("generated file %q needs a size", f.Name)
			}
		case sinkContent:
			if f.Content.sink == nil {
				return nil, configErrorf("file %q: nil write sink", f.Name)
			}
			if t.sink > -1 {
				return nil, configErrorf("file %q: %q already is the write sink", f.Name, t.files[t.sink].Name)
			}
			if f.Size <= 0 {
				return nil, configErrorf("write sink %q needs a maximum size", f.Name)
			}
			t.sink = idx
		}
		if f.Size < 0 || f.Size > 0xFFFFFFFF {
			return nil, configErrorf("file %q: size %d out of range", f.Name, f.Size)
		}
		if f.Attr == 0 {
			if f.Content.kind == sinkContent {
				f.Attr = AttrArchive
			} else {
				f.Attr = AttrReadOnly
			}
		}
		if f.ModTime.IsZero() {
			f.ModTime = modTime
		}
		if !representable(f.ModTime) {
			return nil, configErrorf("file %q: modification time %v not representable in FAT", f.Name, f.ModTime)
		}

		vf := virtualFile{
			File:     f,
			short:    short,
			clusters: fullClusters(f.Size, clusterSize),
			slot:     idx + 1,
			wdate:    fatDate(f.ModTime),
			wtime:    fatTime(f.ModTime),
		}
		if vf.clusters > 0 {
			vf.firstCluster = t.nextFree
			t.nextFree += vf.clusters
		}
		if t.nextFree-reservedClusters > g.Clusters {
			return nil, configErrorf("file %q does not fit: %d clusters needed, volume has %d", f.Name, t.nextFree-reservedClusters, g.Clusters)
		}
		t.files = append(t.files, vf)
	}
	return t, nil
}

// locate maps a cluster to the file it belongs to and the byte offset of
// the cluster within that file. ok is false for free clusters.
func (t *table) locate(cluster int, clusterSize int) (f *virtualFile, offset int64, ok bool) {
	if cluster < reservedClusters || cluster >= t.nextFree {
		return nil, 0, false
	}
	// Files are sorted by first cluster; the table is small.
	for i := range t.files {
		vf := &t.files[i]
		if vf.clusters == 0 || cluster > vf.lastCluster() {
			continue
		}
		return vf, int64(cluster-vf.firstCluster) * int64(clusterSize), true
	}
	return nil, 0, false
}

// fatEntry returns the FAT value of the given cluster (>= 2).
func (t *table) fatEntry(cluster int) uint16 {
	if cluster >= t.nextFree {
		return 0 // free
	}
	for i := range t.files {
		vf := &t.files[i]
		if vf.clusters == 0 || cluster > vf.lastCluster() {
			continue
		}
		if cluster == vf.lastCluster() {
			return endOfChain
		}
		return uint16(cluster + 1)
	}
	return 0
}

func (t *table) lookup(name shortName) (*virtualFile, bool) {
	for i := range t.files {
		if t.files[i].short == name {
			return &t.files[i], true
		}
	}
	return nil, false
}

func (t *table) sinkFile() *virtualFile {
	if t.sink < 0 {
		return nil
	}
	return &t.files[t.sink]
}
