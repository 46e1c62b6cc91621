package fat

import (
	"encoding/binary"
	"io"
)

// synthesize renders block lba into dst, which is exactly one block
// long. lba must be in range.
func (d *Device) synthesize(lba uint32, dst []byte) {
	clear(dst)
	reg, idx := d.geom.classify(lba)
	switch reg {
	case regionBoot:
		if idx == 0 {
			copy(dst, d.boot)
		}
	case regionFAT:
		d.fatSector(idx, dst)
	case regionRootDir:
		d.rootDirSector(idx, dst)
	case regionData:
		d.dataSector(idx, dst)
	}
}

func (d *Device) fatSector(idx uint32, dst []byte) {
	perSector := len(dst) / 2
	first := int(idx) * perSector
	if first >= d.files.nextFree {
		return // only free clusters
	}
	for i := 0; i < perSector; i++ {
		var v uint16
		switch cluster := first + i; cluster {
		case 0:
			v = uint16(0xFF)<<8 | uint16(d.geom.Media) // media descriptor
		case 1:
			v = clean // file system state
		default:
			v = d.files.fatEntry(cluster)
		}
		binary.LittleEndian.PutUint16(dst[2*i:], v)
	}
}

func (d *Device) rootDirSector(idx uint32, dst []byte) {
	perSector := len(dst) / dirEntrySize
	for i := 0; i < perSector; i++ {
		slot := int(idx)*perSector + i
		b := dst[i*dirEntrySize : (i+1)*dirEntrySize]
		switch {
		case slot == 0:
			label := dirEntry{
				Name: shortName(d.label),
				Attr: AttrVolumeLabel | AttrArchive,
			}
			label.put(b)
		case slot-1 < len(d.files.files):
			e := d.dirEntry(&d.files.files[slot-1])
			e.put(b)
		default:
			return // remaining slots stay zero: end of directory
		}
	}
}

func (d *Device) dirEntry(vf *virtualFile) dirEntry {
	return dirEntry{
		Name:         vf.short,
		Attr:         vf.Attr,
		CreateTime:   vf.wtime,
		CreateDate:   vf.wdate,
		AccessDate:   vf.wdate,
		WriteTime:    vf.wtime,
		WriteDate:    vf.wdate,
		FirstCluster: uint16(vf.firstCluster),
		Size:         uint32(d.currentSize(vf)),
	}
}

// currentSize is the size announced in the directory. For the write sink
// it follows the data received, once there is any, or the size the host
// wrote if the data covers it.
func (d *Device) currentSize(vf *virtualFile) int64 {
	if vf.Content.kind != sinkContent || d.state.HighWater == 0 {
		return vf.Size
	}
	if d.covers(d.announced) {
		return d.announced
	}
	return d.state.HighWater
}

func (d *Device) dataSector(idx uint32, dst []byte) {
	spc := d.geom.SectorsPerCluster
	cluster := int(idx)/spc + reservedClusters
	vf, off, ok := d.files.locate(cluster, d.geom.ClusterSize())
	if !ok {
		return
	}
	off += int64(int(idx)%spc) * int64(d.geom.BlockSize)
	d.readContent(vf, off, dst)
}

// readContent fills dst with the file content at off. Bytes beyond the
// end of the file or the content stay zero.
func (d *Device) readContent(vf *virtualFile, off int64, dst []byte) {
	if off >= vf.Size {
		return
	}
	n := int64(len(dst))
	if rest := vf.Size - off; rest < n {
		n = rest
	}
	c := &vf.Content
	switch c.kind {
	case staticContent:
		if off < int64(len(c.data)) {
			copy(dst[:n], c.data[off:])
		}
	case generatedContent, sinkContent:
		if c.gen == nil {
			return
		}
		got, err := c.gen.ReadAt(dst[:n], off)
		if got < 0 {
			got = 0
		}
		if int64(got) < n {
			clear(dst[got:n])
			if c.kind == generatedContent {
				if err == nil || err == io.EOF {
					d.log.Printf("%s: content underrun at offset %d: got %d of %d bytes", vf.Name, off, got, n)
				} else {
					d.log.Printf("%s: content underrun at offset %d: %v", vf.Name, off, err)
				}
			}
		}
	}
}
