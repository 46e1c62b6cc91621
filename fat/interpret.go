package fat

// EventKind classifies what a host write meant.
type EventKind uint8

const (
	// EventIgnored: housekeeping (boot sector, FAT) or a write without
	// effect on the virtual files.
	EventIgnored EventKind = iota

	// EventDirectoryUpdated: a root directory write changed the size or
	// presence of a known file.
	EventDirectoryUpdated

	// EventDataReceived: data landed in the clusters of the write sink.
	EventDataReceived

	// EventCompleted: the host finished uploading into the write sink.
	// Event.Size holds the number of bytes received.
	EventCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventIgnored:
		return "ignored"
	case EventDirectoryUpdated:
		return "directory-updated"
	case EventDataReceived:
		return "data-received"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Event describes the effect of a host write.
type Event struct {
	Kind EventKind

	// File is the name of the file concerned, if any.
	File string

	// Offset and Length describe the bytes accepted by the write sink
	// (EventDataReceived).
	Offset int64
	Length int

	// Size is the size the host wrote into the directory entry
	// (EventDirectoryUpdated), or the final upload size (EventCompleted).
	Size int64

	// Truncated is set when the host shrank the write sink, which
	// restarts the upload.
	Truncated bool

	// Deleted is set when the host removed the directory entry of a
	// file. The file stays on the virtual volume.
	Deleted bool
}

// merge combines the events of consecutive blocks of one write, keeping
// the more significant one.
func (e Event) merge(o Event) Event {
	if o.Kind > e.Kind {
		return o
	}
	if o.Kind == EventDataReceived && e.Kind == EventDataReceived && o.File == e.File {
		start, end := e.Offset, e.Offset+int64(e.Length)
		if o.Offset < start {
			start = o.Offset
		}
		if oend := o.Offset + int64(o.Length); oend > end {
			end = oend
		}
		e.Offset, e.Length = start, int(end-start)
	}
	return e
}

// interpret handles the write of a single block (or the trailing part of
// one). It must be called with d.mu held.
func (d *Device) interpret(lba uint32, b []byte) Event {
	reg, idx := d.geom.classify(lba)
	switch reg {
	case regionRootDir:
		return d.interpretDir(idx, b)
	case regionData:
		return d.interpretData(idx, b)
	default:
		// Hosts rewrite the boot sector and the FAT at will, e.g. to
		// set dirty bits or to allocate clusters. The synthesized
		// layout does not change.
		return Event{Kind: EventIgnored}
	}
}

func (d *Device) interpretDir(idx uint32, b []byte) Event {
	result := Event{Kind: EventIgnored}
	sink := d.files.sinkFile()
	for i := 0; i+dirEntrySize <= len(b); i += dirEntrySize {
		e := decodeDirEntry(b[i : i+dirEntrySize])
		if !e.isFile() {
			continue
		}
		vf, ok := d.files.lookup(e.Name)
		if !ok {
			continue // a file the host created; its data is discarded
		}
		size := int64(e.Size)
		if vf != sink {
			if size != vf.Size {
				result = result.merge(Event{Kind: EventDirectoryUpdated, File: vf.Name, Size: size})
			}
			continue
		}
		result = result.merge(d.sinkEntryWritten(vf, size))
	}

	// Entries are recognized by name, wherever the host puts them. A
	// file whose canonical slot was cleared and which is not present
	// elsewhere in this block was deleted.
	perSector := d.geom.BlockSize / dirEntrySize
	first := int(idx) * perSector
	for i := range d.files.files {
		vf := &d.files.files[i]
		pos := (vf.slot - first) * dirEntrySize
		if pos < 0 || pos+dirEntrySize > len(b) {
			continue
		}
		if c := b[pos]; c != 0 && c != deletedMarker {
			continue
		}
		if containsFile(b, vf.short) {
			continue
		}
		d.log.Printf("%s: deleted by host, keeping it", vf.Name)
		result = result.merge(Event{Kind: EventDirectoryUpdated, File: vf.Name, Deleted: true})
	}
	return result
}

func containsFile(b []byte, name shortName) bool {
	for i := 0; i+dirEntrySize <= len(b); i += dirEntrySize {
		e := decodeDirEntry(b[i : i+dirEntrySize])
		if e.isFile() && e.Name == name {
			return true
		}
	}
	return false
}

// sinkEntryWritten handles a directory entry of the write sink carrying
// size.
func (d *Device) sinkEntryWritten(vf *virtualFile, size int64) Event {
	if d.state.Completed {
		return Event{Kind: EventIgnored}
	}
	prev := d.announced
	d.announced = size
	switch {
	case d.uploadDone(size):
		return d.complete(vf, size)
	case size == 0 && d.state.HighWater > 0:
		// Hosts truncate before overwriting a file.
		d.log.Printf("%s: truncated, restarting upload", vf.Name)
		d.state.Received = 0
		d.state.HighWater = 0
		return Event{Kind: EventDirectoryUpdated, File: vf.Name, Truncated: true}
	case size == prev:
		return Event{Kind: EventIgnored}
	}
	return Event{Kind: EventDirectoryUpdated, File: vf.Name, Size: size}
}

// covers reports whether the data written so far ends in the last block
// of a file of size bytes. Hosts write whole blocks, so up to one block
// of padding follows the end of the file.
func (d *Device) covers(size int64) bool {
	hw := d.state.HighWater
	return size > 0 && hw >= size && hw-size < int64(d.geom.BlockSize)
}

// uploadDone reports whether the data received covers an upload of size
// bytes.
func (d *Device) uploadDone(size int64) bool {
	return d.covers(size) && d.state.Received >= size
}

func (d *Device) complete(vf *virtualFile, size int64) Event {
	d.state.Completed = true
	d.log.Printf("%s: upload complete, %d bytes received", vf.Name, size)
	if d.autoRearm {
		d.rearm()
	}
	return Event{Kind: EventCompleted, File: vf.Name, Size: size}
}

func (d *Device) interpretData(idx uint32, b []byte) Event {
	sink := d.files.sinkFile()
	if sink == nil || sink.clusters == 0 {
		return Event{Kind: EventIgnored}
	}
	spc := d.geom.SectorsPerCluster
	cluster := int(idx)/spc + reservedClusters
	if cluster < sink.firstCluster || cluster > sink.lastCluster() {
		// Other files are read-only and free clusters hold nothing, but
		// hosts write there anyway (e.g. metadata files). Drop it.
		return Event{Kind: EventIgnored}
	}
	if d.state.Completed {
		return Event{Kind: EventIgnored}
	}
	off := int64(cluster-sink.firstCluster)*int64(d.geom.ClusterSize()) +
		int64(int(idx)%spc)*int64(d.geom.BlockSize)
	if off >= sink.Size {
		return Event{Kind: EventIgnored} // slack space of the last cluster
	}
	n := int64(len(b))
	if rest := sink.Size - off; rest < n {
		n = rest
	}
	if _, err := sink.Content.sink.WriteAt(b[:n], off); err != nil {
		d.log.Printf("%s: writing %d bytes at offset %d: %v", sink.Name, n, off, err)
	}
	d.state.Received += n
	if end := off + n; end > d.state.HighWater {
		d.state.HighWater = end
	}
	if d.uploadDone(d.announced) {
		return d.complete(sink, d.announced)
	}
	if c, ok := sink.Content.sink.(Completer); ok && c.Complete() {
		return d.complete(sink, d.state.HighWater)
	}
	return Event{Kind: EventDataReceived, File: sink.Name, Offset: off, Length: int(n)}
}
