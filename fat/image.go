package fat

import (
	"fmt"
	"io"
	"sync"
)

// Image presents a Device as a byte-addressed disk image, e.g. for
// parsing it with a file system reader or for dumping it to a file.
type Image struct {
	dev *Device

	mu   sync.Mutex
	last Event
}

// NewImage returns an Image backed by d.
func NewImage(d *Device) *Image {
	return &Image{dev: d}
}

// Size returns the size of the image in bytes.
func (im *Image) Size() int64 {
	blocks, bs := im.dev.Capacity()
	return int64(blocks) * int64(bs)
}

// ReadAt implements io.ReaderAt.
func (im *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := im.Size()
	if off >= size {
		return 0, io.EOF
	}
	var err error
	if rest := size - off; int64(len(p)) > rest {
		p = p[:rest]
		err = io.EOF
	}
	bs := int64(im.dev.geom.BlockSize)
	first := off / bs
	last := (off + int64(len(p)) + bs - 1) / bs
	buf := make([]byte, (last-first)*bs)
	if rerr := im.dev.ReadBlocks(buf, uint32(first)); rerr != nil {
		return 0, rerr
	}
	n := copy(p, buf[off-first*bs:])
	return n, err
}

// WriteAt implements io.WriterAt. Writes which do not cover whole blocks
// are completed with the synthesized content of the blocks they touch.
// The events of all blocks are merged into the most significant one,
// which is available from LastEvent.
func (im *Image) WriteAt(p []byte, off int64) (int, error) {
	ev, err := im.writeAt(p, off)
	if err != nil {
		return 0, err
	}
	im.mu.Lock()
	im.last = ev
	im.mu.Unlock()
	return len(p), nil
}

func (im *Image) writeAt(p []byte, off int64) (Event, error) {
	if off < 0 {
		return Event{}, fmt.Errorf("negative offset %d", off)
	}
	if len(p) == 0 {
		return Event{Kind: EventIgnored}, nil
	}
	bs := int64(im.dev.geom.BlockSize)
	first := off / bs
	last := (off + int64(len(p)) + bs - 1) / bs
	if off%bs == 0 && int64(len(p))%bs == 0 {
		return im.dev.WriteBlocks(p, uint32(first))
	}
	buf := make([]byte, (last-first)*bs)
	if err := im.dev.ReadBlocks(buf, uint32(first)); err != nil {
		return Event{}, err
	}
	copy(buf[off-first*bs:], p)
	return im.dev.WriteBlocks(buf, uint32(first))
}

// LastEvent returns the event of the most recent WriteAt call.
func (im *Image) LastEvent() Event {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.last
}

// WriteTo writes the entire synthesized image to w, one cluster at a
// time.
func (im *Image) WriteTo(w io.Writer) (int64, error) {
	blocks, bs := im.dev.Capacity()
	per := uint32(im.dev.geom.SectorsPerCluster)
	buf := make([]byte, int(per)*bs)
	var written int64
	for lba := uint32(0); lba < blocks; lba += per {
		chunk := buf
		if rest := blocks - lba; rest < per {
			chunk = buf[:int(rest)*bs]
		}
		if err := im.dev.ReadBlocks(chunk, lba); err != nil {
			return written, err
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
