package uf2

import (
	"fmt"
	"io"
)

// Reader renders a flash image as a UF2 file on demand, e.g. to offer
// the current firmware as CURRENT.UF2.
type Reader struct {
	flash  io.ReaderAt
	size   int64
	base   uint32
	family uint32
	blocks int64
}

// NewReader returns a Reader rendering size bytes of flash, read from
// flash at offset 0, as blocks addressed from base. A non-zero family is
// stored in every block.
func NewReader(flash io.ReaderAt, size int64, base, family uint32) *Reader {
	return &Reader{
		flash:  flash,
		size:   size,
		base:   base,
		family: family,
		blocks: BlocksFor(size),
	}
}

// Size returns the size of the rendered UF2 file.
func (r *Reader) Size() int64 {
	return r.blocks * BlockSize
}

func (r *Reader) block(seq int64) ([]byte, error) {
	b := Block{
		Addr:  r.base + uint32(seq*PayloadSize),
		Len:   PayloadSize,
		Seq:   uint32(seq),
		Total: uint32(r.blocks),
	}
	if r.family != 0 {
		b.Flags |= FlagFamilyIDPresent
		b.Family = r.family
	}
	off := seq * PayloadSize
	n := int64(PayloadSize)
	if rest := r.size - off; rest < n {
		n = rest
	}
	got, err := r.flash.ReadAt(b.Data[:n], off)
	if int64(got) < n && err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading flash at %#x: %v", b.Addr, err)
	}
	return b.Encode(make([]byte, 0, BlockSize)), nil
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	var n int
	for len(p) > 0 {
		seq := off / BlockSize
		if seq >= r.blocks {
			return n, io.EOF
		}
		b, err := r.block(seq)
		if err != nil {
			return n, err
		}
		m := copy(p, b[off%BlockSize:])
		n += m
		p = p[m:]
		off += int64(m)
	}
	return n, nil
}
