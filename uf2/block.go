// Package uf2 encodes and decodes the USB Flashing Format, in which a
// firmware image is split into 512 byte blocks that each carry 256 bytes
// of payload and their target address. Because every block is
// self-describing, a bootloader can flash the blocks of a UF2 file in
// whatever order the host happens to write them.
package uf2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	magicStart0 = 0x0A324655 // "UF2\n"
	magicStart1 = 0x9E5D5157
	magicEnd    = 0x0AB16F30

	// BlockSize is the size of an encoded block, matching the sector size
	// of the volume the file is copied to.
	BlockSize = 512

	// PayloadSize is the number of flash bytes carried per block.
	PayloadSize = 256

	dataSize = 476
)

// Block flags.
const (
	FlagNotMainFlash         = 0x00000001
	FlagFileContainer        = 0x00001000
	FlagFamilyIDPresent      = 0x00002000
	FlagMD5ChecksumPresent   = 0x00004000
	FlagExtensionTagsPresent = 0x00008000
)

// Families maps chip family names to the IDs used in the Family field.
var Families = map[string]uint32{
	"rp2040":        0xe48bff56,
	"absolute":      0xe48bff57,
	"data":          0xe48bff58,
	"rp2350_arm_s":  0xe48bff59,
	"rp2350_riscv":  0xe48bff5a,
	"rp2350_arm_ns": 0xe48bff5b,
	"stm32f1":       0x5ee21072,
	"samd21":        0x68ed2b88,
	"nrf52840":      0xada52840,
}

// ErrBadMagic is returned by Decode for blocks which are not UF2 blocks.
var ErrBadMagic = errors.New("uf2: bad magic")

// Block is one decoded UF2 block.
type Block struct {
	Flags  uint32
	Addr   uint32 // target address of the payload in flash
	Len    uint32 // payload bytes used, usually PayloadSize
	Seq    uint32 // sequence number, starting at 0
	Total  uint32 // number of blocks in the file
	Family uint32 // chip family (FlagFamilyIDPresent) or file size
	Data   [dataSize]byte
}

// Payload returns the flash bytes of the block.
func (b *Block) Payload() []byte {
	return b.Data[:b.Len]
}

// wireBlock is the on-disk layout.
type wireBlock struct {
	Magic0 uint32
	Magic1 uint32
	Flags  uint32
	Addr   uint32
	Len    uint32
	Seq    uint32
	Total  uint32
	Family uint32
	Data   [dataSize]byte
	Magic2 uint32
}

// Encode appends the 512 byte encoding of b to dst.
func (b *Block) Encode(dst []byte) []byte {
	w := wireBlock{
		Magic0: magicStart0,
		Magic1: magicStart1,
		Flags:  b.Flags,
		Addr:   b.Addr,
		Len:    b.Len,
		Seq:    b.Seq,
		Total:  b.Total,
		Family: b.Family,
		Data:   b.Data,
		Magic2: magicEnd,
	}
	buf := bytes.NewBuffer(dst)
	// bytes.Buffer writes never fail
	binary.Write(buf, binary.LittleEndian, &w)
	return buf.Bytes()
}

// Decode parses the 512 byte block in src.
func Decode(src []byte) (Block, error) {
	if len(src) < BlockSize {
		return Block{}, fmt.Errorf("uf2: short block of %d bytes", len(src))
	}
	var w wireBlock
	if err := binary.Read(bytes.NewReader(src[:BlockSize]), binary.LittleEndian, &w); err != nil {
		return Block{}, err
	}
	if w.Magic0 != magicStart0 || w.Magic1 != magicStart1 || w.Magic2 != magicEnd {
		return Block{}, ErrBadMagic
	}
	if w.Len > dataSize {
		return Block{}, fmt.Errorf("uf2: block %d: payload length %d exceeds %d", w.Seq, w.Len, dataSize)
	}
	return Block{
		Flags:  w.Flags,
		Addr:   w.Addr,
		Len:    w.Len,
		Seq:    w.Seq,
		Total:  w.Total,
		Family: w.Family,
		Data:   w.Data,
	}, nil
}

// BlocksFor returns the number of blocks needed for size bytes of flash.
func BlocksFor(size int64) int64 {
	return (size + PayloadSize - 1) / PayloadSize
}
