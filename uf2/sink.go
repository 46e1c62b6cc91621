package uf2

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// Stats counts what a Sink did with the blocks it received.
type Stats struct {
	Flashed int // blocks written to flash
	Skipped int // blocks for other memories or chip families
	Invalid int // blocks which did not decode or were out of range
}

// Sink decodes UF2 blocks written into it and programs their payload
// into flash. It implements fat.WriteSink and fat.Completer: an upload
// is complete once every block of the file arrived.
type Sink struct {
	flash  io.WriterAt
	base   uint32
	size   int64
	family uint32
	log    *log.Logger

	mu    sync.Mutex
	total uint32
	seen  []bool
	count uint32
	stats Stats
}

// NewSink returns a Sink programming addresses [base, base+size) into
// flash at offset 0. Blocks carrying a family ID other than family are
// skipped, unless family is 0. logger may be nil.
func NewSink(flash io.WriterAt, base uint32, size int64, family uint32, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Sink{
		flash:  flash,
		base:   base,
		size:   size,
		family: family,
		log:    logger,
	}
}

// WriteAt decodes the whole blocks contained in p. off is the offset
// within the UF2 file, which does not matter: blocks carry their address.
func (s *Sink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for i := 0; i+BlockSize <= len(p); i += BlockSize {
		if err := s.writeBlock(p[i : i+BlockSize]); err != nil {
			errs = append(errs, err)
		}
	}
	if rest := len(p) % BlockSize; rest > 0 {
		s.stats.Invalid++
		s.log.Printf("uf2: ignoring %d trailing bytes at file offset %d", rest, off+int64(len(p)-rest))
	}
	return len(p), errors.Join(errs...)
}

func (s *Sink) writeBlock(raw []byte) error {
	b, err := Decode(raw)
	if err != nil {
		s.stats.Invalid++
		if errors.Is(err, ErrBadMagic) {
			return nil // e.g. metadata some hosts write into new files
		}
		return err
	}
	if b.Total == 0 || b.Seq >= b.Total {
		s.stats.Invalid++
		return fmt.Errorf("uf2: block %d of %d", b.Seq, b.Total)
	}
	if b.Total != s.total {
		// A different file: start over.
		s.total = b.Total
		s.seen = make([]bool, b.Total)
		s.count = 0
	}
	if !s.seen[b.Seq] {
		s.seen[b.Seq] = true
		s.count++
	}

	if b.Flags&FlagNotMainFlash != 0 {
		s.stats.Skipped++
		return nil
	}
	if b.Flags&FlagFamilyIDPresent != 0 && s.family != 0 && b.Family != s.family {
		s.stats.Skipped++
		return nil
	}
	start := int64(b.Addr) - int64(s.base)
	if start < 0 || start+int64(b.Len) > s.size {
		s.stats.Invalid++
		return fmt.Errorf("uf2: block %d: address %#x outside of flash [%#x, %#x)", b.Seq, b.Addr, s.base, int64(s.base)+s.size)
	}
	if _, err := s.flash.WriteAt(b.Payload(), start); err != nil {
		return fmt.Errorf("uf2: flashing block %d at %#x: %v", b.Seq, b.Addr, err)
	}
	s.stats.Flashed++
	return nil
}

// Complete reports whether all blocks of the current file were received.
// It returns true only once per file and then starts over.
func (s *Sink) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 || s.count < s.total {
		return false
	}
	s.log.Printf("uf2: all %d blocks received (%d flashed, %d skipped, %d invalid)",
		s.total, s.stats.Flashed, s.stats.Skipped, s.stats.Invalid)
	s.reset()
	return true
}

// Progress returns the number of distinct blocks received and the
// number of blocks in the file, 0 before the first block.
func (s *Sink) Progress() (received, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count), int(s.total)
}

// Stats returns the block counters since the sink was created.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reset discards the progress of a partial upload.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Sink) reset() {
	s.total = 0
	s.seen = nil
	s.count = 0
}
