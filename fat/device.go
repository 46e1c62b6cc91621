package fat

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Config describes a virtual volume. Zero fields take the defaults
// documented on each field.
type Config struct {
	// Capacity is the requested size of the volume in bytes. Volumes
	// smaller than the smallest FAT16 volume are enlarged.
	Capacity int64

	// BlockSize defaults to DefaultBlockSize.
	BlockSize int

	// FATCopies is 1 or 2, defaulting to DefaultFATCopies.
	FATCopies int

	// RootEntries defaults to DefaultRootEntries.
	RootEntries int

	// OEMName defaults to "UF2 UF2".
	OEMName string

	// VolumeLabel defaults to "GHOSTFAT".
	VolumeLabel string

	// VolumeID defaults to 0x00420042.
	VolumeID uint32

	// ModTime is used for all directory entries which do not set their
	// own. Defaults to 1980-01-01, the FAT epoch.
	ModTime time.Time

	// Files are laid out in order, starting at cluster 2. At most one of
	// them may have Writable content.
	Files []File

	// AutoRearm accepts another upload right after a completed one.
	// Otherwise, writes to the sink are ignored after completion until
	// Rearm or Eject is called.
	AutoRearm bool

	// Log receives diagnostics. Defaults to discarding them.
	Log *log.Logger
}

// SinkState is the progress of an upload into the write sink.
type SinkState struct {
	// Received counts all bytes written into the sink, including
	// rewrites of the same offsets.
	Received int64

	// HighWater is the largest offset+length written so far.
	HighWater int64

	// Completed is set once the host finished the upload.
	Completed bool
}

// Device is a virtual FAT16 block device. All methods are safe for
// concurrent use, though a block transport will typically issue one
// command at a time.
type Device struct {
	geom      Geometry
	files     *table
	label     [11]byte
	boot      []byte
	autoRearm bool
	log       *log.Logger

	mu    sync.Mutex
	state SinkState
	// announced is the size the host last wrote into the directory
	// entry of the sink.
	announced int64
}

// New computes the geometry and file layout for cfg. Any error wraps
// ErrInvalidConfig.
func New(cfg Config) (*Device, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.FATCopies == 0 {
		cfg.FATCopies = DefaultFATCopies
	}
	if cfg.RootEntries == 0 {
		cfg.RootEntries = DefaultRootEntries
	}
	if cfg.OEMName == "" {
		cfg.OEMName = "UF2 UF2"
	}
	if cfg.VolumeLabel == "" {
		cfg.VolumeLabel = "GHOSTFAT"
	}
	if cfg.VolumeID == 0 {
		cfg.VolumeID = 0x00420042
	}
	if cfg.ModTime.IsZero() {
		cfg.ModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}
	if len(cfg.OEMName) > 8 {
		return nil, configErrorf("OEM name %q longer than 8 bytes", cfg.OEMName)
	}
	if len(cfg.VolumeLabel) > 11 {
		return nil, configErrorf("volume label %q longer than 11 bytes", cfg.VolumeLabel)
	}
	if err := validLabel(cfg.VolumeLabel); err != nil {
		return nil, configErrorf("%v", err)
	}
	if !representable(cfg.ModTime) {
		return nil, configErrorf("modification time %v not representable in FAT", cfg.ModTime)
	}

	g, err := NewGeometry(cfg.Capacity, cfg.BlockSize, cfg.FATCopies, cfg.RootEntries)
	if err != nil {
		return nil, err
	}
	files, err := newTable(&g, cfg.Files, cfg.ModTime.UTC())
	if err != nil {
		return nil, err
	}
	label := labelBytes(cfg.VolumeLabel)
	return &Device{
		geom:      g,
		files:     files,
		label:     label,
		boot:      bootSector(&g, cfg.OEMName, label, cfg.VolumeID),
		autoRearm: cfg.AutoRearm,
		log:       cfg.Log,
	}, nil
}

// Geometry returns the computed volume geometry.
func (d *Device) Geometry() Geometry { return d.geom }

// Capacity returns the number of blocks and the block size, as reported
// to the host in response to READ CAPACITY.
func (d *Device) Capacity() (blocks uint32, blockSize int) {
	return d.geom.TotalBlocks, d.geom.BlockSize
}

func (d *Device) checkRange(lba uint32, count int) error {
	if lba >= d.geom.TotalBlocks || uint64(lba)+uint64(count) > uint64(d.geom.TotalBlocks) {
		return outOfRange(lba, count, d.geom.TotalBlocks)
	}
	return nil
}

// ReadBlocks fills dst, whose length must be a multiple of the block
// size, with the blocks starting at lba.
func (d *Device) ReadBlocks(dst []byte, lba uint32) error {
	bs := d.geom.BlockSize
	if len(dst)%bs != 0 {
		return fmt.Errorf("read of %d bytes is not a multiple of the %d byte block size", len(dst), bs)
	}
	count := len(dst) / bs
	if err := d.checkRange(lba, count); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < count; i++ {
		d.synthesize(lba+uint32(i), dst[i*bs:(i+1)*bs])
	}
	return nil
}

// WriteBlocks interprets a host write of data starting at lba. Writes
// never fail for in-range addresses: housekeeping writes are dropped
// and a trailing partial block is treated as a shorter write.
//
// For writes spanning several blocks, the most significant event is
// returned.
func (d *Device) WriteBlocks(data []byte, lba uint32) (Event, error) {
	bs := d.geom.BlockSize
	count := (len(data) + bs - 1) / bs
	if err := d.checkRange(lba, count); err != nil {
		return Event{Kind: EventIgnored}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	result := Event{Kind: EventIgnored}
	for i := 0; i < count; i++ {
		end := (i + 1) * bs
		if end > len(data) {
			end = len(data)
		}
		result = result.merge(d.interpret(lba+uint32(i), data[i*bs:end]))
	}
	return result, nil
}

// State returns a snapshot of the upload progress.
func (d *Device) State() SinkState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Rearm resets the upload progress so that another upload can complete.
func (d *Device) Rearm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rearm()
	d.log.Printf("write sink rearmed")
}

// Eject resets all session state, as when the medium is removed.
func (d *Device) Eject() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rearm()
	d.log.Printf("medium ejected")
}

func (d *Device) rearm() {
	d.state = SinkState{}
	d.announced = 0
}
