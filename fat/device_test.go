package fat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// memSink is an in-memory write sink which can be read back.
type memSink struct {
	buf []byte
}

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	return copy(s.buf[off:], p), nil
}

func (s *memSink) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var infoTXT = strings.Repeat("ghostfat test volume\n", 3) + "0\n" // 65 bytes

const (
	// Layout of the test volume (64 KiB requested, 4152 blocks):
	// boot 0, FATs 1 and 17, root directory 33, data 65.
	testFATStart  = 1
	testFAT2Start = 17
	testRootDir   = 33
	testInfoBlock = 65 // cluster 2
	testDataBlock = 66 // clusters 3..18
	testDataSize  = 8192
)

func newTestDevice(t *testing.T, modify func(*Config)) (*Device, *memSink) {
	t.Helper()
	sink := &memSink{}
	cfg := Config{
		Capacity: 64 * 1024,
		Files: []File{
			{Name: "INFO.TXT", Content: String(infoTXT[:64])},
			{Name: "DATA.BIN", Size: testDataSize, Content: Writable(sink)},
		},
	}
	if modify != nil {
		modify(&cfg)
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d, sink
}

func readBlock(t *testing.T, d *Device, lba uint32) []byte {
	t.Helper()
	b := make([]byte, d.Geometry().BlockSize)
	if err := d.ReadBlocks(b, lba); err != nil {
		t.Fatal(err)
	}
	return b
}

func writeBlocks(t *testing.T, d *Device, data []byte, lba uint32) Event {
	t.Helper()
	ev, err := d.WriteBlocks(data, lba)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

// setEntrySize returns a copy of the root directory block with the size
// of the entry in slot replaced, like a host updating the file size.
func setEntrySize(block []byte, slot int, size uint32) []byte {
	b := append([]byte(nil), block...)
	binary.LittleEndian.PutUint32(b[slot*dirEntrySize+28:], size)
	return b
}

func TestBootSector(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	b := readBlock(t, d, 0)

	for _, tt := range []struct {
		name string
		off  int
		want []byte
	}{
		{"jump", 0, []byte{0xEB, 0x3C, 0x90}},
		{"oem", 3, []byte("UF2 UF2 ")},
		{"bytes per sector", 11, []byte{0x00, 0x02}},
		{"sectors per cluster", 13, []byte{1}},
		{"reserved sectors", 14, []byte{1, 0}},
		{"fat copies", 16, []byte{2}},
		{"root entries", 17, []byte{0x00, 0x02}},
		{"total sectors", 19, []byte{0x38, 0x10}}, // 4152
		{"media", 21, []byte{0xF8}},
		{"sectors per fat", 22, []byte{16, 0}},
		{"total sectors 32", 32, []byte{0, 0, 0, 0}},
		{"extended signature", 38, []byte{0x29}},
		{"serial", 39, []byte{0x42, 0x00, 0x42, 0x00}},
		{"label", 43, []byte("GHOSTFAT   ")},
		{"type", 54, []byte("FAT16   ")},
		{"signature", 510, []byte{0x55, 0xAA}},
	} {
		got := b[tt.off : tt.off+len(tt.want)]
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("boot sector %s: diff (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestFATChain(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	for _, lba := range []uint32{testFATStart, testFAT2Start} {
		b := readBlock(t, d, lba)
		got := make([]uint16, 20)
		for i := range got {
			got[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
		want := []uint16{
			0xFFF8, // media descriptor
			0xFFFF, // clean
			0xFFFF, // INFO.TXT, one cluster
			4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, // DATA.BIN
			0xFFFF,
			0, // free
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FAT at block %d: diff (-want +got):\n%s", lba, diff)
		}
		if rest := b[40:]; !bytes.Equal(rest, make([]byte, len(rest))) {
			t.Errorf("FAT at block %d: free clusters not zero", lba)
		}
	}
	// FAT blocks past the allocated clusters are entirely free.
	if b := readBlock(t, d, testFATStart+1); !bytes.Equal(b, make([]byte, len(b))) {
		t.Errorf("second FAT block not zero")
	}
}

func TestRootDirectory(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	b := readBlock(t, d, testRootDir)

	label := decodeDirEntry(b[0:32])
	if got, want := string(label.Name[:]), "GHOSTFAT   "; got != want {
		t.Errorf("label entry name = %q, want %q", got, want)
	}
	if got, want := label.Attr, Attr(0x28); got != want {
		t.Errorf("label entry attr = %#x, want %#x", got, want)
	}

	type entry struct {
		Name         string
		Attr         Attr
		FirstCluster uint16
		Size         uint32
	}
	var got []entry
	for i := 1; i < 4; i++ {
		e := decodeDirEntry(b[i*32 : (i+1)*32])
		got = append(got, entry{string(e.Name[:]), e.Attr, e.FirstCluster, e.Size})
	}
	want := []entry{
		{"INFO    TXT", AttrReadOnly, 2, 64},
		{"DATA    BIN", AttrArchive, 3, testDataSize},
		{"\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", 0, 0, 0}, // end of directory
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("root directory: diff (-want +got):\n%s", diff)
	}
}

func TestReadData(t *testing.T) {
	t.Parallel()

	d, sink := newTestDevice(t, nil)
	sink.buf = bytes.Repeat([]byte{0xAB}, testDataSize)

	b := readBlock(t, d, testInfoBlock)
	if diff := cmp.Diff(infoTXT[:64], string(b[:64])); diff != "" {
		t.Errorf("INFO.TXT: diff (-want +got):\n%s", diff)
	}
	if !bytes.Equal(b[64:], make([]byte, 512-64)) {
		t.Errorf("INFO.TXT: not zero-padded")
	}

	b = make([]byte, testDataSize)
	if err := d.ReadBlocks(b, testDataBlock); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, sink.buf) {
		t.Errorf("DATA.BIN: content not read from the sink")
	}

	// free cluster
	if b := readBlock(t, d, testDataBlock+16); !bytes.Equal(b, make([]byte, 512)) {
		t.Errorf("free cluster not zero")
	}
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	blocks, bs := d.Capacity()
	first := make([]byte, int(blocks)*bs)
	if err := d.ReadBlocks(first, 0); err != nil {
		t.Fatal(err)
	}
	second := make([]byte, len(first))
	if err := d.ReadBlocks(second, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("two reads of the image differ")
	}

	other, _ := newTestDevice(t, nil)
	third := make([]byte, len(first))
	if err := other.ReadBlocks(third, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, third) {
		t.Fatalf("images of two devices with the same configuration differ")
	}
}

func TestOutOfRange(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	blocks, bs := d.Capacity()
	if got, want := blocks, uint32(4152); got != want {
		t.Fatalf("Capacity() = %d blocks, want %d", got, want)
	}

	for _, tt := range []struct {
		lba   uint32
		count int
	}{
		{blocks, 1},
		{blocks - 1, 2},
		{0xFFFFFFFF, 1},
	} {
		err := d.ReadBlocks(make([]byte, tt.count*bs), tt.lba)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ReadBlocks(lba %d, %d blocks): got %v, want %v", tt.lba, tt.count, err, ErrOutOfRange)
		}
		_, err = d.WriteBlocks(make([]byte, tt.count*bs), tt.lba)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("WriteBlocks(lba %d, %d blocks): got %v, want %v", tt.lba, tt.count, err, ErrOutOfRange)
		}
	}

	if err := d.ReadBlocks(make([]byte, bs), blocks-1); err != nil {
		t.Errorf("reading the last block: %v", err)
	}
	if err := d.ReadBlocks(make([]byte, 100), 0); err == nil {
		t.Errorf("ReadBlocks with a partial block: got nil error")
	}
}

func TestUploadThenDirectory(t *testing.T) {
	t.Parallel()

	d, sink := newTestDevice(t, nil)
	payload := bytes.Repeat([]byte("0123456789abcdef"), testDataSize/16)

	ev := writeBlocks(t, d, payload, testDataBlock)
	if diff := cmp.Diff(Event{Kind: EventDataReceived, File: "DATA.BIN", Length: testDataSize}, ev); diff != "" {
		t.Fatalf("data write: diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(SinkState{Received: testDataSize, HighWater: testDataSize}, d.State()); diff != "" {
		t.Fatalf("state: diff (-want +got):\n%s", diff)
	}
	if !bytes.Equal(sink.buf, payload) {
		t.Fatalf("sink did not receive the payload")
	}

	dir := setEntrySize(readBlock(t, d, testRootDir), 2, testDataSize)
	ev = writeBlocks(t, d, dir, testRootDir)
	if diff := cmp.Diff(Event{Kind: EventCompleted, File: "DATA.BIN", Size: testDataSize}, ev); diff != "" {
		t.Fatalf("directory write: diff (-want +got):\n%s", diff)
	}

	// Hosts write the directory repeatedly; there is only one completion.
	for i := 0; i < 3; i++ {
		if ev := writeBlocks(t, d, dir, testRootDir); ev.Kind != EventIgnored {
			t.Fatalf("repeated directory write: got %v, want %v", ev.Kind, EventIgnored)
		}
	}
	if ev := writeBlocks(t, d, payload[:512], testDataBlock); ev.Kind != EventIgnored {
		t.Fatalf("data write after completion: got %v, want %v", ev.Kind, EventIgnored)
	}
	if !d.State().Completed {
		t.Fatalf("State().Completed = false after completion")
	}
}

func TestDirectoryThenUpload(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	const size = 5000
	payload := bytes.Repeat([]byte{0x42}, 10*512)

	dir := setEntrySize(readBlock(t, d, testRootDir), 2, size)
	ev := writeBlocks(t, d, dir, testRootDir)
	if diff := cmp.Diff(Event{Kind: EventDirectoryUpdated, File: "DATA.BIN", Size: size}, ev); diff != "" {
		t.Fatalf("directory write: diff (-want +got):\n%s", diff)
	}

	ev = writeBlocks(t, d, payload[:4096], testDataBlock)
	if got, want := ev.Kind, EventDataReceived; got != want {
		t.Fatalf("first data write: got %v, want %v", got, want)
	}
	// The last block is short: the host only has 904 more bytes.
	ev = writeBlocks(t, d, payload[4096:size], testDataBlock+8)
	if diff := cmp.Diff(Event{Kind: EventCompleted, File: "DATA.BIN", Size: size}, ev); diff != "" {
		t.Fatalf("last data write: diff (-want +got):\n%s", diff)
	}

	// The directory entry now reports the uploaded size.
	e := decodeDirEntry(readBlock(t, d, testRootDir)[2*32:])
	if got, want := e.Size, uint32(size); got != want {
		t.Errorf("DATA.BIN size after upload = %d, want %d", got, want)
	}
}

func TestBlockPaddedUpload(t *testing.T) {
	t.Parallel()

	d, sink := newTestDevice(t, nil)
	const size = 5000
	// Hosts write whole blocks: the last one is padded.
	writeBlocks(t, d, bytes.Repeat([]byte{0x42}, 10*512), testDataBlock)
	dir := setEntrySize(readBlock(t, d, testRootDir), 2, size)
	ev := writeBlocks(t, d, dir, testRootDir)
	if diff := cmp.Diff(Event{Kind: EventCompleted, File: "DATA.BIN", Size: size}, ev); diff != "" {
		t.Fatalf("directory write: diff (-want +got):\n%s", diff)
	}
	if got, want := len(sink.buf), 10*512; got != want {
		t.Errorf("sink holds %d bytes, want %d", got, want)
	}
	e := decodeDirEntry(readBlock(t, d, testRootDir)[2*32:])
	if got, want := e.Size, uint32(size); got != want {
		t.Errorf("DATA.BIN size after upload = %d, want %d", got, want)
	}

	// More than a block of padding is not the end of the file.
	d, _ = newTestDevice(t, nil)
	writeBlocks(t, d, make([]byte, 12*512), testDataBlock)
	if ev := writeBlocks(t, d, dir, testRootDir); ev.Kind != EventDirectoryUpdated {
		t.Fatalf("directory write: got %v, want %v", ev.Kind, EventDirectoryUpdated)
	}
}

func TestTruncation(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	root := readBlock(t, d, testRootDir)

	writeBlocks(t, d, make([]byte, 4096), testDataBlock)
	ev := writeBlocks(t, d, setEntrySize(root, 2, 0), testRootDir)
	if diff := cmp.Diff(Event{Kind: EventDirectoryUpdated, File: "DATA.BIN", Truncated: true}, ev); diff != "" {
		t.Fatalf("truncating write: diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(SinkState{}, d.State()); diff != "" {
		t.Fatalf("state after truncation: diff (-want +got):\n%s", diff)
	}

	// A fresh upload completes.
	writeBlocks(t, d, make([]byte, 1024), testDataBlock)
	ev = writeBlocks(t, d, setEntrySize(root, 2, 1024), testRootDir)
	if got, want := ev.Kind, EventCompleted; got != want {
		t.Fatalf("after re-upload: got %v, want %v", got, want)
	}
}

func TestPartialSizeDoesNotComplete(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	writeBlocks(t, d, make([]byte, 2048), testDataBlock)
	ev := writeBlocks(t, d, setEntrySize(readBlock(t, d, testRootDir), 2, 4096), testRootDir)
	if got, want := ev.Kind, EventDirectoryUpdated; got != want {
		t.Fatalf("directory write announcing more data: got %v, want %v", got, want)
	}
	if d.State().Completed {
		t.Fatalf("completed with half of the data")
	}
}

func TestOtherWrites(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	junk := bytes.Repeat([]byte{0xFF}, 512)
	for _, tt := range []struct {
		name string
		lba  uint32
	}{
		{"boot sector", 0},
		{"fat", testFATStart},
		{"second fat", testFAT2Start + 3},
		{"read-only file", testInfoBlock},
		{"free cluster", testDataBlock + 100},
		{"empty directory block", testRootDir + 5},
	} {
		ev := writeBlocks(t, d, junk, tt.lba)
		if got, want := ev.Kind, EventIgnored; got != want {
			t.Errorf("%s write: got %v, want %v", tt.name, got, want)
		}
	}
	if diff := cmp.Diff(SinkState{}, d.State()); diff != "" {
		t.Errorf("state: diff (-want +got):\n%s", diff)
	}
	// Reads are unaffected.
	if got := readBlock(t, d, 0); got[0] != 0xEB || got[510] != 0x55 {
		t.Errorf("boot sector changed after a write")
	}
	if got := readBlock(t, d, testInfoBlock); string(got[:64]) != infoTXT[:64] {
		t.Errorf("INFO.TXT changed after a write")
	}
}

func TestDirectoryChanges(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, nil)
	root := readBlock(t, d, testRootDir)

	t.Run("read-only size change", func(t *testing.T) {
		ev := writeBlocks(t, d, setEntrySize(root, 1, 100), testRootDir)
		if diff := cmp.Diff(Event{Kind: EventDirectoryUpdated, File: "INFO.TXT", Size: 100}, ev); diff != "" {
			t.Fatalf("diff (-want +got):\n%s", diff)
		}
	})

	t.Run("delete", func(t *testing.T) {
		b := append([]byte(nil), root...)
		b[2*32] = deletedMarker
		ev := writeBlocks(t, d, b, testRootDir)
		if diff := cmp.Diff(Event{Kind: EventDirectoryUpdated, File: "DATA.BIN", Deleted: true}, ev); diff != "" {
			t.Fatalf("diff (-want +got):\n%s", diff)
		}
		// The file stays on the volume.
		if e := decodeDirEntry(readBlock(t, d, testRootDir)[2*32:]); !e.isFile() {
			t.Fatalf("DATA.BIN gone from the synthesized directory")
		}
	})

	t.Run("moved", func(t *testing.T) {
		// The host rewrote the directory, putting DATA.BIN into slot 5.
		b := append([]byte(nil), root...)
		copy(b[5*32:6*32], b[2*32:3*32])
		b[2*32] = deletedMarker
		ev := writeBlocks(t, d, b, testRootDir)
		if got, want := ev.Kind, EventIgnored; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("unknown file", func(t *testing.T) {
		b := append([]byte(nil), root...)
		e := dirEntry{Name: shortName(labelBytes("NEWFILE TXT")), Attr: AttrArchive, Size: 10}
		e.put(b[3*32:])
		ev := writeBlocks(t, d, b, testRootDir)
		if got, want := ev.Kind, EventIgnored; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestRearm(t *testing.T) {
	t.Parallel()

	upload := func(t *testing.T, d *Device) Event {
		writeBlocks(t, d, make([]byte, 1024), testDataBlock)
		return writeBlocks(t, d, setEntrySize(readBlock(t, d, testRootDir), 2, 1024), testRootDir)
	}

	t.Run("manual", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDevice(t, nil)
		if got, want := upload(t, d).Kind, EventCompleted; got != want {
			t.Fatalf("first upload: got %v, want %v", got, want)
		}
		if got, want := upload(t, d).Kind, EventIgnored; got != want {
			t.Fatalf("upload before rearm: got %v, want %v", got, want)
		}
		d.Rearm()
		if diff := cmp.Diff(SinkState{}, d.State()); diff != "" {
			t.Fatalf("state after Rearm: diff (-want +got):\n%s", diff)
		}
		if got, want := upload(t, d).Kind, EventCompleted; got != want {
			t.Fatalf("upload after rearm: got %v, want %v", got, want)
		}
	})

	t.Run("eject", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDevice(t, nil)
		upload(t, d)
		d.Eject()
		if got, want := upload(t, d).Kind, EventCompleted; got != want {
			t.Fatalf("upload after eject: got %v, want %v", got, want)
		}
	})

	t.Run("auto", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDevice(t, func(cfg *Config) { cfg.AutoRearm = true })
		for i := 0; i < 2; i++ {
			if got, want := upload(t, d).Kind, EventCompleted; got != want {
				t.Fatalf("upload %d: got %v, want %v", i, got, want)
			}
		}
	})
}

func TestSinkClipping(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	d, err := New(Config{
		Capacity: 64 * 1024,
		Files: []File{
			{Name: "NEW.BIN", Size: 1000, Content: Writable(sink)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// NEW.BIN occupies clusters 2 and 3, data starts at block 65.
	ev := writeBlocks(t, d, bytes.Repeat([]byte{1}, 1024), 65)
	if diff := cmp.Diff(Event{Kind: EventDataReceived, File: "NEW.BIN", Length: 1000}, ev); diff != "" {
		t.Fatalf("diff (-want +got):\n%s", diff)
	}
	if got, want := len(sink.buf), 1000; got != want {
		t.Fatalf("sink holds %d bytes, want %d", got, want)
	}
}

type countingSink struct {
	memSink
	blocks int
}

func (s *countingSink) WriteAt(p []byte, off int64) (int, error) {
	s.blocks++
	return s.memSink.WriteAt(p, off)
}

func (s *countingSink) Complete() bool { return s.blocks == 3 }

func TestCompleter(t *testing.T) {
	t.Parallel()

	sink := &countingSink{}
	d, _ := newTestDevice(t, func(cfg *Config) {
		cfg.Files[1].Content = Writable(sink)
	})
	for i := uint32(0); i < 2; i++ {
		if ev := writeBlocks(t, d, make([]byte, 512), testDataBlock+i); ev.Kind != EventDataReceived {
			t.Fatalf("block %d: got %v, want %v", i, ev.Kind, EventDataReceived)
		}
	}
	ev := writeBlocks(t, d, make([]byte, 512), testDataBlock+2)
	if diff := cmp.Diff(Event{Kind: EventCompleted, File: "DATA.BIN", Size: 3 * 512}, ev); diff != "" {
		t.Fatalf("diff (-want +got):\n%s", diff)
	}
}

type shortReader struct{}

func (shortReader) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, "short")
	return n, io.EOF
}

func TestGeneratedUnderrun(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	d, err := New(Config{
		Capacity: 64 * 1024,
		Log:      log.New(&logs, "", 0),
		Files: []File{
			{Name: "GEN.TXT", Size: 100, Content: Generate(shortReader{})},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := readBlock(t, d, 65)
	want := append([]byte("short"), make([]byte, 512-5)...)
	if diff := cmp.Diff(want, b); diff != "" {
		t.Fatalf("diff (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "GEN.TXT: content underrun") {
		t.Errorf("underrun not logged, log: %q", logs.String())
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	for _, tt := range []struct {
		name string
		cfg  Config
	}{
		{
			name: "two sinks",
			cfg: Config{Files: []File{
				{Name: "A.BIN", Size: 10, Content: Writable(sink)},
				{Name: "B.BIN", Size: 10, Content: Writable(sink)},
			}},
		},
		{
			name: "collision",
			cfg: Config{Files: []File{
				{Name: "INFO.TXT", Content: String("a")},
				{Name: "info.txt", Content: String("b")},
			}},
		},
		{
			name: "invalid name",
			cfg:  Config{Files: []File{{Name: "TOOLONGNAME.TXT", Content: String("a")}}},
		},
		{
			name: "sink without size",
			cfg:  Config{Files: []File{{Name: "A.BIN", Content: Writable(sink)}}},
		},
		{
			name: "content exceeds size",
			cfg:  Config{Files: []File{{Name: "A.TXT", Size: 1, Content: String("ab")}}},
		},
		{
			name: "does not fit",
			cfg: Config{
				Capacity: 64 * 1024,
				Files:    []File{{Name: "A.BIN", Size: 4 << 20, Content: Generate(shortReader{})}},
			},
		},
		{
			name: "too many files",
			cfg: Config{
				RootEntries: 16,
				Files: func() []File {
					var files []File
					for i := 0; i < 16; i++ {
						files = append(files, File{Name: string(rune('A'+i)) + ".TXT", Content: String("x")})
					}
					return files
				}(),
			},
		},
		{
			name: "oem",
			cfg:  Config{OEMName: "NINE CHAR"},
		},
		{
			name: "label",
			cfg:  Config{VolumeLabel: "TWELVE CHARS"},
		},
		{
			name: "label character",
			cfg:  Config{VolumeLabel: "BLUE:PILL"},
		},
		{
			name: "generated without size",
			cfg:  Config{Files: []File{{Name: "G.TXT", Content: Generate(strings.NewReader("hello generated"))}}},
		},
		{
			name: "file time before 1980",
			cfg: Config{Files: []File{{
				Name:    "A.TXT",
				Content: String("x"),
				ModTime: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			}}},
		},
		{
			name: "file time after 2107",
			cfg: Config{Files: []File{{
				Name:    "A.TXT",
				Content: String("x"),
				ModTime: time.Date(2108, 1, 1, 0, 0, 0, 0, time.UTC),
			}}},
		},
		{
			name: "block size",
			cfg:  Config{BlockSize: 520},
		},
	} {
		tt := tt // copy
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.cfg.Capacity == 0 {
				tt.cfg.Capacity = 1 << 20
			}
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("New: got error %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestEmptyFile(t *testing.T) {
	t.Parallel()

	d, err := New(Config{
		Capacity: 64 * 1024,
		Files: []File{
			{Name: "EMPTY.TXT", Content: String("")},
			{Name: "NEXT.TXT", Content: String("next")},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := readBlock(t, d, testRootDir)
	empty := decodeDirEntry(b[32:])
	next := decodeDirEntry(b[64:])
	if got, want := empty.FirstCluster, uint16(0); got != want {
		t.Errorf("EMPTY.TXT first cluster = %d, want %d", got, want)
	}
	if got, want := next.FirstCluster, uint16(2); got != want {
		t.Errorf("NEXT.TXT first cluster = %d, want %d", got, want)
	}
}
