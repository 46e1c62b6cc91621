package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"sort"

	"github.com/gokrazy/ghostfat/deviceconfig"
	"github.com/gokrazy/ghostfat/fat"
	"github.com/gokrazy/ghostfat/httpclient"
	"github.com/gokrazy/ghostfat/humanize"
	"github.com/gokrazy/ghostfat/progress"
	"github.com/gokrazy/ghostfat/updater"
	"github.com/gokrazy/ghostfat/volumeflag"
	"github.com/spf13/afero"
)

// session is an attached virtual volume, driven like a host would drive
// a USB mass storage device.
type session struct {
	cfg deviceconfig.DeviceConfig
	vol *deviceconfig.Volume
	dev *fat.Device
	img *fat.Image
	out io.Writer

	// target receives completed uploads, if configured.
	target *updater.Target
}

// openSession attaches the volume selected by the volume flags.
func openSession(ctx context.Context, fsys afero.Fs, out io.Writer) (*session, error) {
	cfg, base, err := volumeflag.DeviceConfig(fsys)
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg, base, out)
	if err != nil {
		return nil, err
	}
	if u := volumeflag.UpdateURL(fsys); u != "" {
		client, baseURL, err := httpclient.ForUpdateURL(fsys, volumeflag.DeviceDir(), u, volumeflag.TLSInsecure())
		if err != nil {
			s.Close()
			return nil, err
		}
		target, err := updater.NewTarget(ctx, baseURL.String(), client)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("checking update target features: %v", err)
		}
		s.target = target
	}
	return s, nil
}

func newSession(cfg deviceconfig.DeviceConfig, base afero.Fs, out io.Writer) (*session, error) {
	vol, err := cfg.Open(base, log.Default())
	if err != nil {
		return nil, err
	}
	dev, err := fat.New(vol.Config)
	if err != nil {
		vol.Close()
		return nil, err
	}
	return &session{
		cfg: cfg,
		vol: vol,
		dev: dev,
		img: fat.NewImage(dev),
		out: out,
	}, nil
}

func (s *session) Close() error {
	return s.vol.Close()
}

// reader parses the volume as it currently looks to the host.
func (s *session) reader() (*fat.Reader, error) {
	return fat.NewReader(s.img)
}

type fileSummary struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Mode     string `json:"mode"`
	Clusters []int  `json:"clusters,omitempty"`
}

type volumeInfo struct {
	Device   string        `json:"device"`
	Label    string        `json:"label"`
	Size     string        `json:"size"`
	Geometry fat.Geometry  `json:"geometry"`
	Files    []fileSummary `json:"files"`
	Sink     string        `json:"sink,omitempty"`
	Upload   fat.SinkState `json:"upload"`
}

func (s *session) info() (*volumeInfo, error) {
	rd, err := s.reader()
	if err != nil {
		return nil, err
	}
	g := s.dev.Geometry()
	info := &volumeInfo{
		Device:   s.cfg.Slug,
		Label:    rd.Label(),
		Size:     humanize.Blocks(g.TotalBlocks, g.BlockSize),
		Geometry: g,
		Sink:     s.vol.SinkName,
		Upload:   s.dev.State(),
	}
	entries, err := fs.ReadDir(rd, ".")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		clusters, err := rd.Chain(e.Name())
		if err != nil {
			return nil, err
		}
		info.Files = append(info.Files, fileSummary{
			Name:     e.Name(),
			Size:     fi.Size(),
			Mode:     fi.Mode().String(),
			Clusters: clusters,
		})
	}
	return info, nil
}

func (s *session) printInfo(asJSON bool) error {
	info, err := s.info()
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	g := info.Geometry
	fmt.Fprintf(s.out, "Device:     %s\n", info.Device)
	fmt.Fprintf(s.out, "Label:      %s\n", info.Label)
	fmt.Fprintf(s.out, "Size:       %s\n", info.Size)
	fmt.Fprintf(s.out, "Clusters:   %d of %s\n", g.Clusters, humanize.Bytes(uint64(g.ClusterSize())))
	fmt.Fprintf(s.out, "FAT:        %d copies of %d sectors at %d\n", g.FATCopies, g.SectorsPerFAT, g.FATStart(0))
	fmt.Fprintf(s.out, "Root:       %d entries at %d\n", g.RootEntries, g.RootDirStart())
	fmt.Fprintf(s.out, "Data:       from %d\n", g.DataStart())
	fmt.Fprintf(s.out, "\nFiles:\n")
	for _, f := range info.Files {
		var first int
		if len(f.Clusters) > 0 {
			first = f.Clusters[0]
		}
		fmt.Fprintf(s.out, "  %-12s %10d  %s  cluster %d\n", f.Name, f.Size, f.Mode, first)
	}
	if info.Sink != "" {
		u := info.Upload
		fmt.Fprintf(s.out, "\nUpload:     %s, %s received, high water %s, completed %v\n",
			info.Sink,
			humanize.Bytes(uint64(u.Received)),
			humanize.Bytes(uint64(u.HighWater)),
			u.Completed)
	}
	return nil
}

func (s *session) ls() error {
	rd, err := s.reader()
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(rd, ".")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %10d %s %s\n", fi.Mode(), fi.Size(), fi.ModTime().Format("2006-01-02 15:04"), fi.Name())
	}
	return nil
}

func (s *session) cat(name string) error {
	rd, err := s.reader()
	if err != nil {
		return err
	}
	f, err := rd.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(s.out, f)
	return err
}

func (s *session) hexdump(lba uint32) error {
	b := make([]byte, s.dev.Geometry().BlockSize)
	if err := s.dev.ReadBlocks(b, lba); err != nil {
		return err
	}
	dumper := hex.Dumper(s.out)
	defer dumper.Close()
	_, err := dumper.Write(b)
	return err
}

var (
	errNoSink     = errors.New("the volume has no writable file")
	errIncomplete = errors.New("upload did not complete")
)

// upload copies size bytes from r into the writable file the way a host
// does: truncate the directory entry, write the data, then write the
// final size. A completed upload is forwarded to the update target.
func (s *session) upload(ctx context.Context, r io.Reader, size int64) (fat.Event, error) {
	name := s.vol.SinkName
	if name == "" {
		return fat.Event{}, errNoSink
	}
	rd, err := s.reader()
	if err != nil {
		return fat.Event{}, err
	}
	offset, _, err := rd.Extents(name)
	if err != nil {
		return fat.Event{}, err
	}
	if avail := s.sinkSize(); size > avail {
		return fat.Event{}, fmt.Errorf("%s: %s do not fit into %s", name, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(avail)))
	}
	entry, err := rd.EntryOffset(name)
	if err != nil {
		return fat.Event{}, err
	}
	var sizeField [4]byte
	if _, err := s.img.WriteAt(sizeField[:], entry+28); err != nil {
		return fat.Event{}, err
	}

	counter := &progress.Counter{}
	reporter := &progress.Reporter{Counter: counter, Out: s.out}
	reporter.SetStatus(name)
	reporter.SetTotal(uint64(size))
	reportCtx, cancel := context.WithCancel(ctx)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reporter.Report(reportCtx)
	}()
	ev, err := s.copyIn(r, offset, size, rd.ClusterSize(), counter)
	cancel()
	<-reported
	if err != nil {
		return fat.Event{}, err
	}

	if ev.Kind != fat.EventCompleted {
		binary.LittleEndian.PutUint32(sizeField[:], uint32(size))
		if _, err := s.img.WriteAt(sizeField[:], entry+28); err != nil {
			return fat.Event{}, err
		}
		ev = s.img.LastEvent()
	}
	if ev.Kind != fat.EventCompleted {
		return ev, fmt.Errorf("%s: %w (last event: %v)", name, errIncomplete, ev.Kind)
	}
	fmt.Fprintf(s.out, "%s: upload of %s complete\n", ev.File, humanize.Bytes(uint64(ev.Size)))
	if err := s.forward(ctx, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// sinkSize returns the largest upload the writable file accepts.
func (s *session) sinkSize() int64 {
	for _, f := range s.vol.Config.Files {
		if f.Name == s.vol.SinkName {
			return f.Size
		}
	}
	return 0
}

// copyIn writes the data one cluster at a time and returns early if the
// volume reports completion on its own, as UF2 volumes do.
func (s *session) copyIn(r io.Reader, offset, size int64, clusterSize int, counter *progress.Counter) (fat.Event, error) {
	buf := make([]byte, clusterSize)
	var written int64
	for written < size {
		chunk := buf
		if rest := size - written; rest < int64(len(chunk)) {
			chunk = chunk[:rest]
		}
		n, err := io.ReadFull(r, chunk)
		if err != nil {
			return fat.Event{}, fmt.Errorf("reading upload after %d bytes: %v", written, err)
		}
		if _, err := s.img.WriteAt(chunk[:n], offset+written); err != nil {
			return fat.Event{}, err
		}
		written += int64(n)
		counter.Add(n)
		if ev := s.img.LastEvent(); ev.Kind == fat.EventCompleted {
			return ev, nil
		}
	}
	return s.img.LastEvent(), nil
}

// forward streams a completed upload to the update target and activates
// it there.
func (s *session) forward(ctx context.Context, ev fat.Event) error {
	if s.target == nil {
		return nil
	}
	r := s.vol.Upload(ev)
	if r == nil {
		return nil
	}
	res, err := s.target.StreamTo(ctx, ev.File, r)
	if err != nil {
		return fmt.Errorf("forwarding %s: %w", ev.File, err)
	}
	log.Printf("forwarded %s: %s", ev.File, res)
	if err := s.target.Activate(ctx); err != nil {
		return fmt.Errorf("activating %s: %w", ev.File, err)
	}
	return nil
}

// dump writes the whole image to w.
func (s *session) dump(w io.Writer) (int64, error) {
	return s.img.WriteTo(w)
}
