package deviceconfig

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gokrazy/ghostfat/fat"
	"github.com/gokrazy/ghostfat/uf2"
	"github.com/spf13/afero"
)

// Volume is a device description with its backing files opened.
type Volume struct {
	Config fat.Config

	// UF2 is the sink behind NEW.UF2, if the description has a UF2
	// section.
	UF2 *uf2.Sink

	// SinkName is the name of the upload target, if any.
	SinkName string

	// upload holds what the sink wrote: the sink file, or the flash
	// image behind NEW.UF2.
	upload     io.ReaderAt
	uploadSize int64 // 0: size of the completed upload

	files []afero.File
}

// Upload returns the result of the upload which ev completed: the bytes
// written into the sink file, or the whole flash image for UF2 volumes.
// It returns nil for events other than EventCompleted.
func (v *Volume) Upload(ev fat.Event) io.Reader {
	if ev.Kind != fat.EventCompleted || v.upload == nil {
		return nil
	}
	size := v.uploadSize
	if size == 0 {
		size = ev.Size
	}
	return io.NewSectionReader(v.upload, 0, size)
}

// Close closes all backing files.
func (v *Volume) Close() error {
	var first error
	for _, f := range v.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	v.files = nil
	return first
}

func uf2Family(name string) (uint32, bool) {
	id, ok := uf2.Families[strings.ToLower(name)]
	return id, ok
}

func indexHTM(url string) string {
	if url == "" {
		url = "https://github.com/microsoft/uf2"
	}
	return "<!doctype html>\n<html><body><script>\nlocation.replace(" + strconv.Quote(url) + ");\n</script></body></html>\n"
}

// Open opens the backing files of c on fs and returns the volume
// configuration. logger is passed on to the volume and may be nil.
func (c DeviceConfig) Open(fs afero.Fs, logger *log.Logger) (_ *Volume, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	v := &Volume{
		Config: fat.Config{
			Capacity:    c.Capacity,
			BlockSize:   c.BlockSize,
			FATCopies:   c.FATCopies,
			RootEntries: c.RootEntries,
			OEMName:     c.OEMName,
			VolumeLabel: c.VolumeLabel,
			VolumeID:    c.VolumeID,
			AutoRearm:   c.AutoRearm,
			Log:         logger,
		},
	}
	defer func() {
		if err != nil {
			v.Close()
		}
	}()

	if c.UF2 != nil {
		if err := v.addUF2(fs, c.UF2, logger); err != nil {
			return nil, err
		}
	}
	for _, fc := range c.Files {
		f, err := v.file(fs, fc)
		if err != nil {
			return nil, err
		}
		v.Config.Files = append(v.Config.Files, f)
	}
	return v, nil
}

func (v *Volume) file(fs afero.Fs, fc FileConfig) (fat.File, error) {
	f := fat.File{
		Name: fc.Name,
		Size: fc.MaxLength,
	}
	switch {
	case fc.Source != "":
		src, err := fs.Open(fc.Source)
		if err != nil {
			return fat.File{}, err
		}
		v.files = append(v.files, src)
		if f.Size == 0 {
			st, err := src.Stat()
			if err != nil {
				return fat.File{}, err
			}
			f.Size = st.Size()
		}
		f.Content = fat.Generate(src)
		if f.Size == 0 {
			f.Content = fat.Bytes(nil)
		}
		f.Attr = fat.AttrReadOnly

	case fc.Sink != "":
		dst, err := fs.OpenFile(fc.Sink, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return fat.File{}, err
		}
		v.files = append(v.files, dst)
		f.Content = fat.Writable(dst)
		f.Attr = fat.AttrArchive
		v.SinkName = fc.Name
		v.upload = dst

	default:
		if f.Size == 0 {
			f.Size = int64(len(fc.Content))
		}
		f.Content = fat.String(fc.Content)
		f.Attr = fat.AttrReadOnly
	}
	if fc.Hidden {
		f.Attr |= fat.AttrHidden
	}
	return f, nil
}

func (v *Volume) addUF2(fs afero.Fs, u *UF2Config, logger *log.Logger) error {
	flash, err := fs.OpenFile(u.Flash, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	v.files = append(v.files, flash)
	st, err := flash.Stat()
	if err != nil {
		return err
	}
	if st.Size() < u.FlashSize {
		// erased flash reads as zeros here
		if err := flash.Truncate(u.FlashSize); err != nil {
			return fmt.Errorf("growing %s to %d bytes: %v", u.Flash, u.FlashSize, err)
		}
	}

	family, _ := uf2Family(u.Family)
	info := u.Info
	if info == "" {
		info = defaultUF2Info
	}
	current := uf2.NewReader(flash, u.FlashSize, u.BaseAddr, family)
	v.UF2 = uf2.NewSink(flash, u.BaseAddr, u.FlashSize, family, logger)
	v.SinkName = "NEW.UF2"
	v.upload = flash
	v.uploadSize = u.FlashSize
	v.Config.Files = append(v.Config.Files,
		fat.File{Name: "INFO_UF2.TXT", Content: fat.String(info)},
		fat.File{Name: "INDEX.HTM", Content: fat.String(indexHTM(u.IndexURL))},
		fat.File{Name: "CURRENT.UF2", Size: current.Size(), Content: fat.Generate(current)},
		fat.File{Name: "NEW.UF2", Size: current.Size(), Content: fat.Writable(v.UF2), Attr: fat.AttrArchive},
	)
	return nil
}
