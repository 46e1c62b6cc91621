// Package deviceconfig describes virtual volumes declaratively: which
// files a device shows to the host and where their content comes from.
// Descriptions are either built in (see DeviceConfigs) or loaded from
// JSON files.
package deviceconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// FileConfig describes one file in the root directory of the volume.
// Exactly one of Content, Source and Sink must be set (an empty file
// sets none of them).
type FileConfig struct {
	// Name in 8.3 format.
	Name string `json:"name"`

	// Content of a static file.
	Content string `json:"content,omitempty"`

	// Source is the path of a file whose content is served when the host
	// reads this file. It is read on demand, so it may change while the
	// volume is attached, but not grow beyond MaxLength.
	Source string `json:"source,omitempty"`

	// Sink is the path of a file which receives what the host uploads
	// into this file.
	Sink string `json:"sink,omitempty"`

	// MaxLength is the size of the file on the volume. It is required
	// for sinks and defaults to the current size of Source.
	MaxLength int64 `json:"max_length,omitempty"`

	Hidden bool `json:"hidden,omitempty"`
}

// UF2Config turns the volume into a UF2 bootloader drive.
type UF2Config struct {
	// Flash is the path of the flash image. It is created if missing.
	Flash string `json:"flash"`

	// FlashSize is the size of the flash in bytes.
	FlashSize int64 `json:"flash_size"`

	// BaseAddr is the address of the first flash byte.
	BaseAddr uint32 `json:"base_addr"`

	// Family is a key of uf2.Families. Blocks for other families are
	// skipped. Empty accepts all families.
	Family string `json:"family,omitempty"`

	// Info is the content of INFO_UF2.TXT.
	Info string `json:"info,omitempty"`

	// IndexURL is where INDEX.HTM redirects to.
	IndexURL string `json:"index_url,omitempty"`
}

type DeviceConfig struct {
	// Slug is a unique, short string used on the command line to refer
	// to this device.
	Slug string `json:"slug"`

	// Capacity of the volume in bytes. Small volumes are enlarged to the
	// smallest FAT16 volume.
	Capacity int64 `json:"capacity,omitempty"`

	BlockSize   int    `json:"block_size,omitempty"`
	FATCopies   int    `json:"fat_copies,omitempty"`
	RootEntries int    `json:"root_entries,omitempty"`
	OEMName     string `json:"oem_name,omitempty"`
	VolumeLabel string `json:"volume_label,omitempty"`
	VolumeID    uint32 `json:"volume_id,omitempty"`

	// AutoRearm accepts another upload right after a completed one.
	AutoRearm bool `json:"auto_rearm,omitempty"`

	Files []FileConfig `json:"files,omitempty"`

	// UF2 adds the files of a UF2 bootloader in front of Files.
	UF2 *UF2Config `json:"uf2,omitempty"`
}

const sectorSize = 512

const defaultUF2Info = "UF2 Bootloader 1.2.3\r\nModel: BluePill\r\nBoard-ID: xyz_123\r\n"

var (
	// DeviceConfigs contains the built-in device descriptions, keyed by a
	// human-readable name.
	DeviceConfigs = map[string]DeviceConfig{
		// A UF2 bootloader for an STM32F103 "Blue Pill" board.
		"UF2 bootloader (Blue Pill)": {
			Slug:        "uf2",
			Capacity:    8000 * sectorSize,
			VolumeLabel: "BLUEPILL",
			UF2: &UF2Config{
				Flash:     "flash.bin",
				FlashSize: 64 * 1024,
				BaseAddr:  0x08000000,
				Family:    "stm32f1",
				Info:      defaultUF2Info,
				IndexURL:  "https://github.com/microsoft/uf2",
			},
		},
		// A read-only description and one upload target.
		"Firmware upload": {
			Slug:     "firmware",
			Capacity: 64 * 1024,
			Files: []FileConfig{
				{Name: "INFO.TXT", Content: "Copy firmware to DATA.BIN\r\n"},
				{Name: "DATA.BIN", Sink: "upload.bin", MaxLength: 16 * sectorSize},
			},
		},
	}
)

func GetDeviceConfigBySlug(slug string) (DeviceConfig, bool) {
	for _, cfg := range DeviceConfigs {
		if cfg.Slug == slug {
			return cfg, true
		}
	}

	return DeviceConfig{}, false
}

// Slugs returns the slugs of all built-in device descriptions.
func Slugs() []string {
	var slugs []string
	for _, cfg := range DeviceConfigs {
		slugs = append(slugs, cfg.Slug)
	}
	return slugs
}

// Load reads a JSON device description from path.
func Load(fs afero.Fs, path string) (DeviceConfig, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return DeviceConfig{}, err
	}
	var cfg DeviceConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DeviceConfig{}, fmt.Errorf("%s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DeviceConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as JSON to path.
func Save(fs afero.Fs, path string, cfg DeviceConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, append(b, '\n'), 0644)
}

// Validate checks the parts of the description the volume layout does
// not check itself.
func (c *DeviceConfig) Validate() error {
	sinks := 0
	for _, f := range c.Files {
		set := 0
		for _, s := range []string{f.Content, f.Source, f.Sink} {
			if s != "" {
				set++
			}
		}
		if set > 1 {
			return fmt.Errorf("file %q: content, source and sink are mutually exclusive", f.Name)
		}
		if f.Sink != "" {
			sinks++
			if f.MaxLength <= 0 {
				return fmt.Errorf("file %q: sink needs a max_length", f.Name)
			}
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("file %q: negative max_length", f.Name)
		}
	}
	if u := c.UF2; u != nil {
		sinks++ // NEW.UF2
		if u.Flash == "" || u.FlashSize <= 0 {
			return fmt.Errorf("uf2: flash and flash_size are required")
		}
		if u.Family != "" {
			if _, ok := uf2Family(u.Family); !ok {
				return fmt.Errorf("uf2: unknown family %q", u.Family)
			}
		}
	}
	if sinks > 1 {
		return fmt.Errorf("%d upload targets configured, at most one is supported", sinks)
	}
	return nil
}
