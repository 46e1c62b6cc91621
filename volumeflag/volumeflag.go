// Package volumeflag registers the flags which select and adjust the
// virtual volume, shared by all ghostfat commands.
package volumeflag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gokrazy/ghostfat/config"
	"github.com/gokrazy/ghostfat/deviceconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

var (
	configDir = func() string {
		def := os.Getenv("GHOSTFAT_CONFIG_DIR")
		if def == "" {
			def = config.Dir()
		}
		return def
	}()

	device = func() string {
		def := os.Getenv("GHOSTFAT_DEVICE")
		if def == "" {
			def = "uf2"
		}
		return def
	}()

	configPath  string
	capacity    int64
	label       string
	fatCopies   int
	autoRearm   bool
	updateURL   string
	tlsInsecure bool
	flashFamily string
)

func RegisterPflags(fs *pflag.FlagSet) {
	slugs := deviceconfig.Slugs()
	sort.Strings(slugs)
	fs.StringVarP(&device,
		"device",
		"d",
		device,
		fmt.Sprintf("device, identified by slug: a directory below --config_dir or one of the built-in descriptions (%s)", strings.Join(slugs, ", ")))

	fs.StringVar(&configDir,
		"config_dir",
		configDir,
		`configuration directory: contains one subdirectory per device below devices/`)

	fs.StringVar(&configPath,
		"config",
		"",
		`path to a device description (JSON), overriding --device`)

	fs.Int64Var(&capacity,
		"capacity",
		0,
		`volume capacity in bytes (0 keeps the device default)`)

	fs.StringVar(&label,
		"label",
		"",
		`volume label (empty keeps the device default)`)

	fs.IntVar(&fatCopies,
		"fat_copies",
		0,
		`number of FAT copies, 1 or 2 (0 keeps the device default)`)

	fs.BoolVar(&autoRearm,
		"auto_rearm",
		false,
		`accept another upload right after a completed one`)

	fs.StringVar(&updateURL,
		"update_url",
		"",
		`if non-empty, completed uploads are sent to this gokrazy-style update endpoint (default: update_url file in the device directory)`)

	fs.BoolVar(&tlsInsecure,
		"tls_insecure",
		false,
		`do not verify the certificate of an https --update_url`)

	fs.StringVar(&flashFamily,
		"family",
		"",
		`UF2 chip family to accept (empty keeps the device default)`)
}

func SetDevice(d string) {
	device = d
}

func SetConfigDir(d string) {
	configDir = d
}

func Device() string {
	return device
}

func ConfigDir() string {
	return configDir
}

func TLSInsecure() bool {
	return tlsInsecure
}

// DeviceDir returns the directory of the selected device.
func DeviceDir() config.DeviceDir {
	return config.DeviceDirIn(configDir, device)
}

// UpdateURL returns the --update_url flag, falling back to the update_url
// file of the device directory.
func UpdateURL(fs afero.Fs) string {
	if updateURL != "" {
		return updateURL
	}
	u, err := DeviceDir().ReadFile(fs, "update_url")
	if err != nil {
		return ""
	}
	return u
}

// DeviceConfig resolves the selected device description: the --config
// file, else the description in the device directory, else the built-in
// description with the device slug. The returned file system resolves
// the paths the description refers to. Volume flags are applied on top.
func DeviceConfig(fs afero.Fs) (deviceconfig.DeviceConfig, afero.Fs, error) {
	cfg, base, err := load(fs)
	if err != nil {
		return deviceconfig.DeviceConfig{}, nil, err
	}
	if capacity != 0 {
		cfg.Capacity = capacity
	}
	if label != "" {
		cfg.VolumeLabel = label
	}
	if fatCopies != 0 {
		cfg.FATCopies = fatCopies
	}
	if autoRearm {
		cfg.AutoRearm = true
	}
	if flashFamily != "" && cfg.UF2 != nil {
		u := *cfg.UF2
		u.Family = flashFamily
		cfg.UF2 = &u
	}
	if err := cfg.Validate(); err != nil {
		return deviceconfig.DeviceConfig{}, nil, err
	}
	return cfg, base, nil
}

func load(fs afero.Fs) (deviceconfig.DeviceConfig, afero.Fs, error) {
	if configPath != "" {
		cfg, err := deviceconfig.Load(fs, configPath)
		if err != nil {
			return deviceconfig.DeviceConfig{}, nil, err
		}
		dir, err := filepath.Abs(filepath.Dir(configPath))
		if err != nil {
			return deviceconfig.DeviceConfig{}, nil, err
		}
		return cfg, afero.NewBasePathFs(fs, dir), nil
	}
	dir := DeviceDir()
	if ok, _ := afero.Exists(fs, dir.DevicePath()); ok {
		cfg, err := deviceconfig.Load(fs, dir.DevicePath())
		if err != nil {
			return deviceconfig.DeviceConfig{}, nil, err
		}
		return cfg, dir.Fs(fs), nil
	}
	cfg, ok := deviceconfig.GetDeviceConfigBySlug(device)
	if !ok {
		return deviceconfig.DeviceConfig{}, nil, fmt.Errorf("device %q: no %s and no built-in description", device, dir.DevicePath())
	}
	// Built-in descriptions keep their files in the device directory.
	if err := fs.MkdirAll(string(dir), 0755); err != nil {
		return deviceconfig.DeviceConfig{}, nil, err
	}
	return cfg, dir.Fs(fs), nil
}
