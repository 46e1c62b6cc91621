// Package config locates the per-user ghostfat configuration: device
// descriptions and the files they refer to.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

func userConfigDir() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("https://golang.org/pkg/os/#UserConfigDir failed: %v", err)
	}
	return userConfigDir
}

// Typically ~/.config/ghostfat on Linux
// Typically ~/Library/Application\ Support/ghostfat on macOS/Darwin
func ghostfatConfigDir() string {
	return filepath.Join(userConfigDir(), "ghostfat")
}

func Dir() string { return ghostfatConfigDir() }

// DeviceFile is the name of the device description within a DeviceDir.
const DeviceFile = "device.json"

// DeviceDir holds the description of one device and the files it refers
// to (sources, sinks, flash images).
type DeviceDir string

// ReadFile reads a small setting file, falling back to the global
// configuration directory if the device has none.
func (d DeviceDir) ReadFile(fs afero.Fs, configBaseName string) (string, error) {
	b, err := afero.ReadFile(fs, filepath.Join(string(d), configBaseName))
	if err != nil {
		// fall back to global path
		b, err = afero.ReadFile(fs, filepath.Join(filepath.Dir(filepath.Dir(string(d))), configBaseName))
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(string(b)), nil
}

// Fs returns a file system rooted at the device directory, against which
// the relative paths of the device description resolve.
func (d DeviceDir) Fs(fs afero.Fs) afero.Fs {
	return afero.NewBasePathFs(fs, string(d))
}

// DevicePath returns the path of the device description.
func (d DeviceDir) DevicePath() string {
	return filepath.Join(string(d), DeviceFile)
}

func DeviceSpecific(slug string) DeviceDir {
	return DeviceDirIn(ghostfatConfigDir(), slug)
}

// DeviceDirIn returns the directory of the device slug below the
// configuration directory dir.
func DeviceDirIn(dir, slug string) DeviceDir {
	return DeviceDir(filepath.Join(dir, "devices", slug))
}
