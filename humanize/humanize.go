// Package humanize formats sizes and transfer rates for log messages and
// command output.
package humanize

import "fmt"

var units = []string{"B", "KiB", "MiB", "GiB", "TiB"}

func format(v uint64, suffix string) string {
	if v < 1024 {
		return fmt.Sprintf("%d B%s", v, suffix)
	}
	f := float64(v)
	unit := 0
	for f >= 1024 && unit < len(units)-1 {
		f /= 1024
		unit++
	}
	if f < 10 {
		return fmt.Sprintf("%.1f %s%s", f, units[unit], suffix)
	}
	return fmt.Sprintf("%.f %s%s", f, units[unit], suffix)
}

func BPS(bps uint64) string { return format(bps, "/s") }

func Bytes(bytes uint64) string { return format(bytes, "") }

// Blocks describes a block device size, e.g. "4152 blocks of 512 B (2.0 MiB)".
func Blocks(blocks uint32, blockSize int) string {
	return fmt.Sprintf("%d blocks of %s (%s)",
		blocks,
		Bytes(uint64(blockSize)),
		Bytes(uint64(blocks)*uint64(blockSize)))
}
