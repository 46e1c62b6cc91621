package fat

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every error New returns. A device
	// with an invalid configuration must not be attached.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrOutOfRange is returned for block addresses at or beyond the end
	// of the device. The transport decides how to report it to the host.
	ErrOutOfRange = errors.New("block address out of range")
)

func configErrorf(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, v...))
}

func outOfRange(lba uint32, count int, total uint32) error {
	return fmt.Errorf("%w: lba %d (+%d blocks), device has %d blocks", ErrOutOfRange, lba, count, total)
}
