package device

import (
	"fmt"
)

var (
	ErrOutOfRange  = fmt.Errorf("sector out of range")
	ErrShortBuffer = fmt.Errorf("buffer smaller than transfer")
	ErrBadGeometry = fmt.Errorf("size is not a multiple of the sector size")
)

const SectorSize = 512

// Device is a synchronous, sector-addressed storage device.
type Device interface {
	// ReadSectors reads count sectors starting at sector into buf.
	ReadSectors(sector uint64, buf []byte, count int) error
	// WriteSectors writes count sectors from buf starting at sector.
	WriteSectors(sector uint64, buf []byte, count int) error
	NumSectors() uint64
}

// checkTransfer validates a transfer of count sectors at sector against a
// device of nsectors and a buffer of buflen bytes.
func checkTransfer(sector uint64, buflen int, count int, nsectors uint64) error {
	if count < 0 || sector > nsectors || uint64(count) > nsectors-sector {
		return fmt.Errorf("%w: %d+%d of %d", ErrOutOfRange, sector, count, nsectors)
	}
	if buflen < count*SectorSize {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, buflen, count*SectorSize)
	}
	return nil
}
