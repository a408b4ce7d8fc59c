package device

import (
	"fmt"
	"os"
)

// FileDevice is a device backed by a disk image file.
type FileDevice struct {
	file     *os.File
	nsectors uint64
}

// OpenFileDevice opens an existing image. Its size must be a multiple of
// SectorSize.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size%SectorSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadGeometry, path, size)
	}
	return &FileDevice{file: f, nsectors: uint64(size) / SectorSize}, nil
}

// CreateFileDevice creates (or truncates) an image of nsectors zeroed sectors.
func CreateFileDevice(path string, nsectors uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nsectors * SectorSize)); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{file: f, nsectors: nsectors}, nil
}

func (d *FileDevice) ReadSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, d.nsectors); err != nil {
		return err
	}
	// ReadAt reports a short read as an error.
	_, err := d.file.ReadAt(buf[:count*SectorSize], int64(sector*SectorSize))
	return err
}

func (d *FileDevice) WriteSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, d.nsectors); err != nil {
		return err
	}
	_, err := d.file.WriteAt(buf[:count*SectorSize], int64(sector*SectorSize))
	return err
}

func (d *FileDevice) NumSectors() uint64 {
	return d.nsectors
}

func (d *FileDevice) Sync() error {
	return d.file.Sync()
}

func (d *FileDevice) Close() error {
	return d.file.Close()
}
