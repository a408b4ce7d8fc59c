package device

import (
	"github.com/tchajed/goose/machine/disk"
)

const sectorsPerDiskBlock = disk.BlockSize / SectorSize

// GooseDevice exposes a goose disk (4096-byte blocks) as a sector device.
type GooseDevice struct {
	d disk.Disk
}

func NewGooseDevice(d disk.Disk) *GooseDevice {
	return &GooseDevice{d: d}
}

func (g *GooseDevice) NumSectors() uint64 {
	return g.d.Size() * sectorsPerDiskBlock
}

func (g *GooseDevice) ReadSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, g.NumSectors()); err != nil {
		return err
	}
	done := 0
	for done < count*SectorSize {
		pos := sector*SectorSize + uint64(done)
		blk := g.d.Read(pos / disk.BlockSize)
		done += copy(buf[done:count*SectorSize], blk[pos%disk.BlockSize:])
	}
	return nil
}

func (g *GooseDevice) WriteSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, g.NumSectors()); err != nil {
		return err
	}
	done := 0
	for done < count*SectorSize {
		pos := sector*SectorSize + uint64(done)
		a := pos / disk.BlockSize
		off := pos % disk.BlockSize
		var blk disk.Block
		if off == 0 && count*SectorSize-done >= int(disk.BlockSize) {
			blk = make(disk.Block, disk.BlockSize)
		} else {
			// partial block: read-modify-write
			blk = g.d.Read(a)
		}
		done += copy(blk[off:], buf[done:count*SectorSize])
		g.d.Write(a, blk)
	}
	return nil
}

// Sync waits for outstanding writes to reach the disk.
func (g *GooseDevice) Sync() error {
	g.d.Barrier()
	return nil
}

func (g *GooseDevice) Close() error {
	g.d.Close()
	return nil
}
