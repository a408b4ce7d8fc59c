package blockcache

import (
	log "github.com/sirupsen/logrus"

	"github.com/Yarobey/diskmap/vm"
)

// HandleFault loads the block containing the faulting address. It declines
// faults outside the disk map region without touching anything.
func (c *Cache) HandleFault(f *vm.Fault) bool {
	va := f.Addr
	if !c.InRegion(va) {
		c.stats.Declined++
		return false
	}
	blockno := c.BlockOf(va)
	fields := log.Fields{"va": va, "block": blockno}

	if c.super != nil && uint32(blockno) >= c.super.NBlocks {
		c.fatal(ErrBadBlock, fields, "reading non-existent block %08x out of %08x", uint32(blockno), c.super.NBlocks)
	}

	va = vm.RoundDown(va, BlockSize)
	if err := c.as.AllocRegion(va, BlockSize, vm.PermRW); err != nil {
		c.fatal(ErrNoMemory, fields, "fault on %v: %v", va, err)
	}
	frame, err := c.as.Frame(va)
	if err != nil {
		c.fatal(ErrNoMemory, fields, "fault on %v: %v", va, err)
	}

	// The frame is private to this page from allocation on, so the device
	// can read straight into it.
	if err := c.dev.ReadSectors(uint64(blockno)*SectorsPerBlock, frame, SectorsPerBlock); err != nil {
		// Never leave a partially loaded block mapped.
		c.as.UnmapRegion(va, BlockSize)
		c.fatal(ErrDevice, fields, "fault on %v failed: reading: %v", va, err)
	}

	c.stats.Loads++
	c.log.WithFields(fields).Debug("block loaded")
	return true
}
