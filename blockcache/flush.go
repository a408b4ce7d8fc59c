package blockcache

import (
	log "github.com/sirupsen/logrus"

	"github.com/Yarobey/diskmap/vm"
)

// Flush writes the block containing va back to the device if it is cached
// and dirty, then clears its dirty indicator. Clean or absent blocks are left
// alone.
func (c *Cache) Flush(va vm.Addr) {
	if !c.InRegion(va) {
		c.fatal(ErrBadAddress, log.Fields{"va": va}, "flush of bad va %v", va)
	}
	blockno := c.BlockOf(va)
	fields := log.Fields{"va": va, "block": blockno}
	if blockno != 0 && c.super != nil && uint32(blockno) >= c.super.NBlocks {
		c.fatal(ErrBadBlock, fields, "flushing non-existent block %08x out of %08x", uint32(blockno), c.super.NBlocks)
	}

	va = vm.RoundDown(va, BlockSize)
	if !c.as.IsPresent(va) || !c.as.IsDirty(va) {
		c.stats.CleanFlushes++
		return
	}

	frame, err := c.as.Frame(va)
	if err != nil {
		c.fatal(ErrBadAddress, fields, "flush of va %v: %v", va, err)
	}
	if err := c.dev.WriteSectors(uint64(blockno)*SectorsPerBlock, frame, SectorsPerBlock); err != nil {
		c.fatal(ErrDevice, fields, "flush of va %v failed: writing: %v", va, err)
	}
	// Remapping with the same permissions is the only way to reset the dirty
	// indicator.
	if err := c.as.MapRegion(va, BlockSize, c.as.Perm(va)&vm.PermSyscall); err != nil {
		c.fatal(ErrNoMemory, fields, "flush of va %v failed: clearing dirty: %v", va, err)
	}
	if c.as.IsDirty(va) {
		c.fatal(ErrSelfCheck, fields, "block %08x still dirty after flush", uint32(blockno))
	}

	c.stats.Flushes++
	c.log.WithFields(fields).Debug("block flushed")
}

// Sync flushes every cached block of the device.
func (c *Cache) Sync() {
	n := c.NBlocks()
	for b := SuperBlock; uint32(b) < n; b++ {
		va := c.DiskAddr(b)
		if c.as.IsPresent(va) {
			c.Flush(va)
		}
	}
}
