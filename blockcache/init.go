package blockcache

import (
	"bytes"

	log "github.com/sirupsen/logrus"

	"github.com/Yarobey/diskmap/vm"
)

// Init installs the fault handler, checks the load/flush/reload cycle on the
// superblock and caches the superblock. It must be called exactly once.
func (c *Cache) Init() {
	if c.initialized {
		c.fatal(ErrInitialized, nil, "Init called twice")
	}
	if err := c.as.AddFaultHandler(c.HandleFault); err != nil {
		c.fatal(ErrBadConfig, nil, "cannot install fault handler: %v", err)
	}
	c.initialized = true

	c.check()

	buf := make([]byte, superSize)
	c.mustRead(c.DiskAddr(SuperBlock), buf)
	super, err := DecodeSuper(buf)
	if err != nil {
		c.fatal(ErrBadSuper, log.Fields{"block": SuperBlock}, "%v", err)
	}
	if uint64(super.NBlocks)*SectorsPerBlock > c.dev.NumSectors() {
		c.fatal(ErrBadSuper, nil, "%d blocks but device has %d sectors", super.NBlocks, c.dev.NumSectors())
	}
	if uint64(super.NBlocks) > c.disksize/BlockSize {
		c.fatal(ErrBadSuper, nil, "%d blocks do not fit in a %#x byte disk map", super.NBlocks, c.disksize)
	}
	c.super = super
	c.log.WithField("nblocks", super.NBlocks).Info("superblock cached")
}

func (c *Cache) mustRead(va vm.Addr, p []byte) {
	if _, err := c.as.ReadAt(p, va); err != nil {
		c.fatal(ErrSelfCheck, log.Fields{"va": va}, "read %v: %v", va, err)
	}
}

func (c *Cache) mustWrite(va vm.Addr, p []byte) {
	if _, err := c.as.WriteAt(p, va); err != nil {
		c.fatal(ErrSelfCheck, log.Fields{"va": va}, "write %v: %v", va, err)
	}
}

// check smashes the superblock, flushes it, drops the page, reads it back
// and restores it.
func (c *Cache) check() {
	va := c.DiskAddr(SuperBlock)
	smash := []byte("OOPS!\n\x00")

	backup := make([]byte, BlockSize)
	c.mustRead(va, backup)

	c.mustWrite(va, smash)
	c.Flush(va)
	if !c.as.IsPresent(va) || c.as.IsDirty(va) {
		c.fatal(ErrSelfCheck, nil, "block 1 not clean after flush")
	}

	if err := c.as.UnmapRegion(va, BlockSize); err != nil {
		c.fatal(ErrSelfCheck, nil, "unmap block 1: %v", err)
	}
	if c.as.IsPresent(va) {
		c.fatal(ErrSelfCheck, nil, "block 1 still present after unmap")
	}

	got := make([]byte, len(smash))
	c.mustRead(va, got)
	if !bytes.Equal(got, smash) {
		c.fatal(ErrSelfCheck, nil, "block 1 reads back %q", got)
	}

	c.mustWrite(va, backup)
	c.Flush(va)

	c.log.Info("block cache is good")
}
