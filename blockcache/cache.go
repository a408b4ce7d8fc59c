// Package blockcache maps every block of a device into a reserved window of
// an address space and keeps the mapping coherent with the device.
//
// Block b always lives at DiskMap + b*BlockSize. A block is loaded by the
// fault handler the first time its page is touched, and written back by
// Flush only if its page is present and dirty. There is no other cache index:
// "cached" is exactly "page present", and "modified" is exactly "page dirty".
//
// Every failure is fatal. Contract violations, device errors and allocation
// failures are logged and then raised as a panic whose value is an error
// wrapping one of the Err* values below.
package blockcache

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Yarobey/diskmap/device"
	"github.com/Yarobey/diskmap/vm"
)

type BlockNo uint32

const (
	BlockSize       = vm.PageSize
	SectorsPerBlock = BlockSize / device.SectorSize

	DefaultDiskMap  vm.Addr = 0x10000000
	DefaultDiskSize uint64  = 0xC0000000
)

var (
	ErrBadBlock       = fmt.Errorf("bad block number")
	ErrBadAddress     = fmt.Errorf("address outside disk map")
	ErrNoMemory       = fmt.Errorf("cannot allocate block page")
	ErrDevice         = fmt.Errorf("device transfer failed")
	ErrBadSuper       = fmt.Errorf("bad superblock")
	ErrSelfCheck      = fmt.Errorf("block cache self-check failed")
	ErrInitialized    = fmt.Errorf("block cache already initialized")
	ErrNotInitialized = fmt.Errorf("block cache not initialized")
	ErrBadConfig      = fmt.Errorf("bad block cache config")
)

type Config struct {
	// DiskMap is the start of the reserved window; 0 means DefaultDiskMap.
	DiskMap  vm.Addr
	// DiskSize is the size of the window in bytes; 0 means DefaultDiskSize.
	DiskSize uint64
	// Logger defaults to the standard logrus logger.
	Logger   *log.Entry
}

type Stats struct {
	Loads        uint64 `msgpack:"loads"`
	Flushes      uint64 `msgpack:"flushes"`
	CleanFlushes uint64 `msgpack:"clean_flushes"`
	Declined     uint64 `msgpack:"declined"`
}

// Cache is the block cache of one address space. Like the address space it
// has a single owner; callers sharing it must serialize access themselves.
type Cache struct {
	as       *vm.AddressSpace
	dev      device.Device
	diskmap  vm.Addr
	disksize uint64

	// nil until Init has loaded it. Until then only the region bounds are
	// checked.
	super *Super

	initialized bool
	stats       Stats
	log         *log.Entry
}

func New(as *vm.AddressSpace, dev device.Device, cfg Config) (*Cache, error) {
	if cfg.DiskMap == 0 {
		cfg.DiskMap = DefaultDiskMap
	}
	if cfg.DiskSize == 0 {
		cfg.DiskSize = DefaultDiskSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}
	if uint64(cfg.DiskMap)%BlockSize != 0 || cfg.DiskSize%BlockSize != 0 {
		return nil, fmt.Errorf("%w: region %v+%#x not block aligned", ErrBadConfig, cfg.DiskMap, cfg.DiskSize)
	}
	if cfg.DiskSize < 2*BlockSize {
		return nil, fmt.Errorf("%w: region of %#x bytes holds no superblock", ErrBadConfig, cfg.DiskSize)
	}
	if uint64(cfg.DiskMap)+cfg.DiskSize < uint64(cfg.DiskMap) {
		return nil, fmt.Errorf("%w: region %v+%#x wraps", ErrBadConfig, cfg.DiskMap, cfg.DiskSize)
	}
	return &Cache{
		as:       as,
		dev:      dev,
		diskmap:  cfg.DiskMap,
		disksize: cfg.DiskSize,
		log:      cfg.Logger,
	}, nil
}

// fatal logs and raises a panic wrapping kind.
func (c *Cache) fatal(kind error, fields log.Fields, format string, args ...interface{}) {
	err := fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
	c.log.WithFields(fields).Error(err)
	panic(err)
}

// InRegion reports whether va lies inside the disk map region.
func (c *Cache) InRegion(va vm.Addr) bool {
	return va >= c.diskmap && uint64(va-c.diskmap) < c.disksize
}

// BlockOf returns the block whose page contains va, which must lie in the
// region.
func (c *Cache) BlockOf(va vm.Addr) BlockNo {
	if !c.InRegion(va) {
		c.fatal(ErrBadAddress, log.Fields{"va": va}, "%v", va)
	}
	return BlockNo(uint64(va-c.diskmap) / BlockSize)
}

// DiskAddr returns the virtual address of block b.
func (c *Cache) DiskAddr(b BlockNo) vm.Addr {
	if b == 0 || uint64(b) >= c.disksize/BlockSize || (c.super != nil && uint32(b) >= c.super.NBlocks) {
		c.fatal(ErrBadBlock, log.Fields{"block": b}, "bad block number %08x in DiskAddr", uint32(b))
	}
	return c.diskmap + vm.Addr(uint64(b)*BlockSize)
}

// Super returns a copy of the cached superblock and whether it has been
// loaded yet.
func (c *Cache) Super() (Super, bool) {
	if c.super == nil {
		return Super{}, false
	}
	return *c.super, true
}

// NBlocks returns the device block count; it is fatal before Init.
func (c *Cache) NBlocks() uint32 {
	if c.super == nil {
		c.fatal(ErrNotInitialized, nil, "superblock not loaded")
	}
	return c.super.NBlocks
}

func (c *Cache) Stats() Stats {
	return c.stats
}

// IsCached reports whether block b's page is present.
func (c *Cache) IsCached(b BlockNo) bool {
	return c.as.IsPresent(c.DiskAddr(b))
}

// IsDirty reports whether block b has been modified since it was loaded or
// last flushed.
func (c *Cache) IsDirty(b BlockNo) bool {
	return c.as.IsDirty(c.DiskAddr(b))
}
