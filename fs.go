package main

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Yarobey/diskmap/blockcache"
	"github.com/Yarobey/diskmap/device"
	"github.com/Yarobey/diskmap/vm"
)

const (
	diskName  = "disk"
	superName = "super"
	statsName = "stats"
)

type syncer interface {
	Sync() error
}

// DiskmapFs exposes the mapped device as a flat FUSE tree. The block cache
// has a single owner, so every access to it goes through lock.
type DiskmapFs struct {
	pathfs.FileSystem

	cache *blockcache.Cache
	as    *vm.AddressSpace
	dev   device.Device
	debug bool

	lock sync.Mutex
}

func NewDiskmapFs(cache *blockcache.Cache, as *vm.AddressSpace, dev device.Device) *DiskmapFs {
	return &DiskmapFs{
		FileSystem: pathfs.NewDefaultFileSystem(),
		cache:      cache,
		as:         as,
		dev:        dev,
	}
}

func (fs *DiskmapFs) String() string {
	return "diskmap"
}

func (fs *DiskmapFs) SetDebug(debug bool) {
	fs.debug = debug
}

// diskSize is the size of the disk file: every block but the reserved block 0.
func (fs *DiskmapFs) diskSize() uint64 {
	return uint64(fs.cache.NBlocks()-1) * blockcache.BlockSize
}

func (fs *DiskmapFs) superText() []byte {
	super, _ := fs.cache.Super()
	return []byte(fmt.Sprintf("%s\nsectors per block: %d\ndevice sectors: %d\n",
		super.String(), blockcache.SectorsPerBlock, fs.dev.NumSectors()))
}

func (fs *DiskmapFs) statsData() ([]byte, error) {
	fs.lock.Lock()
	stats := fs.cache.Stats()
	fs.lock.Unlock()
	return msgpack.Marshal(&stats)
}

func (fs *DiskmapFs) GetAttr(name string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	if fs.debug {
		log.Infof("GetAttr: %s", name)
	}

	switch name {
	case "":
		return &fuse.Attr{Mode: syscall.S_IFDIR | 0755}, fuse.OK
	case diskName:
		size := fs.diskSize()
		return &fuse.Attr{
			Mode:    syscall.S_IFREG | 0644,
			Size:    size,
			Blocks:  size / 512,
			Blksize: blockcache.BlockSize,
		}, fuse.OK
	case superName:
		return &fuse.Attr{
			Mode: syscall.S_IFREG | 0444,
			Size: uint64(len(fs.superText())),
		}, fuse.OK
	case statsName:
		data, err := fs.statsData()
		if err != nil {
			log.Errorf("Failed to encode stats: %s", err.Error())
			return nil, fuse.EIO
		}
		return &fuse.Attr{
			Mode: syscall.S_IFREG | 0444,
			Size: uint64(len(data)),
		}, fuse.OK
	}
	return nil, fuse.ENOENT
}

func (fs *DiskmapFs) OpenDir(name string, context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	if name != "" {
		return nil, fuse.ENOTDIR
	}
	return []fuse.DirEntry{
		{Name: diskName, Mode: syscall.S_IFREG},
		{Name: superName, Mode: syscall.S_IFREG},
		{Name: statsName, Mode: syscall.S_IFREG},
	}, fuse.OK
}

func (fs *DiskmapFs) Open(name string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	if fs.debug {
		log.Infof("Open: %s, %o", name, flags)
	}

	var data []byte
	switch name {
	case diskName:
		return NewDiskmapFile(fs), fuse.OK
	case superName:
		data = fs.superText()
	case statsName:
		var err error
		data, err = fs.statsData()
		if err != nil {
			log.Errorf("Failed to encode stats: %s", err.Error())
			return nil, fuse.EIO
		}
	default:
		return nil, fuse.ENOENT
	}
	if flags&fuse.O_ANYWRITE != 0 {
		return nil, fuse.EPERM
	}
	return nodefs.NewReadOnlyFile(nodefs.NewDataFile(data)), fuse.OK
}

func (fs *DiskmapFs) Truncate(name string, size uint64, context *fuse.Context) fuse.Status {
	if name == diskName && size == fs.diskSize() {
		return fuse.OK
	}
	return fuse.EPERM
}

// diskAddr maps an offset of the disk file to its virtual address.
func (fs *DiskmapFs) diskAddr(off int64) vm.Addr {
	return fs.cache.DiskAddr(blockcache.SuperBlock) + vm.Addr(off)
}

func (fs *DiskmapFs) readDisk(dest []byte, off int64) ([]byte, fuse.Status) {
	if off < 0 {
		return nil, fuse.EINVAL
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	size := int64(fs.diskSize())
	if off >= size {
		return dest[:0], fuse.OK
	}
	end := off + int64(len(dest))
	if end > size {
		end = size
	}
	n, err := fs.as.ReadAt(dest[:end-off], fs.diskAddr(off))
	if err != nil {
		log.Errorf("Failed to read disk at %d: %s", off, err.Error())
		return nil, fuse.EIO
	}
	return dest[:n], fuse.OK
}

func (fs *DiskmapFs) writeDisk(data []byte, off int64) (uint32, fuse.Status) {
	if off < 0 {
		return 0, fuse.EINVAL
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	if off+int64(len(data)) > int64(fs.diskSize()) {
		return 0, fuse.Status(syscall.ENOSPC)
	}
	n, err := fs.as.WriteAt(data, fs.diskAddr(off))
	if err != nil {
		log.Errorf("Failed to write disk at %d: %s", off, err.Error())
		return uint32(n), fuse.EIO
	}
	return uint32(n), fuse.OK
}

// sync writes back every dirty block and syncs the device if it can be.
func (fs *DiskmapFs) sync() fuse.Status {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.cache.Sync()
	if s, ok := fs.dev.(syncer); ok {
		if err := s.Sync(); err != nil {
			log.Errorf("Failed to sync device: %s", err.Error())
			return fuse.EIO
		}
	}
	return fuse.OK
}
