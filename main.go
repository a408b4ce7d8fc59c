package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	log "github.com/sirupsen/logrus"
	"github.com/tchajed/goose/machine/disk"

	"github.com/Yarobey/diskmap/blockcache"
	"github.com/Yarobey/diskmap/device"
	"github.com/Yarobey/diskmap/vm"
)

var (
	flagMountPoint = flag.String("p", "./disk", "Mount point")
	flagImage      = flag.String("i", "fs.img", "Disk image")
	flagBackend    = flag.String("backend", "file", "Device backend: file, mem or goose")
	flagFormat     = flag.Uint("mkfs", 0, "Format the device with this many blocks before mounting")
	flagAllowOther = flag.Bool("allow_other", false, "Allow other users to access")
	flagDebug      = flag.Bool("debug", false, "Log every request and cache event")
)

type closer interface {
	Close() error
}

// openDevice opens the backend named by -backend. With nblocks > 0 the
// device is created with that many blocks.
func openDevice(backend string, image string, nblocks uint64) (device.Device, error) {
	switch backend {
	case "file":
		if nblocks > 0 {
			return device.CreateFileDevice(image, nblocks*blockcache.SectorsPerBlock)
		}
		return device.OpenFileDevice(image)
	case "mem":
		if nblocks == 0 {
			return nil, fmt.Errorf("backend mem needs -mkfs")
		}
		return device.NewMemDevice(nblocks * blockcache.SectorsPerBlock), nil
	case "goose":
		if nblocks == 0 {
			fi, err := os.Stat(image)
			if err != nil {
				return nil, err
			}
			nblocks = uint64(fi.Size()) / disk.BlockSize
		}
		d, err := disk.NewFileDisk(image, nblocks)
		if err != nil {
			return nil, err
		}
		return device.NewGooseDevice(d), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

func main() {
	flag.Parse()
	mountPoint := *flagMountPoint
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	dev, err := openDevice(*flagBackend, *flagImage, uint64(*flagFormat))
	if err != nil {
		log.Fatalf("Open device failed: %v\n", err)
	}
	if c, ok := dev.(closer); ok {
		defer c.Close()
	}
	if *flagFormat > 0 {
		if err := blockcache.Format(dev, uint32(*flagFormat)); err != nil {
			log.Fatalf("Format failed: %v\n", err)
		}
	}

	as := vm.New(vm.Config{})
	cache, err := blockcache.New(as, dev, blockcache.Config{})
	if err != nil {
		log.Fatalf("Create block cache failed: %v\n", err)
	}
	cache.Init()

	fs := NewDiskmapFs(cache, as, dev)
	fs.SetDebug(*flagDebug)
	nfs := pathfs.NewPathNodeFs(fs, nil)

	root := nfs.Root()
	conn := nodefs.NewFileSystemConnector(root, nil)
	server, err := fuse.NewServer(conn.RawFS(), mountPoint, &fuse.MountOptions{
		AllowOther: *flagAllowOther,
	})
	if err != nil {
		log.Fatalf("Mount fail: %v\n", err)
	}

	server.Serve()
	fs.sync()
}
