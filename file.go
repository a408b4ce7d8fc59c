package main

import (
	"fmt"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
)

// DiskmapFile is an open handle on the disk file. Byte o of the file is byte
// o%BlockSize of block 1+o/BlockSize.
type DiskmapFile struct {
	nodefs.File

	fs *DiskmapFs
}

func NewDiskmapFile(fs *DiskmapFs) *DiskmapFile {
	return &DiskmapFile{
		File: nodefs.NewDefaultFile(),
		fs:   fs,
	}
}

func (f *DiskmapFile) String() string {
	return fmt.Sprintf("diskmap File %s", diskName)
}

func (f *DiskmapFile) InnerFile() nodefs.File {
	return nil
}

func (f *DiskmapFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	data, status := f.fs.readDisk(dest, off)
	if !status.Ok() {
		return fuse.ReadResultData(nil), status
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (f *DiskmapFile) Write(data []byte, off int64) (uint32, fuse.Status) {
	return f.fs.writeDisk(data, off)
}

func (f *DiskmapFile) Flush() fuse.Status {
	return f.fs.sync()
}

func (f *DiskmapFile) Fsync(flags int) fuse.Status {
	return f.fs.sync()
}

func (f *DiskmapFile) Truncate(size uint64) fuse.Status {
	return f.fs.Truncate(diskName, size, nil)
}

func (f *DiskmapFile) GetAttr(out *fuse.Attr) fuse.Status {
	attr, status := f.fs.GetAttr(diskName, nil)
	if !status.Ok() {
		return status
	}
	*out = *attr
	return fuse.OK
}
