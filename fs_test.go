package main

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/fuse"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Yarobey/diskmap/blockcache"
	"github.com/Yarobey/diskmap/device"
	"github.com/Yarobey/diskmap/vm"
)

const testBlocks = 8

func newTestFs(t *testing.T, dev device.Device) *DiskmapFs {
	require.NoError(t, blockcache.Format(dev, testBlocks))

	l := log.New()
	l.SetOutput(io.Discard)
	as := vm.New(vm.Config{})
	cache, err := blockcache.New(as, dev, blockcache.Config{Logger: log.NewEntry(l)})
	require.NoError(t, err)
	cache.Init()
	return NewDiskmapFs(cache, as, dev)
}

func readFile(t *testing.T, fs *DiskmapFs, name string) []byte {
	f, status := fs.Open(name, uint32(syscall.O_RDONLY), &fuse.Context{})
	require.Equal(t, fuse.OK, status)
	buf := make([]byte, 4096)
	res, status := f.Read(buf, 0)
	require.Equal(t, fuse.OK, status)
	data, status := res.Bytes(buf)
	require.Equal(t, fuse.OK, status)
	return data
}

func TestGetAttr(t *testing.T) {
	fs := newTestFs(t, device.NewMemDevice(testBlocks*blockcache.SectorsPerBlock))
	ctx := &fuse.Context{}

	attr, status := fs.GetAttr("", ctx)
	require.Equal(t, fuse.OK, status)
	assert.NotZero(t, attr.Mode&syscall.S_IFDIR)

	attr, status = fs.GetAttr(diskName, ctx)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint64((testBlocks-1)*blockcache.BlockSize), attr.Size)
	assert.NotZero(t, attr.Mode&syscall.S_IFREG)

	_, status = fs.GetAttr("nope", ctx)
	assert.Equal(t, fuse.ENOENT, status)

	entries, status := fs.OpenDir("", ctx)
	require.Equal(t, fuse.OK, status)
	assert.Len(t, entries, 3)
}

func TestDiskFileWriteSync(t *testing.T) {
	mem := device.NewMemDevice(testBlocks * blockcache.SectorsPerBlock)
	fs := newTestFs(t, mem)

	f, status := fs.Open(diskName, uint32(syscall.O_RDWR), &fuse.Context{})
	require.Equal(t, fuse.OK, status)

	// Offset 2*BlockSize-2 straddles blocks 2 and 3.
	payload := []byte("spans")
	off := int64(2*blockcache.BlockSize - 2)
	n, status := f.Write(payload, off)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint32(len(payload)), n)
	assert.True(t, fs.cache.IsDirty(2))
	assert.True(t, fs.cache.IsDirty(3))

	raw := mem.Bytes()
	assert.NotEqual(t, payload, raw[3*blockcache.BlockSize-2:3*blockcache.BlockSize+3])

	require.Equal(t, fuse.OK, f.Fsync(0))
	assert.False(t, fs.cache.IsDirty(2))
	assert.False(t, fs.cache.IsDirty(3))
	raw = mem.Bytes()
	assert.Equal(t, payload, raw[3*blockcache.BlockSize-2:3*blockcache.BlockSize+3])

	buf := make([]byte, len(payload))
	res, status := f.Read(buf, off)
	require.Equal(t, fuse.OK, status)
	got, _ := res.Bytes(buf)
	assert.Equal(t, payload, got)
}

func TestDiskFileBounds(t *testing.T) {
	fs := newTestFs(t, device.NewMemDevice(testBlocks*blockcache.SectorsPerBlock))
	f := NewDiskmapFile(fs)
	size := int64(fs.diskSize())

	_, status := f.Write([]byte("xx"), size-1)
	assert.Equal(t, fuse.Status(syscall.ENOSPC), status)
	_, status = f.Write([]byte("x"), -1)
	assert.Equal(t, fuse.EINVAL, status)

	buf := make([]byte, 10)
	res, status := f.Read(buf, size-4)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, 4, res.Size())
	res, status = f.Read(buf, size)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, 0, res.Size())

	assert.Equal(t, fuse.EPERM, f.Truncate(0))
	assert.Equal(t, fuse.OK, f.Truncate(uint64(size)))

	var attr fuse.Attr
	require.Equal(t, fuse.OK, f.GetAttr(&attr))
	assert.Equal(t, uint64(size), attr.Size)
}

func TestSuperFile(t *testing.T) {
	fs := newTestFs(t, device.NewMemDevice(testBlocks*blockcache.SectorsPerBlock))
	data := readFile(t, fs, superName)
	assert.True(t, strings.HasPrefix(string(data), "magic 4a0530ae, 8 blocks of 4096 bytes\n"))

	_, status := fs.Open(superName, uint32(syscall.O_WRONLY), &fuse.Context{})
	assert.Equal(t, fuse.EPERM, status)
	_, status = fs.Open("nope", 0, &fuse.Context{})
	assert.Equal(t, fuse.ENOENT, status)
}

func TestStatsFile(t *testing.T) {
	fs := newTestFs(t, device.NewMemDevice(testBlocks*blockcache.SectorsPerBlock))
	f := NewDiskmapFile(fs)
	_, status := f.Write([]byte{1}, 3*blockcache.BlockSize)
	require.Equal(t, fuse.OK, status)
	require.Equal(t, fuse.OK, f.Flush())

	var stats blockcache.Stats
	require.NoError(t, msgpack.Unmarshal(readFile(t, fs, statsName), &stats))
	assert.Equal(t, fs.cache.Stats(), stats)
	assert.Equal(t, uint64(3), stats.Loads)
	assert.Equal(t, uint64(3), stats.Flushes)
}

func TestOpenDevice(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{"file", "goose"} {
		image := filepath.Join(dir, backend+".img")
		dev, err := openDevice(backend, image, testBlocks)
		require.NoError(t, err, backend)
		assert.Equal(t, uint64(testBlocks*blockcache.SectorsPerBlock), dev.NumSectors(), backend)

		fs := newTestFs(t, dev)
		f := NewDiskmapFile(fs)
		_, status := f.Write([]byte("persist"), blockcache.BlockSize)
		require.Equal(t, fuse.OK, status)
		require.Equal(t, fuse.OK, f.Fsync(0))
		require.NoError(t, dev.(closer).Close())

		dev, err = openDevice(backend, image, 0)
		require.NoError(t, err, backend)
		got := make([]byte, blockcache.BlockSize)
		require.NoError(t, dev.ReadSectors(2*blockcache.SectorsPerBlock, got, blockcache.SectorsPerBlock))
		assert.True(t, bytes.HasPrefix(got, []byte("persist")), backend)
		require.NoError(t, dev.(closer).Close())
	}

	_, err := openDevice("mem", "", 0)
	assert.Error(t, err)
	dev, err := openDevice("mem", "", testBlocks)
	require.NoError(t, err)
	assert.Equal(t, uint64(testBlocks*blockcache.SectorsPerBlock), dev.NumSectors())
	_, err = openDevice("tape", "", testBlocks)
	assert.Error(t, err)
}
