package device

import (
	"bytes"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"
)

func randomSliceFix(length int) []byte {
	res := make([]byte, length)
	for k := range res {
		res[k] = byte(rand.Intn(0xFF))
	}
	return res
}

// exerciseDevice runs the same read/write checks against any device with at
// least 24 sectors.
func exerciseDevice(t *testing.T, d Device) {
	require.GreaterOrEqual(t, d.NumSectors(), uint64(24))

	const Rewrite = 4
	for i := 0; i < Rewrite; i++ {
		sector := uint64(rand.Intn(int(d.NumSectors()) - 9))
		blk := randomSliceFix(9 * SectorSize)
		require.NoError(t, d.WriteSectors(sector, blk, 9))

		got := make([]byte, 9*SectorSize)
		require.NoError(t, d.ReadSectors(sector, got, 9))
		if !bytes.Equal(blk, got) {
			t.Errorf("sectors %d+9 got wrong data at cycle %d", sector, i)
		}
	}

	// Neighbouring sectors are untouched by a single-sector write.
	before := make([]byte, 3*SectorSize)
	require.NoError(t, d.ReadSectors(8, before, 3))
	one := bytes.Repeat([]byte{0x5A}, SectorSize)
	require.NoError(t, d.WriteSectors(9, one, 1))
	after := make([]byte, 3*SectorSize)
	require.NoError(t, d.ReadSectors(8, after, 3))
	assert.Equal(t, before[:SectorSize], after[:SectorSize])
	assert.Equal(t, one, after[SectorSize:2*SectorSize])
	assert.Equal(t, before[2*SectorSize:], after[2*SectorSize:])

	n := d.NumSectors()
	buf := make([]byte, 2*SectorSize)
	assert.ErrorIs(t, d.ReadSectors(n-1, buf, 2), ErrOutOfRange)
	assert.ErrorIs(t, d.WriteSectors(n, buf, 1), ErrOutOfRange)
	assert.ErrorIs(t, d.ReadSectors(0, buf, 3), ErrShortBuffer)
	assert.NoError(t, d.ReadSectors(n-2, buf, 2))
}

func TestMemDevice(t *testing.T) {
	d := NewMemDevice(32)
	assert.Equal(t, uint64(32), d.NumSectors())
	exerciseDevice(t, d)
	assert.Len(t, d.Bytes(), 32*SectorSize)
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := CreateFileDevice(path, 32)
	require.NoError(t, err)
	exerciseDevice(t, d)

	pattern := bytes.Repeat([]byte("diskmap!"), SectorSize/8)
	require.NoError(t, d.WriteSectors(3, pattern, 1))
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	d, err = OpenFileDevice(path)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(32), d.NumSectors())
	got := make([]byte, SectorSize)
	require.NoError(t, d.ReadSectors(3, got, 1))
	assert.Equal(t, pattern, got)
}

func TestOpenFileDeviceBadGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.img")
	d, err := CreateFileDevice(path, 1)
	require.NoError(t, err)
	require.NoError(t, d.file.Truncate(SectorSize+3))
	require.NoError(t, d.Close())

	_, err = OpenFileDevice(path)
	assert.ErrorIs(t, err, ErrBadGeometry)
}

func TestGooseDevice(t *testing.T) {
	d := NewGooseDevice(disk.NewMemDisk(4))
	assert.Equal(t, uint64(4*disk.BlockSize/SectorSize), d.NumSectors())
	exerciseDevice(t, d)

	// A write spanning a goose block boundary.
	data := randomSliceFix(4 * SectorSize)
	require.NoError(t, d.WriteSectors(6, data, 4))
	got := make([]byte, 4*SectorSize)
	require.NoError(t, d.ReadSectors(6, got, 4))
	assert.Equal(t, data, got)
	assert.NoError(t, d.Sync())
}

func TestFaultyDevice(t *testing.T) {
	boom := errors.New("boom")
	d := NewFaultyDevice(NewMemDevice(8))
	buf := make([]byte, SectorSize)

	require.NoError(t, d.WriteSectors(1, buf, 1))
	require.NoError(t, d.ReadSectors(1, buf, 1))
	assert.Equal(t, 1, d.Reads)
	assert.Equal(t, 1, d.Writes)

	d.ReadErr = boom
	assert.ErrorIs(t, d.ReadSectors(1, buf, 1), boom)
	d.WriteErr = boom
	assert.ErrorIs(t, d.WriteSectors(1, buf, 1), boom)
	assert.Equal(t, 2, d.Reads)
	assert.Equal(t, 2, d.Writes)
	assert.Equal(t, uint64(8), d.NumSectors())
}
