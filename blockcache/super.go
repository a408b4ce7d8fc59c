package blockcache

import (
	"encoding/binary"
	"fmt"

	"github.com/Yarobey/diskmap/device"
)

const (
	FSMagic = 0x4A0530AE

	// SuperBlock is the block holding the superblock.
	SuperBlock BlockNo = 1

	superSize = 8
)

// Super is the on-disk superblock: little-endian magic at offset 0 and the
// total block count at offset 4.
type Super struct {
	Magic   uint32
	NBlocks uint32
}

func DecodeSuper(b []byte) (*Super, error) {
	if len(b) < superSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSuper, len(b))
	}
	s := &Super{
		Magic:   binary.LittleEndian.Uint32(b[0:4]),
		NBlocks: binary.LittleEndian.Uint32(b[4:8]),
	}
	if s.Magic != FSMagic {
		return nil, fmt.Errorf("%w: magic %08x", ErrBadSuper, s.Magic)
	}
	if s.NBlocks <= uint32(SuperBlock) {
		return nil, fmt.Errorf("%w: %d blocks", ErrBadSuper, s.NBlocks)
	}
	return s, nil
}

func (s *Super) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], s.Magic)
	binary.LittleEndian.PutUint32(b[4:8], s.NBlocks)
}

func (s *Super) String() string {
	return fmt.Sprintf("magic %08x, %d blocks of %d bytes", s.Magic, s.NBlocks, BlockSize)
}

// Format writes a fresh superblock for nblocks blocks straight to the device.
// The rest of block 1 is zeroed; other blocks are left alone.
func Format(dev device.Device, nblocks uint32) error {
	if nblocks <= uint32(SuperBlock) {
		return fmt.Errorf("%w: %d blocks", ErrBadSuper, nblocks)
	}
	if uint64(nblocks)*SectorsPerBlock > dev.NumSectors() {
		return fmt.Errorf("%w: %d blocks do not fit in %d sectors", ErrBadSuper, nblocks, dev.NumSectors())
	}
	blk := make([]byte, BlockSize)
	s := Super{Magic: FSMagic, NBlocks: nblocks}
	s.Encode(blk)
	return dev.WriteSectors(uint64(SuperBlock)*SectorsPerBlock, blk, SectorsPerBlock)
}
