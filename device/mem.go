package device

// A simple in-memory device
type MemDevice struct {
	storage []byte
}

func NewMemDevice(nsectors uint64) *MemDevice {
	return &MemDevice{
		storage: make([]byte, nsectors*SectorSize),
	}
}

func (m *MemDevice) ReadSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, m.NumSectors()); err != nil {
		return err
	}
	off := sector * SectorSize
	copy(buf[:count*SectorSize], m.storage[off:])
	return nil
}

func (m *MemDevice) WriteSectors(sector uint64, buf []byte, count int) error {
	if err := checkTransfer(sector, len(buf), count, m.NumSectors()); err != nil {
		return err
	}
	off := sector * SectorSize
	copy(m.storage[off:], buf[:count*SectorSize])
	return nil
}

func (m *MemDevice) NumSectors() uint64 {
	return uint64(len(m.storage)) / SectorSize
}

// Bytes returns a copy of the raw device contents.
func (m *MemDevice) Bytes() []byte {
	res := make([]byte, len(m.storage))
	copy(res, m.storage)
	return res
}
