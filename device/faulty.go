package device

// FaultyDevice wraps a device, counting transfers and failing them with
// ReadErr or WriteErr when those are set.
type FaultyDevice struct {
	Device

	ReadErr  error
	WriteErr error

	Reads  int
	Writes int
}

func NewFaultyDevice(d Device) *FaultyDevice {
	return &FaultyDevice{Device: d}
}

func (f *FaultyDevice) ReadSectors(sector uint64, buf []byte, count int) error {
	f.Reads++
	if f.ReadErr != nil {
		return f.ReadErr
	}
	return f.Device.ReadSectors(sector, buf, count)
}

func (f *FaultyDevice) WriteSectors(sector uint64, buf []byte, count int) error {
	f.Writes++
	if f.WriteErr != nil {
		return f.WriteErr
	}
	return f.Device.WriteSectors(sector, buf, count)
}
