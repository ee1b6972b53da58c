package buffer

// Part describes one logical region inside a Buffer's data. Single-part
// image payloads still populate exactly one Part; multi-component (3D,
// multi-planar, multipart) payloads populate one Part per component.
type Part struct {
	// DataOffset is the byte offset of this part's data within the
	// owning Buffer's Data slice.
	DataOffset int
	// Size is the number of bytes this part occupies.
	Size int
	// ComponentID identifies which logical component (e.g. intensity,
	// range, confidence) this part carries, as declared by the device.
	ComponentID uint32
	// DataType further qualifies the component's encoding, device
	// specific (e.g. 3D coordinate format); opaque to this package.
	DataType uint32
	// PixelFormat is the part's pixel layout, for image-bearing parts.
	PixelFormat PixelFormat
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	XPadding    uint32
	YPadding    uint32
}

// Bytes returns the slice of data this part occupies within buf.
func (p Part) Bytes(data []byte) []byte {
	if p.DataOffset < 0 || p.Size < 0 || p.DataOffset+p.Size > len(data) {
		return nil
	}
	return data[p.DataOffset : p.DataOffset+p.Size]
}
