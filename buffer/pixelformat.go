package buffer

// PixelFormat is an opaque 32-bit identifier encoding bits-per-pixel in
// bits 16..23 and a vendor-defined pixel layout in the low bits, per the
// GenICam PFNC (Pixel Format Naming Convention) layout. Decoding the bpp
// field is required to size receive buffers for a declared width/height.
//
// Layout mirrors the bit-packing idiom used throughout the teacher's
// ioctl command encoding (shift/mask into fixed field positions), applied
// here to a pixel-format word instead of an ioctl opcode.
type PixelFormat uint32

const (
	bppShift = 16
	bppMask  = 0xFF
)

// Well-known monochrome and color formats exercised by tests and the
// chunk/buffer sizing logic. Values follow the GigE Vision PFNC table.
const (
	PixelFormatMono8    PixelFormat = 0x01080001
	PixelFormatMono10   PixelFormat = 0x01100003
	PixelFormatMono12   PixelFormat = 0x01100005
	PixelFormatMono16   PixelFormat = 0x01100007
	PixelFormatRGB8     PixelFormat = 0x02180014
	PixelFormatBGR8     PixelFormat = 0x02180015
	PixelFormatYUV422_8 PixelFormat = 0x02100032
	PixelFormatBayerRG8 PixelFormat = 0x0108000B
)

// BitsPerPixel extracts the encoded bpp field from bits 16..23.
func (p PixelFormat) BitsPerPixel() int {
	return int((uint32(p) >> bppShift) & bppMask)
}

// BytesPerPixel rounds BitsPerPixel up to a whole byte count; zero for
// sub-byte-aligned formats only if bpp is itself zero (which marks an
// unset/unknown format).
func (p PixelFormat) BytesPerPixel() int {
	bpp := p.BitsPerPixel()
	return (bpp + 7) / 8
}

// FrameSize computes the minimum buffer size, in bytes, required to hold
// one uncompressed frame of the given dimensions in this pixel format.
// Compressed payload types (JPEG, H264, ...) do not use this calculation;
// callers size those buffers from the device-reported PayloadSize instead.
func (p PixelFormat) FrameSize(width, height uint32) int {
	return int(width) * int(height) * p.BytesPerPixel()
}

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatMono8:
		return "Mono8"
	case PixelFormatMono10:
		return "Mono10"
	case PixelFormatMono12:
		return "Mono12"
	case PixelFormatMono16:
		return "Mono16"
	case PixelFormatRGB8:
		return "RGB8"
	case PixelFormatBGR8:
		return "BGR8"
	case PixelFormatYUV422_8:
		return "YUV422_8"
	case PixelFormatBayerRG8:
		return "BayerRG8"
	default:
		return "Unknown"
	}
}
