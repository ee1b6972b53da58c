// Package gvsp implements the GigE Vision Streaming Protocol: packet
// header parsing and the frame reassembly state machine that turns a
// continuous stream of UDP datagrams into completed buffer.Buffers
// (spec.md §4.3, §6.2).
package gvsp

import (
	"encoding/binary"
	"fmt"
)

// ContentType identifies what a GVSP packet carries. Values for LEADER,
// PAYLOAD and TRAILER are fixed by spec.md §4.3; MULTIPART is
// assigned our own distinct byte code since the spec only prescribes its
// existence, not its wire value, and no pack example carries a GVSP
// parser to ground it on.
//
// MULTIZONE, H264, GENDC and ALL_IN are named by spec.md §4.3 but have no
// SPEC_FULL.md component that consumes them: none of BufferPart's fields
// were designed around zone/codec/GenDC-specific layout, and ALL_IN's
// "leader+payload+trailer in one" framing has no prescribed internal
// sub-layout to parse against. They are out of scope — see SPEC_FULL.md
// §5 — and are not represented here; only a content type this package
// can actually decode gets a constant.
type ContentType uint8

const (
	ContentTypeLeader    ContentType = 0x01
	ContentTypeTrailer   ContentType = 0x02
	ContentTypePayload   ContentType = 0x03
	ContentTypeMultipart ContentType = 0x05
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeLeader:
		return "LEADER"
	case ContentTypeTrailer:
		return "TRAILER"
	case ContentTypePayload:
		return "PAYLOAD"
	case ContentTypeMultipart:
		return "MULTIPART"
	default:
		return fmt.Sprintf("ContentType(0x%02x)", uint8(c))
	}
}

// packetIDMask is the 24-bit wraparound space for non-extended packet
// ids (spec.md §4.3 "Packet-id wraparound").
const packetIDMask = 0x00ffffff

// HeaderSize is the fixed size of a standard (non-extended) GVSP
// packet header.
const HeaderSize = 8

// HeaderSizeExtended is the size of a GVSP header with extended ids
// (64-bit frame id, 32-bit packet id).
const HeaderSizeExtended = 20

// Header is a decoded GVSP packet header, normalized across the
// standard and extended wire layouts.
type Header struct {
	Status      uint16
	FrameID     uint64
	ContentType ContentType
	PacketID    uint32
	Extended    bool
}

// IDSpace returns the wraparound modulus for this header's packet id
// space: 2^24 for standard ids, 2^32 for extended ids.
func (h Header) IDSpace() uint64 {
	if h.Extended {
		return 1 << 32
	}
	return 1 << 24
}

// ParseHeader decodes a GVSP packet header. extended selects the
// wire layout: standard packets are 8 bytes (status, 16-bit frame id,
// content-type-plus-24-bit-packet-id); extended packets are 20 bytes
// (status, 16-bit reserved, 64-bit frame id, content-type byte plus
// 24 reserved bits, 32-bit packet id) per spec.md §4.3.
func ParseHeader(buf []byte, extended bool) (Header, int, error) {
	if !extended {
		if len(buf) < HeaderSize {
			return Header{}, 0, fmt.Errorf("gvsp: short header (%d bytes)", len(buf))
		}
		status := binary.BigEndian.Uint16(buf[0:2])
		frameID := binary.BigEndian.Uint16(buf[2:4])
		infos := binary.BigEndian.Uint32(buf[4:8])
		return Header{
			Status:      status,
			FrameID:     uint64(frameID),
			ContentType: ContentType(infos >> 24),
			PacketID:    infos & packetIDMask,
			Extended:    false,
		}, HeaderSize, nil
	}

	if len(buf) < HeaderSizeExtended {
		return Header{}, 0, fmt.Errorf("gvsp: short extended header (%d bytes)", len(buf))
	}
	status := binary.BigEndian.Uint16(buf[0:2])
	frameID := binary.BigEndian.Uint64(buf[4:12])
	contentType := ContentType(buf[12])
	packetID := binary.BigEndian.Uint32(buf[16:20])
	return Header{
		Status:      status,
		FrameID:     frameID,
		ContentType: contentType,
		PacketID:    packetID,
		Extended:    true,
	}, HeaderSizeExtended, nil
}

// MarshalHeader encodes h back to wire bytes, used by tests and the
// Fake device's synthetic stream source.
func MarshalHeader(h Header) []byte {
	if !h.Extended {
		buf := make([]byte, HeaderSize)
		binary.BigEndian.PutUint16(buf[0:2], h.Status)
		binary.BigEndian.PutUint16(buf[2:4], uint16(h.FrameID))
		infos := uint32(h.ContentType)<<24 | (h.PacketID & packetIDMask)
		binary.BigEndian.PutUint32(buf[4:8], infos)
		return buf
	}
	buf := make([]byte, HeaderSizeExtended)
	binary.BigEndian.PutUint16(buf[0:2], h.Status)
	binary.BigEndian.PutUint64(buf[4:12], h.FrameID)
	buf[12] = byte(h.ContentType)
	binary.BigEndian.PutUint32(buf[16:20], h.PacketID)
	return buf
}

// LeaderPayload is the parsed body of a LEADER packet (spec.md §4.3
// point 1): payload type, device timestamp, and dimensions for
// image/multipart payloads.
type LeaderPayload struct {
	PayloadType uint16
	TimestampNS uint64
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	// Parts is populated for PayloadMultipart leaders: one descriptor
	// per component, in the order the device will interleave MULTIPART
	// packets carrying them (spec.md §4.3 "MULTIPART (carries part id +
	// byte offset)"). Empty for single-part payloads.
	Parts []PartDescriptor
}

// PartDescriptor is one component's geometry as declared by a
// multipart LEADER, mirroring buffer.Part's image-metadata fields.
type PartDescriptor struct {
	ComponentID uint32
	DataType    uint32
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	Size        uint32 // declared byte length of this part's payload
}

const partDescriptorSize = 32

// ParseLeaderPayload decodes a LEADER packet's payload. Fields beyond
// PayloadType/TimestampNS are only meaningful for image/multipart
// payload types and are zero otherwise. If the payload carries a
// trailing part-count plus per-part descriptors (spec.md §4.3 MULTIPART
// point), Parts is populated; a PayloadMultipart leader with no part
// descriptors, or a truncated descriptor table, is left with Parts nil
// and the caller (gvsp.Reassembler) treats the frame as unsupported.
func ParseLeaderPayload(buf []byte) (LeaderPayload, error) {
	if len(buf) < 10 {
		return LeaderPayload{}, fmt.Errorf("gvsp: leader payload too short (%d bytes)", len(buf))
	}
	lp := LeaderPayload{
		PayloadType: binary.BigEndian.Uint16(buf[0:2]),
		TimestampNS: binary.BigEndian.Uint64(buf[2:10]),
	}
	if len(buf) >= 30 {
		lp.PixelFormat = binary.BigEndian.Uint32(buf[10:14])
		lp.Width = binary.BigEndian.Uint32(buf[14:18])
		lp.Height = binary.BigEndian.Uint32(buf[18:22])
		lp.XOffset = binary.BigEndian.Uint32(buf[22:26])
		lp.YOffset = binary.BigEndian.Uint32(buf[26:30])
	}
	if len(buf) >= 32 {
		partCount := int(binary.BigEndian.Uint16(buf[30:32]))
		want := 32 + partCount*partDescriptorSize
		if partCount > 0 && len(buf) >= want {
			lp.Parts = make([]PartDescriptor, partCount)
			for i := 0; i < partCount; i++ {
				d := buf[32+i*partDescriptorSize : 32+(i+1)*partDescriptorSize]
				lp.Parts[i] = PartDescriptor{
					ComponentID: binary.BigEndian.Uint32(d[0:4]),
					DataType:    binary.BigEndian.Uint32(d[4:8]),
					PixelFormat: binary.BigEndian.Uint32(d[8:12]),
					Width:       binary.BigEndian.Uint32(d[12:16]),
					Height:      binary.BigEndian.Uint32(d[16:20]),
					XOffset:     binary.BigEndian.Uint32(d[20:24]),
					YOffset:     binary.BigEndian.Uint32(d[24:28]),
					Size:        binary.BigEndian.Uint32(d[28:32]),
				}
			}
		}
	}
	return lp, nil
}

// MarshalLeaderPayload encodes a LeaderPayload, used by the Fake
// device's synthetic stream source and tests.
func MarshalLeaderPayload(lp LeaderPayload) []byte {
	buf := make([]byte, 30)
	binary.BigEndian.PutUint16(buf[0:2], lp.PayloadType)
	binary.BigEndian.PutUint64(buf[2:10], lp.TimestampNS)
	binary.BigEndian.PutUint32(buf[10:14], lp.PixelFormat)
	binary.BigEndian.PutUint32(buf[14:18], lp.Width)
	binary.BigEndian.PutUint32(buf[18:22], lp.Height)
	binary.BigEndian.PutUint32(buf[22:26], lp.XOffset)
	binary.BigEndian.PutUint32(buf[26:30], lp.YOffset)
	if len(lp.Parts) == 0 {
		return buf
	}
	buf = append(buf, make([]byte, 2+len(lp.Parts)*partDescriptorSize)...)
	binary.BigEndian.PutUint16(buf[30:32], uint16(len(lp.Parts)))
	for i, pd := range lp.Parts {
		d := buf[32+i*partDescriptorSize : 32+(i+1)*partDescriptorSize]
		binary.BigEndian.PutUint32(d[0:4], pd.ComponentID)
		binary.BigEndian.PutUint32(d[4:8], pd.DataType)
		binary.BigEndian.PutUint32(d[8:12], pd.PixelFormat)
		binary.BigEndian.PutUint32(d[12:16], pd.Width)
		binary.BigEndian.PutUint32(d[16:20], pd.Height)
		binary.BigEndian.PutUint32(d[20:24], pd.XOffset)
		binary.BigEndian.PutUint32(d[24:28], pd.YOffset)
		binary.BigEndian.PutUint32(d[28:32], pd.Size)
	}
	return buf
}

// MultipartHeader is the part id + byte offset prefix carried by every
// MULTIPART packet (spec.md §4.3), identifying which component the
// packet's remaining bytes belong to and where inside that component's
// region they land.
type MultipartHeader struct {
	PartID     uint32
	ByteOffset uint64
}

// MultipartHeaderSize is the fixed size of a MultipartHeader.
const MultipartHeaderSize = 12

// ParseMultipartHeader decodes the part id/byte offset prefix of a
// MULTIPART packet's payload, returning the header and the byte offset
// within buf where the component's data begins.
func ParseMultipartHeader(buf []byte) (MultipartHeader, int, error) {
	if len(buf) < MultipartHeaderSize {
		return MultipartHeader{}, 0, fmt.Errorf("gvsp: short multipart header (%d bytes)", len(buf))
	}
	return MultipartHeader{
		PartID:     binary.BigEndian.Uint32(buf[0:4]),
		ByteOffset: binary.BigEndian.Uint64(buf[4:12]),
	}, MultipartHeaderSize, nil
}

// MarshalMultipartHeader encodes h, used by tests and the Fake device's
// synthetic multipart stream source.
func MarshalMultipartHeader(h MultipartHeader) []byte {
	buf := make([]byte, MultipartHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.PartID)
	binary.BigEndian.PutUint64(buf[4:12], h.ByteOffset)
	return buf
}

// TrailerPayload is the parsed body of a TRAILER packet: the final
// height (for payload types where it may differ from the leader's
// declared height, e.g. partial-frame delivery).
type TrailerPayload struct {
	FinalHeight uint32
}

func ParseTrailerPayload(buf []byte) (TrailerPayload, error) {
	if len(buf) < 4 {
		return TrailerPayload{}, fmt.Errorf("gvsp: trailer payload too short (%d bytes)", len(buf))
	}
	return TrailerPayload{FinalHeight: binary.BigEndian.Uint32(buf[0:4])}, nil
}

func MarshalTrailerPayload(tp TrailerPayload) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf[0:4], tp.FinalHeight)
	return buf
}
