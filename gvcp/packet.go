// Package gvcp implements the GigE Vision Control Protocol: request/ack
// framing over a datagram transport.Transport, retries, pending-ack
// timeout extension, heartbeats, and discovery (spec.md §4.2, §6.1,
// §6.4). Wire layout and constants are grounded on
// original_source/arvgvcpprivate.h (ArvGvcpHeader, ArvGvcpCommand,
// ArvGvcpError) and original_source/arvgvcp.c (packet builders); the
// byte-offset style itself is grounded on the teacher's v4l2 ioctl
// structs, carried forward with plain encoding/binary since GVCP is a
// network wire format rather than a kernel ABI.
package gvcp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of a GVCP header, in bytes.
const HeaderSize = 8

// PacketType is the first byte of a GVCP header.
type PacketType uint8

const (
	PacketTypeAck          PacketType = 0x00
	PacketTypeCmd          PacketType = 0x42
	PacketTypeError        PacketType = 0x80
	PacketTypeUnknownError PacketType = 0x8f
)

// Flags is the second byte of a GVCP header.
type Flags uint8

const (
	FlagNone               Flags = 0x00
	FlagAckRequired        Flags = 0x01
	FlagExtendedIDs        Flags = 0x10
	FlagAllowBroadcastAck  Flags = 0x10 // same bit position, discovery-specific meaning
)

// Command identifies the GVCP command/ack pair carried in a header.
type Command uint16

const (
	CommandDiscoveryCmd     Command = 0x0002
	CommandDiscoveryAck     Command = 0x0003
	CommandByeCmd           Command = 0x0004
	CommandByeAck           Command = 0x0005
	CommandPacketResendCmd  Command = 0x0040
	CommandPacketResendAck  Command = 0x0041
	CommandReadRegisterCmd  Command = 0x0080
	CommandReadRegisterAck  Command = 0x0081
	CommandWriteRegisterCmd Command = 0x0082
	CommandWriteRegisterAck Command = 0x0083
	CommandReadMemoryCmd    Command = 0x0084
	CommandReadMemoryAck    Command = 0x0085
	CommandWriteMemoryCmd   Command = 0x0086
	CommandWriteMemoryAck   Command = 0x0087
	CommandPendingAck       Command = 0x0089
)

// Status is the GVCP status code carried in the first two payload
// bytes of an error ack (spec.md §7 GVCP error taxonomy).
type Status uint16

const (
	StatusSuccess                   Status = 0x0000
	StatusNotImplemented             Status = 0x0001
	StatusInvalidParameter           Status = 0x0002
	StatusInvalidAddress             Status = 0x0003
	StatusWriteProtect                Status = 0x0004
	StatusBadAlignment                Status = 0x0005
	StatusAccessDenied                Status = 0x0006
	StatusBusy                        Status = 0x0007
	StatusLocalProblem                Status = 0x0008
	StatusMessageMismatch             Status = 0x0009
	StatusInvalidProtocol             Status = 0x000a
	StatusNoMessage                   Status = 0x000b
	StatusPacketUnavailable           Status = 0x000c
	StatusDataOverrun                 Status = 0x000d
	StatusInvalidHeader               Status = 0x000e
	StatusWrongConfig                 Status = 0x000f
	StatusGeneric                     Status = 0x00ff
)

func (s Status) Error() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotImplemented:
		return "not implemented"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusInvalidAddress:
		return "invalid address"
	case StatusWriteProtect:
		return "write protect"
	case StatusBadAlignment:
		return "bad alignment"
	case StatusAccessDenied:
		return "access denied"
	case StatusBusy:
		return "busy"
	case StatusLocalProblem:
		return "local problem"
	case StatusMessageMismatch:
		return "message mismatch"
	case StatusInvalidProtocol:
		return "invalid protocol"
	case StatusNoMessage:
		return "no message"
	case StatusPacketUnavailable:
		return "packet unavailable"
	case StatusDataOverrun:
		return "data overrun"
	case StatusInvalidHeader:
		return "invalid header"
	case StatusWrongConfig:
		return "wrong config"
	default:
		return fmt.Sprintf("gvcp status 0x%02x", uint16(s))
	}
}

// ErrProtocol wraps a non-success Status returned by a device ack.
var ErrProtocol = errors.New("gvcp: protocol error")

// Header is the 8-byte GVCP frame header (spec.md §4.2), always
// big-endian on the wire.
type Header struct {
	Type    PacketType
	Flags   Flags
	Command Command
	Size    uint16
	ID      uint16
}

// Marshal encodes h into an 8-byte big-endian buffer.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Flags)
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Command))
	binary.BigEndian.PutUint16(buf[4:6], h.Size)
	binary.BigEndian.PutUint16(buf[6:8], h.ID)
	return buf
}

// UnmarshalHeader decodes an 8-byte GVCP header.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("gvcp: short header (%d bytes)", len(buf))
	}
	return Header{
		Type:    PacketType(buf[0]),
		Flags:   Flags(buf[1]),
		Command: Command(binary.BigEndian.Uint16(buf[2:4])),
		Size:    binary.BigEndian.Uint16(buf[4:6]),
		ID:      binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}

// Packet is a full GVCP frame: header plus payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// Marshal encodes the packet as header || payload.
func (p Packet) Marshal() []byte {
	h := p.Header
	h.Size = uint16(len(p.Payload))
	buf := h.Marshal()
	return append(buf, p.Payload...)
}

// UnmarshalPacket decodes a full GVCP frame.
func UnmarshalPacket(buf []byte) (Packet, error) {
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return Packet{}, err
	}
	rest := buf[HeaderSize:]
	if int(h.Size) > len(rest) {
		return Packet{}, fmt.Errorf("gvcp: declared size %d exceeds received %d", h.Size, len(rest))
	}
	payload := make([]byte, h.Size)
	copy(payload, rest[:h.Size])
	return Packet{Header: h, Payload: payload}, nil
}

// discoveryDataSize is ARV_GVBS_DISCOVERY_DATA_SIZE: the fixed payload
// size of a discovery ack, carrying the bootstrap register block every
// device exposes at a fixed offset (manufacturer/model/serial/etc).
const discoveryDataSize = 0xf8

// Bootstrap register field offsets and sizes within the discovery ack
// payload, carried verbatim from arvgvcpprivate.h's ARV_GVBS_* layout
// (spec.md §6.4).
const (
	offsetManufacturerName = 0x48 - 0x08
	sizeManufacturerName   = 32
	offsetModelName        = 0x68 - 0x08
	sizeModelName          = 32
	offsetDeviceVersion    = 0x88 - 0x08
	sizeDeviceVersion      = 32
	offsetSerialNumber     = 0xd8 - 0x08
	sizeSerialNumber       = 16
	offsetUserDefinedName  = 0xe8 - 0x08
	sizeUserDefinedName    = 16
)

// NewDiscoveryCmd builds the fixed discovery command packet: no
// payload, id 0xffff (the reserved discovery id, exempt from P1's
// monotonicity rule since it is broadcast and never sequenced).
func NewDiscoveryCmd(allowBroadcastAck bool) Packet {
	flags := FlagAckRequired
	if allowBroadcastAck {
		flags |= FlagAllowBroadcastAck
	}
	return Packet{Header: Header{
		Type:    PacketTypeCmd,
		Flags:   flags,
		Command: CommandDiscoveryCmd,
		ID:      0xffff,
	}}
}
