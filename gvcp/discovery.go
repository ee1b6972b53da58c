package gvcp

import (
	"bytes"
	"fmt"
)

// DiscoveryReply is the parsed bootstrap identity block carried in a
// discovery ack payload (spec.md §4.6, §6.4), modeled on
// ArvGvcpDiscoveryPacket's fixed-offset manufacturer/model/serial
// fields (original_source/arvgvcpprivate.h).
type DiscoveryReply struct {
	Manufacturer string
	Model        string
	DeviceVersion string
	Serial       string
	UserDefinedName string
}

// ParseDiscoveryReply decodes a discovery ack's payload. The payload
// must be at least discoveryDataSize bytes, matching what a real
// device always sends for this command.
func ParseDiscoveryReply(payload []byte) (DiscoveryReply, error) {
	if len(payload) < discoveryDataSize {
		return DiscoveryReply{}, fmt.Errorf("gvcp: discovery payload too short (%d bytes, want %d)", len(payload), discoveryDataSize)
	}
	return DiscoveryReply{
		Manufacturer:    cstring(payload[offsetManufacturerName : offsetManufacturerName+sizeManufacturerName]),
		Model:           cstring(payload[offsetModelName : offsetModelName+sizeModelName]),
		DeviceVersion:   cstring(payload[offsetDeviceVersion : offsetDeviceVersion+sizeDeviceVersion]),
		Serial:          cstring(payload[offsetSerialNumber : offsetSerialNumber+sizeSerialNumber]),
		UserDefinedName: cstring(payload[offsetUserDefinedName : offsetUserDefinedName+sizeUserDefinedName]),
	}, nil
}

// MarshalDiscoveryReply encodes a DiscoveryReply back into a
// discoveryDataSize payload, used by the Fake device backend to answer
// discovery commands without a real bootstrap register block.
func MarshalDiscoveryReply(r DiscoveryReply) []byte {
	buf := make([]byte, discoveryDataSize)
	putCString(buf[offsetManufacturerName:offsetManufacturerName+sizeManufacturerName], r.Manufacturer)
	putCString(buf[offsetModelName:offsetModelName+sizeModelName], r.Model)
	putCString(buf[offsetDeviceVersion:offsetDeviceVersion+sizeDeviceVersion], r.DeviceVersion)
	putCString(buf[offsetSerialNumber:offsetSerialNumber+sizeSerialNumber], r.Serial)
	putCString(buf[offsetUserDefinedName:offsetUserDefinedName+sizeUserDefinedName], r.UserDefinedName)
	return buf
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
