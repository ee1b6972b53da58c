// Package device implements the three physical-layer backends that
// satisfy genicam.Port and expose bootstrap register access: GigE
// (GVCP over a datagram transport), U3V (control bytestream over a
// bulk transport), and Fake (an in-memory register file for tests and
// the discovery demo in spec.md §8 scenario 1).
//
// Grounded on the teacher's device.Device, which owns one fd and
// exposes typed accessors over it (device/device.go); generalized here
// to own a control-channel client instead of an fd, with three
// implementations of the same contract instead of one V4L2 type.
package device

import (
	"context"
	"fmt"

	"github.com/aravis-go/aravis/genicam"
)

// Identity is the bootstrap manufacturer/model/serial block every
// device exposes at a fixed register offset (spec.md §6.4), read once
// at Open time.
type Identity struct {
	Manufacturer    string
	Model           string
	DeviceVersion   string
	Serial          string
	UserDefinedName string
}

// Device is the physical-layer contract: register/memory access plus
// identity and lifecycle. It satisfies genicam.Port directly, so a
// genicam.Document can be bound to an open Device without an adapter.
type Device interface {
	genicam.Port

	// ReadRegister and WriteRegister perform narrow 32-bit register
	// access; some backends (GigE) route these through dedicated wire
	// commands distinct from the generic memory path.
	ReadRegister(ctx context.Context, address uint64) (uint32, error)
	WriteRegister(ctx context.Context, address uint64, value uint32) error

	// Identity returns the bootstrap identity block captured at Open.
	Identity() Identity

	// XMLURL returns the device's first advertised GenICam XML
	// location (a local file:, http:, or GenTL-resident pseudo-URL;
	// spec.md §6.4 ARV_GVBS_FIRST_XML_URL).
	XMLURL() string

	// Close releases the underlying transport and stops any
	// background goroutines (heartbeat, event listener).
	Close() error
}

// Bootstrap register offsets and sizes, carried verbatim from
// original_source/arvgvcpprivate.h's ARV_GVBS_* layout (spec.md §6.4).
// GVCP and U3V bootstrap register blocks share this layout; U3V simply
// reaches it over its own control endpoint instead of GVCP memory
// commands.
const (
	RegVersion                 = 0x00000000
	RegDeviceMode               = 0x00000004
	RegCurrentIPAddress         = 0x00000024
	RegManufacturerName         = 0x00000048
	RegManufacturerNameSize     = 32
	RegModelName                = 0x00000068
	RegModelNameSize            = 32
	RegDeviceVersion            = 0x00000088
	RegDeviceVersionSize        = 32
	RegManufacturerInfo         = 0x000000a8
	RegManufacturerInfoSize     = 48
	RegSerialNumber             = 0x000000d8
	RegSerialNumberSize         = 16
	RegUserDefinedName          = 0x000000e8
	RegUserDefinedNameSize      = 16
	RegFirstXMLURL              = 0x00000200
	RegSecondXMLURL              = 0x00000400
	RegXMLURLSize                = 512
	RegNMessageChannels          = 0x00000900
	RegNStreamChannels           = 0x00000904
	RegGVCPCapability            = 0x00000934
	RegControlChannelPrivilege   = 0x00000a00
	RegFirstStreamChannelPort    = 0x00000d00
	RegFirstStreamChannelPacketSize = 0x00000d04
	RegFirstStreamChannelIPAddr  = 0x00000d18
)

func readIdentityBlock(ctx context.Context, d Device) (Identity, error) {
	read := func(addr uint64, size int) (string, error) {
		raw, err := d.ReadMemory(ctx, addr, uint32(size))
		if err != nil {
			return "", err
		}
		return cstring(raw), nil
	}

	manufacturer, err := read(RegManufacturerName, RegManufacturerNameSize)
	if err != nil {
		return Identity{}, fmt.Errorf("device: read manufacturer: %w", err)
	}
	model, err := read(RegModelName, RegModelNameSize)
	if err != nil {
		return Identity{}, fmt.Errorf("device: read model: %w", err)
	}
	version, err := read(RegDeviceVersion, RegDeviceVersionSize)
	if err != nil {
		return Identity{}, fmt.Errorf("device: read version: %w", err)
	}
	serial, err := read(RegSerialNumber, RegSerialNumberSize)
	if err != nil {
		return Identity{}, fmt.Errorf("device: read serial: %w", err)
	}
	userName, err := read(RegUserDefinedName, RegUserDefinedNameSize)
	if err != nil {
		return Identity{}, fmt.Errorf("device: read user-defined name: %w", err)
	}
	return Identity{
		Manufacturer:    manufacturer,
		Model:           model,
		DeviceVersion:   version,
		Serial:          serial,
		UserDefinedName: userName,
	}, nil
}

func readXMLURL(ctx context.Context, d Device) (string, error) {
	raw, err := d.ReadMemory(ctx, RegFirstXMLURL, RegXMLURLSize)
	if err != nil {
		return "", fmt.Errorf("device: read xml url: %w", err)
	}
	return cstring(raw), nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
