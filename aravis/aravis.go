// Package aravis implements the top-level discovery façade of spec.md
// §4.6: one Interface per transport protocol, each maintaining an
// ordered DeviceId list and able to open_device by id. System fans
// UpdateDeviceList out across every enabled Interface.
//
// Grounded on the teacher's device.Open(path, ...Option) entry point
// (device/device.go), generalized from "one path, one backend" to
// "one interface per protocol, each enumerating zero or more ids".
package aravis

import (
	"context"
	"fmt"
	"sync"

	"github.com/aravis-go/aravis/device"
)

// DeviceId identifies one discovered device without opening it
// (spec.md §4.6).
type DeviceId struct {
	ID               string
	Physical         string // protocol-specific physical locator (MAC, bus path, ...)
	Address           string // e.g. IP address for GigE
	Vendor           string
	Model            string
	Serial           string
	ManufacturerInfo string
}

// Interface is a protocol-specific device-discovery factory. Each
// supported protocol (GigE, U3V, Fake, GenTL, V4l2) implements one,
// enabled independently (spec.md §4.6).
type Interface interface {
	// Protocol names this interface's transport, e.g. "GigE", "U3V",
	// "Fake".
	Protocol() string

	// UpdateDeviceList refreshes the interface's device list by
	// probing the transport (a GVCP broadcast discovery, a USB bus
	// scan, or a no-op for a static registry like Fake).
	UpdateDeviceList(ctx context.Context) error

	// DeviceIds returns the most recent list populated by
	// UpdateDeviceList, in a stable order.
	DeviceIds() []DeviceId

	// OpenDevice opens the device with the given id.
	OpenDevice(ctx context.Context, id string) (device.Device, error)
}

// System fans discovery and open_device out across every registered
// Interface, matching the teacher's single-entry-point-with-pluggable-
// backends shape but for protocols instead of a single V4L2 path.
type System struct {
	mu    sync.RWMutex
	ifces map[string]Interface
}

// NewSystem returns a System with no interfaces registered.
func NewSystem() *System {
	return &System{ifces: make(map[string]Interface)}
}

// Register adds an Interface, keyed by its Protocol() name. Registering
// a protocol twice replaces the previous registration.
func (s *System) Register(ifc Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ifces[ifc.Protocol()] = ifc
}

// Interfaces returns every registered Interface.
func (s *System) Interfaces() []Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Interface, 0, len(s.ifces))
	for _, ifc := range s.ifces {
		out = append(out, ifc)
	}
	return out
}

// UpdateDeviceList refreshes every registered Interface's device list.
// The first error encountered is returned, but every interface is
// still given a chance to refresh (one unresponsive protocol must not
// hide devices found on another, spec.md §4.6).
func (s *System) UpdateDeviceList(ctx context.Context) error {
	var firstErr error
	for _, ifc := range s.Interfaces() {
		if err := ifc.UpdateDeviceList(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("aravis: %s: %w", ifc.Protocol(), err)
		}
	}
	return firstErr
}

// DeviceIds returns every DeviceId across all registered interfaces.
func (s *System) DeviceIds() []DeviceId {
	var out []DeviceId
	for _, ifc := range s.Interfaces() {
		out = append(out, ifc.DeviceIds()...)
	}
	return out
}

// OpenDevice opens the device with the given id, searching every
// registered interface's current list.
func (s *System) OpenDevice(ctx context.Context, id string) (device.Device, error) {
	for _, ifc := range s.Interfaces() {
		for _, d := range ifc.DeviceIds() {
			if d.ID == id {
				return ifc.OpenDevice(ctx, id)
			}
		}
	}
	return nil, fmt.Errorf("aravis: device %q not found", id)
}
