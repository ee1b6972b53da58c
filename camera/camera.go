// Package camera implements the thin façade of spec.md §2 point 6:
// "binds a device, its feature engine, and one or more streams."
// Deliberately minimal — the wide convenience wrapper over the feature
// engine (typed Width()/Height()/ExposureTime() accessors and the
// like) is an explicit Non-goal; callers reach the feature engine
// directly through Camera.Features.
package camera

import (
	"context"
	"fmt"

	"github.com/aravis-go/aravis/device"
	"github.com/aravis-go/aravis/genicam"
	"github.com/aravis-go/aravis/stream"
)

// Camera binds one open Device to its parsed feature engine and zero
// or more acquisition streams. Grounded on the teacher's Device, which
// itself plays this binding role for a single V4L2 path (device/device.go);
// split here into its own package since the spec keeps the device,
// feature-engine, and streaming concerns as three distinct subsystems
// bound together only at this one point.
type Camera struct {
	Device   device.Device
	Features *genicam.Document

	streams []*stream.Stream
}

// Open binds dev to a feature engine already built against it (doc's
// Port must be dev, or a Port that ultimately reaches it — Parse/
// NewDocument callers are responsible for that wiring since genicam
// has no knowledge of the device package, including passing a
// *device.GigE's LegacyEndianness() through genicam.WithLegacyEndianness
// when building doc).
func Open(dev device.Device, doc *genicam.Document) *Camera {
	return &Camera{Device: dev, Features: doc}
}

// AddStream attaches an acquisition stream to this camera. A camera
// may own more than one stream (spec.md §2: "one or more streams"),
// e.g. for a multi-part payload device exposing several logical
// channels.
func (c *Camera) AddStream(s *stream.Stream) {
	c.streams = append(c.streams, s)
}

// Streams returns every stream attached via AddStream, in attachment
// order.
func (c *Camera) Streams() []*stream.Stream {
	return c.streams
}

// StartAcquisition starts every attached stream's receive loop and
// then executes the feature tree's AcquisitionStart command, in the
// stream-then-device order a real camera requires (streaming
// registers must already be armed before the device begins pushing
// packets).
func (c *Camera) StartAcquisition(ctx context.Context) error {
	for _, s := range c.streams {
		s.Start(ctx)
	}
	if err := c.Features.ExecuteCommand("AcquisitionStart"); err != nil {
		return fmt.Errorf("camera: acquisition start: %w", err)
	}
	return nil
}

// StopAcquisition executes AcquisitionStop and stops every attached
// stream's receive loop.
func (c *Camera) StopAcquisition() error {
	err := c.Features.ExecuteCommand("AcquisitionStop")
	for _, s := range c.streams {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("camera: acquisition stop: %w", err)
	}
	return nil
}

// Close stops every attached stream's receive loop and closes the
// underlying device. Stream transports themselves are the caller's
// responsibility — Camera owns only stream lifecycle, not the
// transport each stream was constructed with.
func (c *Camera) Close() error {
	for _, s := range c.streams {
		s.Stop()
	}
	return c.Device.Close()
}
