package aravis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aravis-go/aravis/device"
)

// fakeNamespace seeds the deterministic device ids minted for the Fake
// interface, so the same registered identity always yields the same
// id across UpdateDeviceList calls (spec.md §8 scenario 1).
var fakeNamespace = uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

// FakeInterface is a static registry of device.Fake instances, used for
// tests and demos that must run with no hardware attached. Unlike
// GigE/U3V, UpdateDeviceList never probes anything: the registry is
// populated directly via Add.
type FakeInterface struct {
	mu      sync.Mutex
	entries map[string]*fakeEntry
	order   []string
}

type fakeEntry struct {
	id  DeviceId
	dev *device.Fake
}

// NewFakeInterface returns an empty FakeInterface.
func NewFakeInterface() *FakeInterface {
	return &FakeInterface{entries: make(map[string]*fakeEntry)}
}

// Add registers a fake device, synthesizing a stable id from its
// vendor/model/serial via uuid.NewSHA1 (spec.md §8 scenario 1: "so
// repeated UpdateDeviceList calls are stable without depending on map
// iteration order").
func (f *FakeInterface) Add(dev *device.Fake) DeviceId {
	id := dev.Identity()
	seed := fmt.Sprintf("%s/%s/%s", id.Manufacturer, id.Model, id.Serial)
	u := uuid.NewSHA1(fakeNamespace, []byte(seed))
	devID := DeviceId{
		ID:       u.String(),
		Physical: "fake:" + id.Serial,
		Vendor:   id.Manufacturer,
		Model:    id.Model,
		Serial:   id.Serial,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[devID.ID]; !exists {
		f.order = append(f.order, devID.ID)
	}
	f.entries[devID.ID] = &fakeEntry{id: devID, dev: dev}
	return devID
}

func (f *FakeInterface) Protocol() string { return "Fake" }

// UpdateDeviceList is a no-op: the registry is populated by Add, not by
// probing a transport.
func (f *FakeInterface) UpdateDeviceList(context.Context) error { return nil }

func (f *FakeInterface) DeviceIds() []DeviceId {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeviceId, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.entries[id].id)
	}
	return out
}

func (f *FakeInterface) OpenDevice(_ context.Context, id string) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("aravis: fake: device %q not registered", id)
	}
	return e.dev, nil
}

var _ Interface = (*FakeInterface)(nil)
