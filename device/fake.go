package device

import (
	"context"
	"sync"
)

// Fake is an in-memory Device backend: a flat register file with no
// real transport underneath, used by tests and by aravis.System's
// synthetic "Fake" interface for demos that must run without hardware
// (spec.md §8 scenario 1, §4.6).
type Fake struct {
	mu       sync.Mutex
	mem      map[uint64][]byte
	identity Identity
	xmlURL   string
}

// NewFake builds a Fake device pre-seeded with identity and an XML
// document URL (typically a data: URL or an in-process path a test
// resolves itself, since Fake has no file server).
func NewFake(identity Identity, xmlURL string) *Fake {
	f := &Fake{mem: make(map[uint64][]byte), identity: identity, xmlURL: xmlURL}
	f.putCString(RegManufacturerName, RegManufacturerNameSize, identity.Manufacturer)
	f.putCString(RegModelName, RegModelNameSize, identity.Model)
	f.putCString(RegDeviceVersion, RegDeviceVersionSize, identity.DeviceVersion)
	f.putCString(RegSerialNumber, RegSerialNumberSize, identity.Serial)
	f.putCString(RegUserDefinedName, RegUserDefinedNameSize, identity.UserDefinedName)
	f.putCString(RegFirstXMLURL, RegXMLURLSize, xmlURL)
	return f
}

func (f *Fake) putCString(addr uint64, size int, s string) {
	buf := make([]byte, size)
	copy(buf, s)
	for i := range size {
		f.mem[addr+uint64(i)] = buf[i : i+1]
	}
}

// SetRegister pre-loads size bytes at address, for tests that need a
// specific feature register populated before a genicam.Document reads
// it.
func (f *Fake) SetRegister(address uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range data {
		f.mem[address+uint64(i)] = []byte{b}
	}
}

func (f *Fake) ReadMemory(_ context.Context, address uint64, size uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, size)
	for i := range out {
		if b, ok := f.mem[address+uint64(i)]; ok {
			out[i] = b[0]
		}
	}
	return out, nil
}

func (f *Fake) WriteMemory(_ context.Context, address uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range data {
		f.mem[address+uint64(i)] = []byte{b}
	}
	return nil
}

func (f *Fake) ReadRegister(ctx context.Context, address uint64) (uint32, error) {
	raw, err := f.ReadMemory(ctx, address, 4)
	if err != nil {
		return 0, err
	}
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), nil
}

func (f *Fake) WriteRegister(ctx context.Context, address uint64, value uint32) error {
	buf := []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	return f.WriteMemory(ctx, address, buf)
}

func (f *Fake) Identity() Identity { return f.identity }
func (f *Fake) XMLURL() string     { return f.xmlURL }

func (f *Fake) Close() error { return nil }

var _ Device = (*Fake)(nil)
var _ Device = (*GigE)(nil)
