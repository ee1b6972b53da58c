package aravis

import (
	"context"
	"testing"

	"github.com/aravis-go/aravis/device"
)

func TestSystemFansOutAcrossInterfaces(t *testing.T) {
	sys := NewSystem()
	fi := NewFakeInterface()
	d1 := device.NewFake(device.Identity{Manufacturer: "Aravis", Model: "Sim1", Serial: "S1"}, "")
	d2 := device.NewFake(device.Identity{Manufacturer: "Aravis", Model: "Sim2", Serial: "S2"}, "")
	id1 := fi.Add(d1)
	id2 := fi.Add(d2)
	sys.Register(fi)

	if err := sys.UpdateDeviceList(context.Background()); err != nil {
		t.Fatalf("UpdateDeviceList: %v", err)
	}
	ids := sys.DeviceIds()
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}

	opened, err := sys.OpenDevice(context.Background(), id1.ID)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if opened.Identity().Serial != "S1" {
		t.Fatalf("got serial %q, want S1", opened.Identity().Serial)
	}

	if _, err := sys.OpenDevice(context.Background(), "does-not-exist"); err == nil {
		t.Fatalf("expected error for unknown id")
	}
	_ = id2
}

func TestFakeInterfaceDeviceIdIsStableAcrossCalls(t *testing.T) {
	fi := NewFakeInterface()
	d := device.NewFake(device.Identity{Manufacturer: "Aravis", Model: "Sim", Serial: "SN42"}, "")
	first := fi.Add(d)
	second := fi.Add(d)
	if first.ID != second.ID {
		t.Fatalf("id changed across Add calls: %q vs %q", first.ID, second.ID)
	}
}
