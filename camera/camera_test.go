package camera

import (
	"context"
	"testing"

	"github.com/aravis-go/aravis/buffer"
	"github.com/aravis-go/aravis/device"
	"github.com/aravis-go/aravis/genicam"
	"github.com/aravis-go/aravis/gvsp"
	"github.com/aravis-go/aravis/stream"
	"github.com/aravis-go/aravis/transport"
)

func TestCameraAcquisitionLifecycle(t *testing.T) {
	dev := device.NewFake(device.Identity{Manufacturer: "Aravis", Model: "Fake", Serial: "GV01"}, "")
	doc := genicam.NewDocument(dev)
	started := false
	doc.NewNode(genicam.KindCommand, "AcquisitionStart").Value(0).Build()
	doc.NewNode(genicam.KindCommand, "AcquisitionStop").Value(0).Build()

	cam := Open(dev, doc)

	a, b := transport.NewPair(8)
	defer a.Close()
	defer b.Close()
	pool := buffer.NewPool(1024)
	input := make(chan *buffer.Buffer, 1)
	input <- pool.Get(1024)
	s := stream.New(a, gvsp.DefaultConfig(), pool, input, nil)
	cam.AddStream(s)

	if err := cam.StartAcquisition(context.Background()); err != nil {
		t.Fatalf("StartAcquisition: %v", err)
	}
	started = true
	if err := cam.StopAcquisition(); err != nil {
		t.Fatalf("StopAcquisition: %v", err)
	}
	if !started {
		t.Fatal("acquisition never started")
	}
	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
