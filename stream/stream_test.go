package stream

import (
	"context"
	"testing"
	"time"

	"github.com/aravis-go/aravis/buffer"
	"github.com/aravis-go/aravis/gvsp"
	"github.com/aravis-go/aravis/internal/rtpriority"
	"github.com/aravis-go/aravis/transport"
)

func TestStreamDeliversCompletedFrame(t *testing.T) {
	a, b := transport.NewPair(64)
	defer a.Close()
	defer b.Close()

	pool := buffer.NewPool(1024)
	input := make(chan *buffer.Buffer, 2)
	input <- pool.Get(1024)

	cfg := gvsp.DefaultConfig()
	cfg.PayloadPacketSize = 16
	s := New(a, cfg, pool, input, nil)
	s.Start(context.Background())
	defer s.Stop()

	// b plays the role of the device: send leader, one payload packet,
	// trailer, for frame 1.
	leader := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypeLeader, PacketID: 0})
	leader = append(leader, gvsp.MarshalLeaderPayload(gvsp.LeaderPayload{PayloadType: 1, TimestampNS: 42})...)
	if err := b.Send(leader); err != nil {
		t.Fatalf("send leader: %v", err)
	}

	payload := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypePayload, PacketID: 1})
	payload = append(payload, []byte("0123456789abcdef")...)
	if err := b.Send(payload); err != nil {
		t.Fatalf("send payload: %v", err)
	}

	trailer := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypeTrailer, PacketID: 2})
	trailer = append(trailer, gvsp.MarshalTrailerPayload(gvsp.TrailerPayload{FinalHeight: 1})...)
	if err := b.Send(trailer); err != nil {
		t.Fatalf("send trailer: %v", err)
	}

	select {
	case buf := <-s.Output():
		if buf.Status != buffer.StatusSuccess {
			t.Fatalf("got status %v, want StatusSuccess", buf.Status)
		}
		if buf.FrameID != 1 {
			t.Fatalf("got frame id %d, want 1", buf.FrameID)
		}
		if string(buf.Data[:buf.ReceivedSize]) != "0123456789abcdef" {
			t.Fatalf("got data %q", buf.Data[:buf.ReceivedSize])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completed frame")
	}
}

// TestStreamWithRealtimePriorityStillDelivers exercises
// WithRealtimePriority's wiring into the receive loop: whether or not
// the host grants the process permission to raise its scheduling
// policy, the loop must still run and deliver frames (a failed
// rtpriority.Set is logged, never fatal).
func TestStreamWithRealtimePriorityStillDelivers(t *testing.T) {
	a, b := transport.NewPair(64)
	defer a.Close()
	defer b.Close()

	pool := buffer.NewPool(1024)
	input := make(chan *buffer.Buffer, 2)
	input <- pool.Get(1024)

	cfg := gvsp.DefaultConfig()
	cfg.PayloadPacketSize = 16
	s := New(a, cfg, pool, input, nil, WithRealtimePriority(rtpriority.PolicyFIFO, 10))
	s.Start(context.Background())
	defer s.Stop()

	leader := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypeLeader, PacketID: 0})
	leader = append(leader, gvsp.MarshalLeaderPayload(gvsp.LeaderPayload{PayloadType: 1, TimestampNS: 42})...)
	if err := b.Send(leader); err != nil {
		t.Fatalf("send leader: %v", err)
	}

	payload := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypePayload, PacketID: 1})
	payload = append(payload, []byte("0123456789abcdef")...)
	if err := b.Send(payload); err != nil {
		t.Fatalf("send payload: %v", err)
	}

	trailer := gvsp.MarshalHeader(gvsp.Header{FrameID: 1, ContentType: gvsp.ContentTypeTrailer, PacketID: 2})
	trailer = append(trailer, gvsp.MarshalTrailerPayload(gvsp.TrailerPayload{FinalHeight: 1})...)
	if err := b.Send(trailer); err != nil {
		t.Fatalf("send trailer: %v", err)
	}

	select {
	case buf := <-s.Output():
		if buf.Status != buffer.StatusSuccess {
			t.Fatalf("got status %v, want StatusSuccess", buf.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completed frame")
	}
}
