package gvsp

import (
	"testing"
	"time"

	"github.com/aravis-go/aravis/buffer"
)

const testPayloadPacketSize = 64

func freeBufferChan(n, size int) chan *buffer.Buffer {
	ch := make(chan *buffer.Buffer, n)
	for i := 0; i < n; i++ {
		ch <- buffer.New(size)
	}
	return ch
}

// feedFrame drives one leader + nPayloads PAYLOAD packets + trailer
// into r, skipping the payload whose 1-indexed id is in skip.
func feedFrame(t *testing.T, r *Reassembler, frameID uint64, nPayloads int, skip map[uint32]bool) {
	t.Helper()
	now := time.Now()

	leader := Header{FrameID: frameID, ContentType: ContentTypeLeader}
	lp := MarshalLeaderPayload(LeaderPayload{PayloadType: uint16(buffer.PayloadRawData), TimestampNS: uint64(now.UnixNano())})
	if err := r.ProcessPacket(leader, lp, now); err != nil {
		t.Fatalf("leader: %v", err)
	}

	for id := uint32(1); id <= uint32(nPayloads); id++ {
		if skip[id] {
			continue
		}
		payload := make([]byte, testPayloadPacketSize)
		for i := range payload {
			payload[i] = byte(id)
		}
		h := Header{FrameID: frameID, ContentType: ContentTypePayload, PacketID: id}
		if err := r.ProcessPacket(h, payload, now); err != nil {
			t.Fatalf("payload %d: %v", id, err)
		}
	}

	trailer := Header{FrameID: frameID, ContentType: ContentTypeTrailer, PacketID: uint32(nPayloads) + 1}
	if err := r.ProcessPacket(trailer, MarshalTrailerPayload(TrailerPayload{FinalHeight: 1}), now); err != nil {
		t.Fatalf("trailer: %v", err)
	}
}

func TestReassemblyMissingPacketResendNever(t *testing.T) {
	input := freeBufferChan(1, 49*testPayloadPacketSize)
	r := NewReassembler(Config{
		PayloadPacketSize: testPayloadPacketSize,
		ResendPolicy:      ResendNever,
		PacketRequestRatio: 0.5,
		InitialPacketTimeout: time.Second,
		PacketTimeout:        time.Second,
		FrameRetention:       time.Second,
	}, nil, input, nil)

	feedFrame(t, r, 7, 49, map[uint32]bool{17: true})

	select {
	case buf := <-r.Output():
		if buf.Status != buffer.StatusMissingPackets {
			t.Fatalf("status = %v, want MissingPackets", buf.Status)
		}
		if buf.FrameID != 7 {
			t.Fatalf("frame id = %d, want 7", buf.FrameID)
		}
		want := 48 * testPayloadPacketSize
		if buf.ReceivedSize != want {
			t.Fatalf("received size = %d, want %d", buf.ReceivedSize, want)
		}
	default:
		t.Fatal("expected a completed buffer")
	}

	stats := r.Stats()
	if stats.ResentPackets != 0 {
		t.Fatalf("expected no resend with ResendNever, got %d", stats.ResentPackets)
	}
}

func TestReassemblyMissingPacketResendAlwaysRecovers(t *testing.T) {
	input := freeBufferChan(1, 49*testPayloadPacketSize)

	var resendCalls []struct{ first, last uint32 }
	resend := func(frameID uint64, first, last uint32) error {
		resendCalls = append(resendCalls, struct{ first, last uint32 }{first, last})
		return nil
	}

	r := NewReassembler(Config{
		PayloadPacketSize:   testPayloadPacketSize,
		ResendPolicy:        ResendAlways,
		PacketRequestRatio:  0.5,
		InitialPacketTimeout: time.Second,
		PacketTimeout:        time.Second,
		FrameRetention:       time.Second,
	}, nil, input, resend)

	now := time.Now()
	leader := Header{FrameID: 9, ContentType: ContentTypeLeader}
	lp := MarshalLeaderPayload(LeaderPayload{PayloadType: uint16(buffer.PayloadRawData), TimestampNS: uint64(now.UnixNano())})
	if err := r.ProcessPacket(leader, lp, now); err != nil {
		t.Fatalf("leader: %v", err)
	}

	for id := uint32(1); id <= 49; id++ {
		if id == 17 {
			continue
		}
		payload := make([]byte, testPayloadPacketSize)
		h := Header{FrameID: 9, ContentType: ContentTypePayload, PacketID: id}
		if err := r.ProcessPacket(h, payload, now); err != nil {
			t.Fatalf("payload %d: %v", id, err)
		}
	}

	if len(resendCalls) != 1 || resendCalls[0].first != 17 || resendCalls[0].last != 17 {
		t.Fatalf("expected exactly one resend for [17,17], got %+v", resendCalls)
	}

	// Simulate the device successfully delivering the resent packet
	// before the trailer arrives.
	recovered := Header{FrameID: 9, ContentType: ContentTypePayload, PacketID: 17}
	if err := r.ProcessPacket(recovered, make([]byte, testPayloadPacketSize), now); err != nil {
		t.Fatalf("recovered payload: %v", err)
	}

	trailer := Header{FrameID: 9, ContentType: ContentTypeTrailer, PacketID: 50}
	if err := r.ProcessPacket(trailer, MarshalTrailerPayload(TrailerPayload{FinalHeight: 1}), now); err != nil {
		t.Fatalf("trailer: %v", err)
	}

	select {
	case buf := <-r.Output():
		if buf.Status != buffer.StatusSuccess {
			t.Fatalf("status = %v, want Success", buf.Status)
		}
	default:
		t.Fatal("expected a completed buffer")
	}
}

func TestMultipartReassembly(t *testing.T) {
	input := freeBufferChan(1, 192)
	r := NewReassembler(Config{
		PayloadPacketSize:    testPayloadPacketSize,
		ResendPolicy:         ResendNever,
		PacketRequestRatio:   0.5,
		InitialPacketTimeout: time.Second,
		PacketTimeout:        time.Second,
		FrameRetention:       time.Second,
	}, nil, input, nil)

	now := time.Now()
	leader := Header{FrameID: 5, ContentType: ContentTypeLeader}
	lp := MarshalLeaderPayload(LeaderPayload{
		PayloadType: uint16(buffer.PayloadMultipart),
		TimestampNS: uint64(now.UnixNano()),
		Parts: []PartDescriptor{
			{ComponentID: 10, Size: 64},
			{ComponentID: 20, Size: 128},
		},
	})
	if err := r.ProcessPacket(leader, lp, now); err != nil {
		t.Fatalf("leader: %v", err)
	}

	send := func(packetID uint32, partID uint32, byteOffset uint64, fill byte) {
		body := append(MarshalMultipartHeader(MultipartHeader{PartID: partID, ByteOffset: byteOffset}), make([]byte, testPayloadPacketSize)...)
		for i := MultipartHeaderSize; i < len(body); i++ {
			body[i] = fill
		}
		h := Header{FrameID: 5, ContentType: ContentTypeMultipart, PacketID: packetID}
		if err := r.ProcessPacket(h, body, now); err != nil {
			t.Fatalf("multipart packet %d: %v", packetID, err)
		}
	}
	send(1, 10, 0, 0xAA)
	send(2, 20, 0, 0xBB)
	send(3, 20, 64, 0xCC)

	trailer := Header{FrameID: 5, ContentType: ContentTypeTrailer, PacketID: 4}
	if err := r.ProcessPacket(trailer, MarshalTrailerPayload(TrailerPayload{FinalHeight: 1}), now); err != nil {
		t.Fatalf("trailer: %v", err)
	}

	select {
	case buf := <-r.Output():
		if buf.Status != buffer.StatusSuccess {
			t.Fatalf("status = %v, want Success", buf.Status)
		}
		if len(buf.Parts) != 2 {
			t.Fatalf("parts = %d, want 2", len(buf.Parts))
		}
		if buf.Parts[0].ComponentID != 10 || buf.Parts[0].DataOffset != 0 || buf.Parts[0].Size != 64 {
			t.Fatalf("part 0 = %+v", buf.Parts[0])
		}
		if buf.Parts[1].ComponentID != 20 || buf.Parts[1].DataOffset != 64 || buf.Parts[1].Size != 128 {
			t.Fatalf("part 1 = %+v", buf.Parts[1])
		}
		for i := 0; i < 64; i++ {
			if buf.Data[i] != 0xAA {
				t.Fatalf("data[%d] = %x, want 0xAA (part 10)", i, buf.Data[i])
			}
		}
		for i := 64; i < 128; i++ {
			if buf.Data[i] != 0xBB {
				t.Fatalf("data[%d] = %x, want 0xBB (part 20 offset 0)", i, buf.Data[i])
			}
		}
		for i := 128; i < 192; i++ {
			if buf.Data[i] != 0xCC {
				t.Fatalf("data[%d] = %x, want 0xCC (part 20 offset 64)", i, buf.Data[i])
			}
		}
	default:
		t.Fatal("expected a completed buffer")
	}
}

func TestUnderrunWhenNoFreeBuffer(t *testing.T) {
	input := freeBufferChan(0, 0)
	r := NewReassembler(DefaultConfig(), nil, input, nil)

	now := time.Now()
	leader := Header{FrameID: 1, ContentType: ContentTypeLeader}
	err := r.ProcessPacket(leader, MarshalLeaderPayload(LeaderPayload{}), now)
	if err == nil {
		t.Fatal("expected error when no free buffer is available")
	}
	if r.Stats().Underruns != 1 {
		t.Fatalf("expected 1 underrun, got %d", r.Stats().Underruns)
	}
}

func TestFrameRetentionTimeout(t *testing.T) {
	input := freeBufferChan(1, testPayloadPacketSize)
	r := NewReassembler(Config{
		PayloadPacketSize:    testPayloadPacketSize,
		ResendPolicy:         ResendNever,
		InitialPacketTimeout: time.Millisecond,
		PacketTimeout:        time.Millisecond,
		FrameRetention:       time.Millisecond,
	}, nil, input, nil)

	now := time.Now()
	leader := Header{FrameID: 3, ContentType: ContentTypeLeader}
	if err := r.ProcessPacket(leader, MarshalLeaderPayload(LeaderPayload{}), now); err != nil {
		t.Fatalf("leader: %v", err)
	}

	r.Tick(now.Add(10 * time.Millisecond))

	select {
	case buf := <-r.Output():
		if buf.Status != buffer.StatusTimeout {
			t.Fatalf("status = %v, want Timeout", buf.Status)
		}
	default:
		t.Fatal("expected frame_retention to finalize the frame")
	}
}
