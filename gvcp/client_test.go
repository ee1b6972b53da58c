package gvcp

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/aravis-go/aravis/transport"
)

// fakeDevice answers GVCP commands arriving on its Pair endpoint,
// holding a simple in-memory register file. Used instead of a real
// socket/device, mirroring the teacher's preference for fakes over
// hardware in tests.
type fakeDevice struct {
	tr        *transport.Pair
	registers map[uint64]uint32
	memory    map[uint64]byte
	dropNext  bool
}

func newFakeDevice(tr *transport.Pair) *fakeDevice {
	return &fakeDevice{tr: tr, registers: map[uint64]uint32{}, memory: map[uint64]byte{}}
}

func (f *fakeDevice) serveOne(t *testing.T) bool {
	t.Helper()
	buf := make([]byte, 2048)
	n, err := f.tr.Recv(buf, 2*time.Second)
	if err != nil {
		return false
	}
	pkt, err := UnmarshalPacket(buf[:n])
	if err != nil {
		t.Fatalf("fake device: bad packet: %v", err)
	}
	if f.dropNext {
		f.dropNext = false
		return true
	}

	switch pkt.Header.Command {
	case CommandReadRegisterCmd:
		addr := uint64(binary.BigEndian.Uint32(pkt.Payload[0:4]))
		val := f.registers[addr]
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, val)
		f.reply(t, pkt.Header.ID, CommandReadRegisterAck, payload)
	case CommandWriteRegisterCmd:
		addr := uint64(binary.BigEndian.Uint32(pkt.Payload[0:4]))
		val := binary.BigEndian.Uint32(pkt.Payload[4:8])
		f.registers[addr] = val
		f.reply(t, pkt.Header.ID, CommandWriteRegisterAck, nil)
	case CommandReadMemoryCmd:
		addr := uint64(binary.BigEndian.Uint32(pkt.Payload[0:4]))
		size := binary.BigEndian.Uint32(pkt.Payload[4:8])
		data := make([]byte, size)
		for i := uint32(0); i < size; i++ {
			data[i] = f.memory[addr+uint64(i)]
		}
		payload := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(payload[0:4], uint32(addr))
		copy(payload[4:], data)
		f.reply(t, pkt.Header.ID, CommandReadMemoryAck, payload)
	case CommandWriteMemoryCmd:
		addr := uint64(binary.BigEndian.Uint32(pkt.Payload[0:4]))
		data := pkt.Payload[4:]
		for i, b := range data {
			f.memory[addr+uint64(i)] = b
		}
		f.reply(t, pkt.Header.ID, CommandWriteMemoryAck, nil)
	case CommandPacketResendCmd:
		f.reply(t, pkt.Header.ID, CommandPacketResendAck, nil)
	case CommandDiscoveryCmd:
		reply := MarshalDiscoveryReply(DiscoveryReply{
			Manufacturer: "Aravis",
			Model:        "Fake",
			Serial:       "GV01",
		})
		f.reply(t, pkt.Header.ID, CommandDiscoveryAck, reply)
	}
	return true
}

func (f *fakeDevice) reply(t *testing.T, id uint16, cmd Command, payload []byte) {
	t.Helper()
	ack := Packet{Header: Header{Type: PacketTypeAck, Command: cmd, ID: id}, Payload: payload}
	if err := f.tr.Send(ack.Marshal()); err != nil {
		t.Fatalf("fake device reply: %v", err)
	}
}

func (f *fakeDevice) serveLoop(t *testing.T, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !f.serveOne(t) {
			select {
			case <-stop:
				return
			default:
			}
		}
	}
}

func newClientWithFake(t *testing.T) (*Client, *fakeDevice, func()) {
	t.Helper()
	a, b := transport.NewPair(8)
	fd := newFakeDevice(b)
	stop := make(chan struct{})
	go fd.serveLoop(t, stop)

	c := NewClient(a, WithRetryTimeout(50*time.Millisecond), WithMaxRetries(2))
	return c, fd, func() {
		close(stop)
		a.Close()
		b.Close()
	}
}

func TestWriteThenReadRegister(t *testing.T) {
	c, _, cleanup := newClientWithFake(t)
	defer cleanup()

	ctx := context.Background()
	if err := c.WriteRegister(ctx, 0x1000, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	got, err := c.ReadRegister(ctx, 0x1000)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got 0x%x, want 0xDEADBEEF", got)
	}
}

func TestWriteThenReadMemory(t *testing.T) {
	c, _, cleanup := newClientWithFake(t)
	defer cleanup()

	ctx := context.Background()
	data := []byte("the quick brown fox jumps over the lazy dog")
	if err := c.WriteMemory(ctx, 0x2000, data); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	got, err := c.ReadMemory(ctx, 0x2000, uint32(len(data)))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestPacketIDsAreMonotonicAndNeverZero(t *testing.T) {
	c, _, cleanup := newClientWithFake(t)
	defer cleanup()

	ctx := context.Background()
	var lastID uint16
	for i := 0; i < 5; i++ {
		if err := c.WriteRegister(ctx, 0x10, uint32(i)); err != nil {
			t.Fatalf("WriteRegister: %v", err)
		}
		if c.nextID == 0 {
			t.Fatalf("id must never be 0")
		}
		if i > 0 && c.nextID <= lastID {
			t.Fatalf("id did not increase: %d -> %d", lastID, c.nextID)
		}
		lastID = c.nextID
	}
}

func TestRequestRetriesOnDroppedAck(t *testing.T) {
	c, fd, cleanup := newClientWithFake(t)
	defer cleanup()

	fd.dropNext = true
	ctx := context.Background()
	if err := c.WriteRegister(ctx, 0x30, 7); err != nil {
		t.Fatalf("WriteRegister after one dropped ack: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	a, b := transport.NewPair(8)
	defer a.Close()
	defer b.Close()

	fd := newFakeDevice(b)
	stop := make(chan struct{})
	go fd.serveLoop(t, stop)
	defer close(stop)

	replies, err := Discover(a, 500*time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].Manufacturer != "Aravis" || replies[0].Model != "Fake" || replies[0].Serial != "GV01" {
		t.Fatalf("unexpected reply: %+v", replies[0])
	}
}

func TestUsesLegacyEndiannessMechanism(t *testing.T) {
	if !UsesLegacyEndiannessMechanism("Sony", "XCG_CGSeries") {
		t.Fatalf("expected Sony XCG_CGSeries to require legacy endianness")
	}
	if UsesLegacyEndiannessMechanism("Acme", "WidgetCam") {
		t.Fatalf("unexpected legacy match for unrelated vendor/model")
	}
}
