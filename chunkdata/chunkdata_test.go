package chunkdata

import (
	"encoding/binary"
	"testing"

	"github.com/aravis-go/aravis/buffer"
)

// buildChunkBuffer constructs a buffer as described in spec.md §8 scenario 5:
// a 208-byte buffer whose tail holds two big-endian chunk records, with
// the first chunk (0x87654321, 64 bytes of "Hello" padded with zeros)
// written before the second (0x12345678, 4 bytes), so the second chunk
// ends up closest to the end of the buffer.
func buildChunkBuffer(t *testing.T) *buffer.Buffer {
	t.Helper()
	const total = 208

	helloPayload := make([]byte, 64)
	copy(helloPayload, "Hello")

	intPayload := []byte{0x11, 0x22, 0x33, 0x44}

	data := make([]byte, total)
	// Leading region (unrelated to the chunk list, e.g. image data).
	tail := make([]byte, 0, 84)
	tail = append(tail, helloPayload...)
	tail = appendHeader(tail, 0x87654321, uint32(len(helloPayload)))
	tail = append(tail, intPayload...)
	tail = appendHeader(tail, 0x12345678, uint32(len(intPayload)))

	copy(data[total-len(tail):], tail)

	b := buffer.Wrap(data)
	b.ReceivedSize = total
	b.HasChunks = true
	b.ChunkEndianness = buffer.BigEndian
	return b
}

func appendHeader(dst []byte, id, size uint32) []byte {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], id)
	binary.BigEndian.PutUint32(hdr[4:8], size)
	return append(dst, hdr[:]...)
}

func TestFindReturnsExpectedPayloads(t *testing.T) {
	b := buildChunkBuffer(t)

	payload, err := Find(b, 0x12345678)
	if err != nil {
		t.Fatalf("Find(0x12345678) error: %v", err)
	}
	if len(payload) != 4 || payload[0] != 0x11 || payload[3] != 0x44 {
		t.Fatalf("unexpected payload: % x", payload)
	}

	got, err := Integer(b, 0x12345678, "ChunkInt")
	if err != nil {
		t.Fatalf("Integer: %v", err)
	}
	if got != 0x11223344 {
		t.Fatalf("Integer() = 0x%x, want 0x11223344", got)
	}

	s, err := String(b, 0x87654321, "ChunkString")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if s != "Hello" {
		t.Fatalf("String() = %q, want %q", s, "Hello")
	}
}

func TestFindMissingIDReturnsNotFound(t *testing.T) {
	b := buildChunkBuffer(t)
	_, err := Find(b, 0xDEADBEEF)
	if err == nil {
		t.Fatalf("expected error for missing id")
	}
}

// TestChunkRoundTrip exercises P3: regardless of insertion order, every
// synthesized chunk's id resolves back to its original bytes.
func TestChunkRoundTrip(t *testing.T) {
	records := []Entry{
		{ID: 1, Payload: []byte("alpha")},
		{ID: 2, Payload: []byte("beta!!")},
		{ID: 3, Payload: []byte("c")},
	}

	var tail []byte
	for _, e := range records {
		tail = append(tail, e.Payload...)
		tail = appendHeader(tail, e.ID, uint32(len(e.Payload)))
	}

	b := buffer.Wrap(tail)
	b.ReceivedSize = len(tail)
	b.HasChunks = true
	b.ChunkEndianness = buffer.BigEndian

	for _, e := range records {
		got, err := Find(b, e.ID)
		if err != nil {
			t.Fatalf("Find(%d): %v", e.ID, err)
		}
		if string(got) != string(e.Payload) {
			t.Fatalf("Find(%d) = %q, want %q", e.ID, got, e.Payload)
		}
	}
}

func TestNoChunksReturnsNotFound(t *testing.T) {
	b := buffer.New(32)
	b.ReceivedSize = 32
	b.HasChunks = false
	_, err := Find(b, 1)
	if err == nil {
		t.Fatalf("expected not-found when HasChunks is false")
	}
}

func TestMalformedSizeExtendsBeforeStart(t *testing.T) {
	data := appendHeader(nil, 0xAAAA, 1000) // size far larger than buffer
	b := buffer.Wrap(data)
	b.ReceivedSize = len(data)
	b.HasChunks = true
	b.ChunkEndianness = buffer.BigEndian

	_, err := Find(b, 0xAAAA)
	if err == nil {
		t.Fatalf("expected malformed error")
	}
}
