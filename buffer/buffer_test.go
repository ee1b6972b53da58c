package buffer

import "testing"

func TestNewBufferInvariants(t *testing.T) {
	b := New(64)
	if b.AllocatedSize != 64 || len(b.Data) != 64 {
		t.Fatalf("expected 64-byte buffer, got alloc=%d len=%d", b.AllocatedSize, len(b.Data))
	}
	if b.Status != StatusCleared {
		t.Fatalf("expected StatusCleared, got %s", b.Status)
	}
	if b.ReceivedSize > b.AllocatedSize {
		t.Fatalf("received size must not exceed allocated size")
	}
}

func TestWrapBorrowsMemory(t *testing.T) {
	data := make([]byte, 16)
	b := Wrap(data)
	if b.owned {
		t.Fatalf("Wrap should produce a borrowed buffer")
	}
	if &b.Data[0] != &data[0] {
		t.Fatalf("Wrap must not copy the underlying array")
	}
}

func TestResetInvokesDestructor(t *testing.T) {
	b := New(8)
	called := false
	b.SetUserData("ctx", func(v any) {
		called = true
		if v != "ctx" {
			t.Fatalf("destructor got wrong value: %v", v)
		}
	})
	b.Reset()
	if !called {
		t.Fatalf("expected user-data destructor to run on Reset")
	}
	if b.UserData != nil {
		t.Fatalf("expected UserData cleared after Reset")
	}
}

func TestPartBytes(t *testing.T) {
	b := New(32)
	copy(b.Data, []byte("hello world, this is a long payload"))
	p := Part{DataOffset: 0, Size: 5}
	if string(p.Bytes(b.Data)) != "hello" {
		t.Fatalf("unexpected part slice: %q", p.Bytes(b.Data))
	}

	oob := Part{DataOffset: 30, Size: 10}
	if oob.Bytes(b.Data) != nil {
		t.Fatalf("expected nil for out-of-bounds part")
	}
}

func TestPixelFormatBitsPerPixel(t *testing.T) {
	cases := []struct {
		pf  PixelFormat
		bpp int
	}{
		{PixelFormatMono8, 8},
		{PixelFormatMono10, 16},
		{PixelFormatMono12, 16},
		{PixelFormatMono16, 16},
		{PixelFormatRGB8, 24},
		{PixelFormatBayerRG8, 8},
	}
	for _, c := range cases {
		if got := c.pf.BitsPerPixel(); got != c.bpp {
			t.Errorf("%s: BitsPerPixel() = %d, want %d", c.pf, got, c.bpp)
		}
	}
}

func TestPixelFormatFrameSize(t *testing.T) {
	sz := PixelFormatMono8.FrameSize(640, 480)
	if sz != 640*480 {
		t.Fatalf("Mono8 640x480 frame size = %d, want %d", sz, 640*480)
	}
	sz = PixelFormatRGB8.FrameSize(640, 480)
	if sz != 640*480*3 {
		t.Fatalf("RGB8 640x480 frame size = %d, want %d", sz, 640*480*3)
	}
}
