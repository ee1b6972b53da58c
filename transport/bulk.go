package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Bulk is an ordered, reliable byte-stream Transport partitioned into
// transfers of at most MaxTransferSize bytes, modeling a USB3 Vision
// bulk endpoint pair. The underlying io.ReadWriteCloser is supplied by
// whatever OS/USB binding the caller links in; Bulk only owns the
// framing and deadline behaviour, not endpoint discovery.
type Bulk struct {
	rw              io.ReadWriteCloser
	MaxTransferSize int
	closed          bool
}

// deadliner is implemented by connections that support per-call read
// deadlines (e.g. net.Conn-backed USB bridges used in tests).
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// NewBulk wraps rw as a Bulk transport. maxTransferSize bounds each
// Send; values <= 0 default to 1024, the U3V minimum guaranteed by the
// spec for max_cmd_transfer fallback (spec.md §4.2).
func NewBulk(rw io.ReadWriteCloser, maxTransferSize int) *Bulk {
	if maxTransferSize <= 0 {
		maxTransferSize = 1024
	}
	return &Bulk{rw: rw, MaxTransferSize: maxTransferSize}
}

func (b *Bulk) Kind() Kind { return KindBulk }

func (b *Bulk) Send(data []byte) error {
	if b.closed {
		return ErrClosed
	}
	for off := 0; off < len(data); {
		end := off + b.MaxTransferSize
		if end > len(data) {
			end = len(data)
		}
		n, err := b.rw.Write(data[off:end])
		if err != nil {
			return fmt.Errorf("transport: bulk send: %w", errors.Join(ErrIO, err))
		}
		off += n
	}
	return nil
}

func (b *Bulk) Recv(buf []byte, deadline time.Duration) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if dl, ok := b.rw.(deadliner); ok {
		if err := dl.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return 0, fmt.Errorf("transport: bulk set deadline: %w", errors.Join(ErrIO, err))
		}
	}
	n, err := b.rw.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, ErrClosed
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("transport: bulk recv: %w", errors.Join(ErrIO, err))
	}
	return n, nil
}

func (b *Bulk) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.rw.Close()
}
