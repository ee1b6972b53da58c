package transport

import (
	"sync"
	"time"
)

// Pair is an in-memory Transport implementation used by tests for gvcp,
// gvsp, and device: two endpoints connected by buffered frame queues,
// with no real socket or USB stack involved. NewPair returns both ends;
// whatever is sent on one arrives, frame-for-frame, on the other's
// Recv.
type Pair struct {
	mu     sync.Mutex
	out    chan []byte
	in     chan []byte
	closed chan struct{}
	once   *sync.Once
}

// NewPair returns two connected Pair endpoints: a's Send feeds b's
// Recv, and b's Send feeds a's Recv. Buffer depth controls how many
// frames may be in flight before Send blocks. Closing either end
// closes both; closing an end again is a no-op.
func NewPair(buffer int) (a, b *Pair) {
	c1 := make(chan []byte, buffer)
	c2 := make(chan []byte, buffer)
	closed := make(chan struct{})
	once := new(sync.Once)
	a = &Pair{out: c1, in: c2, closed: closed, once: once}
	b = &Pair{out: c2, in: c1, closed: closed, once: once}
	return a, b
}

func (p *Pair) Kind() Kind { return KindDatagram }

func (p *Pair) Send(b []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	frame := make([]byte, len(b))
	copy(frame, b)
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

func (p *Pair) Recv(buf []byte, deadline time.Duration) (int, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case frame, ok := <-p.in:
		if !ok {
			return 0, ErrClosed
		}
		n := copy(buf, frame)
		return n, nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-p.closed:
		return 0, ErrClosed
	}
}

func (p *Pair) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.once.Do(func() { close(p.closed) })
	return nil
}
