package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Datagram is a UDP-backed Transport, used for both the GVCP control
// channel and the GVSP streaming channel of a GigE Vision device.
type Datagram struct {
	conn   net.PacketConn
	remote net.Addr
	closed bool
}

// DialDatagram opens a UDP socket connected to addr (host:port), for
// sending GVCP commands to and receiving acks/stream packets from a
// single remote peer.
func DialDatagram(addr string) (*Datagram, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Datagram{conn: conn, remote: raddr}, nil
}

// ListenDatagram opens a UDP socket bound to localAddr, for a discovery
// listener or a streaming receiver that accepts packets from whichever
// peer is sending them. The first address Recv observes becomes the
// implicit remote for subsequent Send calls.
func ListenDatagram(localAddr string) (*Datagram, error) {
	conn, err := net.ListenPacket("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", localAddr, err)
	}
	return &Datagram{conn: conn}, nil
}

func (d *Datagram) Kind() Kind { return KindDatagram }

func (d *Datagram) Send(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if d.remote == nil {
		return fmt.Errorf("transport: send with no remote address: %w", ErrIO)
	}
	n, err := d.conn.WriteTo(b, d.remote)
	if err != nil {
		return fmt.Errorf("transport: send: %w", errors.Join(ErrIO, err))
	}
	if n != len(b) {
		return fmt.Errorf("transport: short write (%d of %d): %w", n, len(b), ErrIO)
	}
	return nil
}

// SendTo transmits b to a specific address, used by the discovery
// broadcast which has no fixed remote peer.
func (d *Datagram) SendTo(b []byte, addr net.Addr) error {
	if d.closed {
		return ErrClosed
	}
	_, err := d.conn.WriteTo(b, addr)
	if err != nil {
		return fmt.Errorf("transport: sendto: %w", errors.Join(ErrIO, err))
	}
	return nil
}

func (d *Datagram) Recv(buf []byte, deadline time.Duration) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if err := d.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return 0, fmt.Errorf("transport: set deadline: %w", errors.Join(ErrIO, err))
	}
	n, addr, err := d.conn.ReadFrom(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("transport: recv: %w", errors.Join(ErrIO, err))
	}
	if d.remote == nil {
		d.remote = addr
	}
	return n, nil
}

// LastPeer returns the remote address Send will target, or nil if none
// has been established yet.
func (d *Datagram) LastPeer() net.Addr { return d.remote }

func (d *Datagram) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.conn.Close()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}
