package transport

import (
	"testing"
	"time"
)

func TestPairRoundTrip(t *testing.T) {
	a, b := NewPair(4)
	defer a.Close()
	defer b.Close()

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 16)
	n, err := b.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestPairRecvTimesOut(t *testing.T) {
	a, b := NewPair(1)
	defer a.Close()
	defer b.Close()

	buf := make([]byte, 16)
	_, err := b.Recv(buf, 10*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPairCloseUnblocksRecv(t *testing.T) {
	a, b := NewPair(1)
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := b.Recv(buf, time.Second)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestPairSendAfterCloseFails(t *testing.T) {
	a, b := NewPair(1)
	a.Close()
	b.Close()
	if err := a.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDatagramLoopback(t *testing.T) {
	srv, err := ListenDatagram("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	cli, err := DialDatagram(srv.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	if err := cli.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	buf := make([]byte, 16)
	n, err := srv.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q", buf[:n])
	}

	if err := srv.Send([]byte("pong")); err != nil {
		t.Fatalf("reply send: %v", err)
	}
	n, err = cli.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("reply recv: %v", err)
	}
	if string(buf[:n]) != "pong" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestDatagramRecvTimeout(t *testing.T) {
	srv, err := ListenDatagram("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	buf := make([]byte, 16)
	_, err = srv.Recv(buf, 10*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
