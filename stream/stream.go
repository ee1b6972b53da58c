// Package stream binds a gvsp.Reassembler to a receive transport and a
// device's control channel: it owns the datagram receive loop (the
// stream's one dedicated goroutine, spec.md §5) and the resend path
// back through the device, and exposes the two-FIFO buffer.Pool
// ownership model of spec.md §4.3/§5 to callers.
//
// Grounded on the teacher's startStreamLoop (device/device.go): a sole
// goroutine owns the receive path, queues buffers from a pool, and
// delivers completed ones over a channel; generalized here from a V4L2
// ioctl dequeue loop to a transport.Transport.Recv loop feeding a
// gvsp.Reassembler.
package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"github.com/aravis-go/aravis/buffer"
	"github.com/aravis-go/aravis/device"
	"github.com/aravis-go/aravis/gvsp"
	"github.com/aravis-go/aravis/internal/avlog"
	"github.com/aravis-go/aravis/internal/rtpriority"
	"github.com/aravis-go/aravis/transport"
)

// tickInterval is how often the receive loop calls Reassembler.Tick to
// enforce the frame/packet timeouts of spec.md §4.3 point 6.
const tickInterval = 20 * time.Millisecond

// recvPollTimeout bounds how long one Recv call blocks, so the receive
// loop can still observe ctx cancellation and fire Tick promptly even
// when no datagrams are arriving.
const recvPollTimeout = 10 * time.Millisecond

// Stream owns one GVSP receive channel: it pulls datagrams off tr,
// feeds them to a gvsp.Reassembler, and resends missing ranges through
// resend (typically device.GigE.RequestStreamResend).
type Stream struct {
	tr    transport.Transport
	re    *gvsp.Reassembler
	log   *avlog.Logger
	extID bool

	rtPolicy   rtpriority.Policy
	rtPriority int

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Stream at construction time (spec.md §2
// "Configuration": functional-options pattern per device/genicam).
type Option func(*Stream)

// WithRealtimePriority promotes the receive loop's OS thread to policy
// at priority once it starts (spec.md §5: "may be promoted to realtime
// ... via a platform policy hook"). The default, PolicyNone, leaves the
// thread on the Go scheduler's normal goroutine pool.
func WithRealtimePriority(policy rtpriority.Policy, priority int) Option {
	return func(s *Stream) { s.rtPolicy, s.rtPriority = policy, priority }
}

// New constructs a Stream. input supplies free buffers; cfg tunes the
// reassembler; resend may be nil for a transport with no resend
// concept (e.g. U3V, or a GigE device with ResendPolicy ResendNever).
func New(tr transport.Transport, cfg gvsp.Config, pool *buffer.Pool, input <-chan *buffer.Buffer, resend gvsp.ResendFunc, opts ...Option) *Stream {
	s := &Stream{
		tr:    tr,
		re:    gvsp.NewReassembler(cfg, pool, input, resend),
		log:   avlog.New("stream"),
		extID: cfg.ExtendedIDs,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Output returns the channel completed buffers are delivered on.
func (s *Stream) Output() <-chan *buffer.Buffer { return s.re.Output() }

// Stats returns the underlying reassembler's cumulative counters.
func (s *Stream) Stats() gvsp.Stats { return s.re.Stats() }

// Start launches the receive loop goroutine. Stop (or ctx cancellation)
// ends it.
func (s *Stream) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.receiveLoop(ctx)
}

// Stop cancels the receive loop and waits for it to exit.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Stream) receiveLoop(ctx context.Context) {
	defer close(s.done)

	if s.rtPolicy != rtpriority.PolicyNone {
		// A realtime scheduling policy applies to an OS thread, not a
		// goroutine; pin this goroutine to its thread for the loop's
		// entire lifetime so the policy actually follows it across
		// Go scheduler preemption points.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := rtpriority.Set(s.rtPolicy, s.rtPriority); err != nil {
			s.log.Printf("realtime priority not applied: %v", err)
		}
	}

	buf := make([]byte, 1<<16)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.re.Tick(now)
		default:
		}

		n, err := s.tr.Recv(buf, recvPollTimeout)
		if err != nil {
			continue
		}
		h, hdrLen, err := gvsp.ParseHeader(buf[:n], s.extID)
		if err != nil {
			s.log.Printf("dropping malformed datagram: %v", err)
			continue
		}
		payload := buf[hdrLen:n]
		if err := s.re.ProcessPacket(h, payload, time.Now()); err != nil {
			s.log.Printf("frame %d: %v", h.FrameID, err)
		}
	}
}

// ConfigureGigEStreamChannel writes the destination port, packet size,
// and destination IP address to a device's first stream channel
// bootstrap registers, as the client must do before the device will
// emit GVSP traffic (spec.md §6.2: "on stream create the client writes
// the chosen port ... to the device's StreamChannel_0_* registers").
func ConfigureGigEStreamChannel(ctx context.Context, dev device.Device, destPort uint16, packetSize uint32, destIP [4]byte) error {
	if err := dev.WriteRegister(ctx, device.RegFirstStreamChannelPort, uint32(destPort)); err != nil {
		return fmt.Errorf("stream: set stream channel port: %w", err)
	}
	if err := dev.WriteRegister(ctx, device.RegFirstStreamChannelPacketSize, packetSize); err != nil {
		return fmt.Errorf("stream: set stream channel packet size: %w", err)
	}
	ipValue := binary.BigEndian.Uint32(destIP[:])
	if err := dev.WriteRegister(ctx, device.RegFirstStreamChannelIPAddr, ipValue); err != nil {
		return fmt.Errorf("stream: set stream channel destination address: %w", err)
	}
	return nil
}
