package device

import (
	"context"
	"fmt"
	"time"

	"github.com/aravis-go/aravis/gvcp"
	"github.com/aravis-go/aravis/transport"
)

// GigE is a Device backed by a gvcp.Client over a GigE Vision control
// channel (spec.md §6.1). It owns the client's heartbeat goroutine for
// as long as it holds control channel privilege.
type GigE struct {
	cl       *gvcp.Client
	tr       transport.Transport
	identity Identity
	xmlURL   string

	cancel context.CancelFunc
}

// OpenGigE takes control of a device reachable over tr: it claims
// control channel privilege, starts the heartbeat, and reads the
// bootstrap identity block (spec.md §4.2, §6.4).
func OpenGigE(ctx context.Context, tr transport.Transport, opts ...gvcp.Option) (*GigE, error) {
	cl := gvcp.NewClient(tr, opts...)

	const privilegeControl = 1 << 1
	if err := cl.WriteRegister(ctx, RegControlChannelPrivilege, privilegeControl); err != nil {
		return nil, fmt.Errorf("device: gige: claim control privilege: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	g := &GigE{cl: cl, tr: tr, cancel: cancel}
	cl.StartHeartbeat(hbCtx, RegControlChannelPrivilege, func(err error) {
		// heartbeat failure means the device revoked our control
		// channel privilege, or became unreachable; surfaced only via
		// subsequent ReadRegister/WriteRegister calls failing.
	})

	identity, err := readIdentityBlock(ctx, g)
	if err != nil {
		cancel()
		return nil, err
	}
	g.identity = identity
	cl.DetectLegacyEndianness(identity.Manufacturer, identity.Model)

	xmlURL, err := readXMLURL(ctx, g)
	if err != nil {
		cancel()
		return nil, err
	}
	g.xmlURL = xmlURL

	return g, nil
}

func (g *GigE) ReadMemory(ctx context.Context, address uint64, size uint32) ([]byte, error) {
	return g.cl.ReadMemory(ctx, address, size)
}

func (g *GigE) WriteMemory(ctx context.Context, address uint64, data []byte) error {
	return g.cl.WriteMemory(ctx, address, data)
}

func (g *GigE) ReadRegister(ctx context.Context, address uint64) (uint32, error) {
	return g.cl.ReadRegister(ctx, address)
}

func (g *GigE) WriteRegister(ctx context.Context, address uint64, value uint32) error {
	return g.cl.WriteRegister(ctx, address, value)
}

func (g *GigE) Identity() Identity { return g.identity }
func (g *GigE) XMLURL() string     { return g.xmlURL }

// LegacyEndianness reports whether UsesLegacyEndiannessMechanism
// matched this device's manufacturer/model, detected once at Open
// (spec.md §9). genicam.Parse/NewDocument callers bind a Document to
// this Device with genicam.WithLegacyEndianness(g.LegacyEndianness())
// so 4-byte register accesses route through g.ReadRegister/WriteRegister
// instead of the generic memory commands.
func (g *GigE) LegacyEndianness() bool { return g.cl.LegacyEndianness() }

// RequestStreamResend forwards to the underlying client, used by
// stream.Stream to ask for retransmission of missing GVSP packets
// (spec.md §4.3).
func (g *GigE) RequestStreamResend(ctx context.Context, frameID uint64, firstBlock, lastBlock uint32, extendedIDs bool) error {
	return g.cl.RequestResend(ctx, frameID, firstBlock, lastBlock, extendedIDs)
}

// Close stops the heartbeat goroutine and closes the transport.
func (g *GigE) Close() error {
	g.cancel()
	// allow the heartbeat goroutine's in-flight write to observe
	// cancellation before the transport it depends on goes away.
	time.Sleep(time.Millisecond)
	return g.tr.Close()
}

// DiscoverGigE broadcasts a GVCP discovery command and returns every
// reply received before timeout elapses (spec.md §4.6).
func DiscoverGigE(tr transport.Transport, timeout time.Duration, allowBroadcastAck bool) ([]gvcp.DiscoveryReply, error) {
	return gvcp.Discover(tr, timeout, allowBroadcastAck)
}
