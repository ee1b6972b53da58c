package aravis

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/aravis-go/aravis/device"
	"github.com/aravis-go/aravis/gvcp"
	"github.com/aravis-go/aravis/transport"
)

// GigEInterface discovers devices by broadcasting a GVCP DISCOVERY_CMD
// on the given UDP broadcast address (spec.md §4.6, §6.1). Discovery
// replies carry no device address, so OpenDevice returns an error for
// every discovered id; OpenDeviceAt opens a device at a known address.
type GigEInterface struct {
	broadcastAddr string
	timeout       time.Duration

	mu  sync.Mutex
	ids map[string]gvcp.DiscoveryReply // id -> reply, id is the serial, or "manufacturer/model" when the serial is empty
}

// NewGigEInterface returns a GigEInterface that broadcasts discovery
// to broadcastAddr (e.g. "255.255.255.255:3956") with the given reply
// timeout.
func NewGigEInterface(broadcastAddr string, timeout time.Duration) *GigEInterface {
	return &GigEInterface{
		broadcastAddr: broadcastAddr,
		timeout:       timeout,
		ids:           make(map[string]gvcp.DiscoveryReply),
	}
}

func (g *GigEInterface) Protocol() string { return "GigE" }

// UpdateDeviceList broadcasts DISCOVERY_CMD and collects replies until
// the interface's timeout elapses.
func (g *GigEInterface) UpdateDeviceList(ctx context.Context) error {
	tr, err := transport.ListenDatagram(":0")
	if err != nil {
		return fmt.Errorf("aravis: gige: listen: %w", err)
	}
	defer tr.Close()

	replies, err := gvcp.Discover(gigeBroadcastShim{tr, g.broadcastAddr}, g.timeout, true)
	if err != nil {
		return fmt.Errorf("aravis: gige: discover: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = make(map[string]gvcp.DiscoveryReply, len(replies))
	for _, r := range replies {
		key := r.Serial
		if key == "" {
			key = r.Manufacturer + "/" + r.Model
		}
		g.ids[key] = r
	}
	return nil
}

func (g *GigEInterface) DeviceIds() []DeviceId {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DeviceId, 0, len(g.ids))
	for key, r := range g.ids {
		out = append(out, DeviceId{
			ID:               key,
			Vendor:           r.Manufacturer,
			Model:            r.Model,
			Serial:           r.Serial,
			ManufacturerInfo: r.DeviceVersion,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenDevice looks id up among the last UpdateDeviceList results and
// dials its control channel. The discovery ack payload itself carries
// no network address (spec.md §6.4's bootstrap block has no IP field
// reachable from a broadcast reply's fixed offsets); callers that know
// the device's address ahead of time should call OpenDeviceAt
// directly instead of relying on discovery to supply one.
func (g *GigEInterface) OpenDevice(ctx context.Context, id string) (device.Device, error) {
	g.mu.Lock()
	_, ok := g.ids[id]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("aravis: gige: device %q not found", id)
	}
	return nil, fmt.Errorf("aravis: gige: %q has no resolvable address from discovery; call OpenDeviceAt(ctx, addr)", id)
}

// OpenDeviceAt dials the GVCP control channel at addr ("host:port")
// and claims control, for the common case where the caller already
// knows the device's network address (static IP configuration, a
// prior successful open, or an operator-supplied address).
func (g *GigEInterface) OpenDeviceAt(ctx context.Context, addr string, opts ...gvcp.Option) (device.Device, error) {
	tr, err := transport.DialDatagram(addr)
	if err != nil {
		return nil, fmt.Errorf("aravis: gige: dial %s: %w", addr, err)
	}
	dev, err := device.OpenGigE(ctx, tr, opts...)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return dev, nil
}

var _ Interface = (*GigEInterface)(nil)

// gigeBroadcastShim adapts a bound Datagram listener to gvcp.Discover's
// transport.Transport contract, sending to the broadcast address while
// receiving from whichever device answers.
type gigeBroadcastShim struct {
	tr   *transport.Datagram
	addr string
}

func (s gigeBroadcastShim) Kind() transport.Kind { return transport.KindDatagram }

func (s gigeBroadcastShim) Send(b []byte) error {
	raddr, err := net.ResolveUDPAddr("udp4", s.addr)
	if err != nil {
		return fmt.Errorf("aravis: gige: resolve %s: %w", s.addr, err)
	}
	return s.tr.SendTo(b, raddr)
}

func (s gigeBroadcastShim) Recv(buf []byte, deadline time.Duration) (int, error) {
	return s.tr.Recv(buf, deadline)
}

func (s gigeBroadcastShim) Close() error { return nil }
