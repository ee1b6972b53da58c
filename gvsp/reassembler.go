package gvsp

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aravis-go/aravis/buffer"
	"github.com/aravis-go/aravis/internal/avlog"
)

// ResendFunc issues a PACKET_RESEND_CMD for the contiguous packet-id
// range [first, last] of frameID. Bound to a gvcp.Client by the stream
// package; kept as a function value here so gvsp never imports gvcp
// (spec.md §2: the reassembler owns only its transport channel and
// buffer pool).
type ResendFunc func(frameID uint64, first, last uint32) error

// Config tunes one Reassembler instance (spec.md §4.3 points 4 and 6).
type Config struct {
	PayloadPacketSize  int
	ExtendedIDs        bool
	ResendPolicy       ResendPolicy
	PacketRequestRatio float64

	InitialPacketTimeout time.Duration
	PacketTimeout        time.Duration
	FrameRetention       time.Duration
}

// DefaultConfig returns a Config with conservative defaults: no resend,
// generous timeouts suitable for a loopback fake camera.
func DefaultConfig() Config {
	return Config{
		PayloadPacketSize:   1440,
		ResendPolicy:        ResendNever,
		PacketRequestRatio:  0.5,
		InitialPacketTimeout: 5 * time.Second,
		PacketTimeout:        2 * time.Second,
		FrameRetention:       10 * time.Second,
	}
}

// Stats holds the cumulative reassembly counters of spec.md §4.3.
type Stats struct {
	CompletedBuffers  int64
	Failures          int64
	Underruns         int64
	MissingPackets    int64
	ResentPackets     int64
	TransferredBytes  int64
}

// Reassembler implements the frame state machine of spec.md §4.3: one
// in-flight frame at a time, keyed by frame_id, fed by ProcessPacket
// and emitting completed buffer.Buffers in frame-start order (P2).
//
// Grounded on the teacher's startStreamLoop (device/device.go): a sole
// owner of the receive path, reusable buffers pulled from a pool,
// completed data delivered over a channel. Differs deliberately from
// the teacher's panic-on-error style per spec.md §7: the receive path
// never aborts on a single bad frame, it records a terminal Status on
// the Buffer instead. Timeout/resend policy state machine grounded on
// original_source/arvgvsp.c.
type Reassembler struct {
	cfg    Config
	pool   *buffer.Pool
	input  <-chan *buffer.Buffer
	output chan *buffer.Buffer
	resend ResendFunc
	log    *avlog.Logger

	stats struct {
		completed, failures, underruns, missing, resent, bytes atomic.Int64
	}

	cur *frameState
}

type frameState struct {
	buf               *buffer.Buffer
	frameID           uint64
	idSpace           uint64
	highestContiguous uint32
	haveFirst         bool
	pendingGaps       map[uint32]bool
	resendBytesUsed   int
	payloadSize       int
	expectedEnd       uint32 // trailer's packet id: one past the last payload id
	haveExpectedEnd   bool
	start             time.Time
	lastPacket        time.Time

	// parts maps a multipart LEADER's declared component id to the byte
	// region it owns inside buf.Data. Nil for single-part frames.
	parts map[uint32]partRegion
}

// partRegion is the byte range of buf.Data reserved for one multipart
// component, laid out back-to-back in LEADER declaration order.
type partRegion struct {
	baseOffset int
	size       int
}

// NewReassembler constructs a Reassembler. input supplies free
// buffer.Buffers (sized at least cfg estimate); output receives
// completed ones (any terminal Status). resend may be nil, in which
// case ResendAlways behaves as ResendNever.
func NewReassembler(cfg Config, pool *buffer.Pool, input <-chan *buffer.Buffer, resend ResendFunc) *Reassembler {
	return &Reassembler{
		cfg:    cfg,
		pool:   pool,
		input:  input,
		output: make(chan *buffer.Buffer, 8),
		resend: resend,
		log:    avlog.New("gvsp"),
	}
}

// Output returns the channel completed buffers are delivered on.
func (r *Reassembler) Output() <-chan *buffer.Buffer { return r.output }

// Stats returns a snapshot of the cumulative counters.
func (r *Reassembler) Stats() Stats {
	return Stats{
		CompletedBuffers: r.stats.completed.Load(),
		Failures:         r.stats.failures.Load(),
		Underruns:        r.stats.underruns.Load(),
		MissingPackets:   r.stats.missing.Load(),
		ResentPackets:    r.stats.resent.Load(),
		TransferredBytes: r.stats.bytes.Load(),
	}
}

// ProcessPacket feeds one received GVSP datagram into the state
// machine. header and payload must already be parsed/sliced by the
// caller (the stream package's receive loop owns the socket and calls
// this once per datagram, never aborting on a returned error — errors
// here are recorded on buffer status, not propagated as fatal).
func (r *Reassembler) ProcessPacket(h Header, payload []byte, now time.Time) error {
	switch h.ContentType {
	case ContentTypeLeader:
		return r.onLeader(h, payload, now)
	case ContentTypePayload:
		return r.onPayload(h, payload, now)
	case ContentTypeMultipart:
		return r.onMultipart(h, payload, now)
	case ContentTypeTrailer:
		return r.onTrailer(h, payload, now)
	default:
		r.log.Printf("ignoring unsupported content type %v", h.ContentType)
		return nil
	}
}

func (r *Reassembler) onLeader(h Header, payload []byte, now time.Time) error {
	if r.cur != nil {
		r.finalize(StatusFor(MissingPackets), now)
	}

	lp, err := ParseLeaderPayload(payload)
	if err != nil {
		r.log.Printf("malformed leader for frame %d: %v", h.FrameID, err)
		return err
	}

	select {
	case buf, ok := <-r.input:
		if !ok {
			r.stats.underruns.Add(1)
			return fmt.Errorf("gvsp: input queue closed")
		}
		buf.FrameID = h.FrameID
		buf.TimestampNS = lp.TimestampNS
		buf.SystemTimestampNS = uint64(now.UnixNano())
		buf.Status = buffer.StatusFilling
		buf.PayloadType = buffer.PayloadType(lp.PayloadType)

		var parts map[uint32]partRegion
		if len(lp.Parts) > 0 {
			buf.Parts = buf.Parts[:0]
			parts = make(map[uint32]partRegion, len(lp.Parts))
			cursor := 0
			for _, pd := range lp.Parts {
				buf.Parts = append(buf.Parts, buffer.Part{
					DataOffset:  cursor,
					Size:        int(pd.Size),
					ComponentID: pd.ComponentID,
					DataType:    pd.DataType,
					PixelFormat: buffer.PixelFormat(pd.PixelFormat),
					Width:       pd.Width, Height: pd.Height,
					XOffset: pd.XOffset, YOffset: pd.YOffset,
				})
				parts[pd.ComponentID] = partRegion{baseOffset: cursor, size: int(pd.Size)}
				cursor += int(pd.Size)
			}
		} else if lp.Width > 0 && lp.Height > 0 {
			buf.Parts = append(buf.Parts[:0], buffer.Part{
				Width: lp.Width, Height: lp.Height,
				XOffset: lp.XOffset, YOffset: lp.YOffset,
				PixelFormat: buffer.PixelFormat(lp.PixelFormat),
			})
		}

		r.cur = &frameState{
			buf:         buf,
			frameID:     h.FrameID,
			idSpace:     h.IDSpace(),
			payloadSize: r.cfg.PayloadPacketSize,
			pendingGaps: make(map[uint32]bool),
			parts:       parts,
			start:       now,
			lastPacket:  now,
		}
		if buf.PayloadType == buffer.PayloadMultipart && parts == nil {
			r.finalize(buffer.StatusPayloadNotSupported, now)
		}
		return nil
	default:
		r.stats.underruns.Add(1)
		return fmt.Errorf("gvsp: no free buffer for frame %d", h.FrameID)
	}
}

func (r *Reassembler) onPayload(h Header, payload []byte, now time.Time) error {
	if r.cur == nil || r.cur.frameID != h.FrameID {
		return fmt.Errorf("gvsp: payload for frame %d with no active frame (late or unknown)", h.FrameID)
	}
	f := r.cur
	f.lastPacket = now

	offset := int(h.PacketID-1) * f.payloadSize
	end := offset + len(payload)
	if end > len(f.buf.Data) {
		f.buf.Status = buffer.StatusSizeMismatch
		r.finalize(0, now)
		return fmt.Errorf("gvsp: payload for frame %d overruns buffer", h.FrameID)
	}
	n := copy(f.buf.Data[offset:end], payload)
	f.buf.ReceivedSize += n
	r.stats.bytes.Add(int64(n))

	r.recordArrival(f, h.PacketID, now)
	return nil
}

// onMultipart handles a MULTIPART packet (spec.md §4.3): its own
// part-id/byte-offset header selects which component region (declared
// by the multipart LEADER, see onLeader) the remaining bytes land in,
// in place of PAYLOAD's implied packet_id*payload_packet_size offset.
// Gap tracking and resend share the single per-frame packet id sequence
// with onPayload, since MULTIPART packets are numbered from the same
// space as ordinary PAYLOAD packets.
func (r *Reassembler) onMultipart(h Header, payload []byte, now time.Time) error {
	if r.cur == nil || r.cur.frameID != h.FrameID {
		return fmt.Errorf("gvsp: multipart payload for frame %d with no active frame (late or unknown)", h.FrameID)
	}
	f := r.cur
	f.lastPacket = now

	hdr, n, err := ParseMultipartHeader(payload)
	if err != nil {
		return fmt.Errorf("gvsp: malformed multipart header for frame %d: %w", h.FrameID, err)
	}
	data := payload[n:]

	region, ok := f.parts[hdr.PartID]
	if !ok {
		r.log.Printf("frame %d: multipart packet for undeclared part %d, dropping", h.FrameID, hdr.PartID)
		return nil
	}

	offset := region.baseOffset + int(hdr.ByteOffset)
	end := offset + len(data)
	if int(hdr.ByteOffset) < 0 || end > region.baseOffset+region.size || end > len(f.buf.Data) {
		f.buf.Status = buffer.StatusSizeMismatch
		r.finalize(0, now)
		return fmt.Errorf("gvsp: multipart payload for frame %d part %d overruns its region", h.FrameID, hdr.PartID)
	}
	copied := copy(f.buf.Data[offset:end], data)
	f.buf.ReceivedSize += copied
	r.stats.bytes.Add(int64(copied))

	r.recordArrival(f, h.PacketID, now)
	return nil
}

// recordArrival updates the contiguous high-water mark and the
// pending-gap set (spec.md §4.3 points 2-4), issuing a resend for the
// newly opened gap if the policy calls for it.
func (r *Reassembler) recordArrival(f *frameState, id uint32, now time.Time) {
	if !f.haveFirst {
		if id != 1 {
			for gap := uint32(1); gap < id; gap++ {
				f.pendingGaps[gap] = true
			}
			r.maybeResend(f, 1, id-1, now)
		}
		f.highestContiguous = id
		f.haveFirst = true
		return
	}

	if id <= f.highestContiguous {
		delete(f.pendingGaps, id)
		return
	}

	if id == f.highestContiguous+1 {
		f.highestContiguous = id
		return
	}

	first := f.highestContiguous + 1
	last := id - 1
	for gap := first; gap <= last; gap++ {
		f.pendingGaps[gap] = true
	}
	f.highestContiguous = id
	r.maybeResend(f, first, last, now)
}

func (r *Reassembler) maybeResend(f *frameState, first, last uint32, now time.Time) {
	if r.cfg.ResendPolicy != ResendAlways || r.resend == nil {
		return
	}
	count := int(last-first) + 1
	bytesRequested := count * f.payloadSize
	budget := int(r.cfg.PacketRequestRatio * float64(len(f.buf.Data)))
	if f.resendBytesUsed+bytesRequested > budget {
		r.log.Printf("frame %d: resend cap reached, suppressing further resends", f.frameID)
		return
	}
	f.resendBytesUsed += bytesRequested
	r.stats.resent.Add(int64(count))
	if err := r.resend(f.frameID, first, last); err != nil {
		r.log.Printf("frame %d: resend request failed: %v", f.frameID, err)
	}
}

func (r *Reassembler) onTrailer(h Header, payload []byte, now time.Time) error {
	if r.cur == nil || r.cur.frameID != h.FrameID {
		return fmt.Errorf("gvsp: trailer for frame %d with no active frame", h.FrameID)
	}
	f := r.cur
	if _, err := ParseTrailerPayload(payload); err != nil {
		r.log.Printf("malformed trailer for frame %d: %v", h.FrameID, err)
	}
	f.expectedEnd = h.PacketID
	f.haveExpectedEnd = true

	if len(f.pendingGaps) == 0 {
		r.finalize(buffer.StatusSuccess, now)
	} else {
		r.finalize(buffer.StatusMissingPackets, now)
	}
	return nil
}

// finalize closes out the current frame with the given status (0 means
// "use whatever status is already set on the buffer"), delivers it to
// output, and clears cur.
func (r *Reassembler) finalize(status buffer.Status, now time.Time) {
	f := r.cur
	if f == nil {
		return
	}
	if status != 0 {
		f.buf.Status = status
	}
	switch f.buf.Status {
	case buffer.StatusSuccess:
		r.stats.completed.Add(1)
	default:
		r.stats.failures.Add(1)
	}
	if len(f.pendingGaps) > 0 {
		r.stats.missing.Add(int64(len(f.pendingGaps)))
	}
	r.output <- f.buf
	r.cur = nil
}

// Tick should be called periodically (e.g. every few milliseconds) by
// the owning stream's receive loop to enforce the three timeouts of
// spec.md §4.3 point 6.
func (r *Reassembler) Tick(now time.Time) {
	f := r.cur
	if f == nil {
		return
	}
	if now.Sub(f.start) > r.cfg.FrameRetention {
		f.buf.Status = buffer.StatusTimeout
		r.finalize(0, now)
		return
	}
	idle := now.Sub(f.lastPacket)
	threshold := r.cfg.PacketTimeout
	if !f.haveFirst {
		threshold = r.cfg.InitialPacketTimeout
	}
	if idle > threshold {
		f.buf.Status = buffer.StatusTimeout
		r.finalize(0, now)
	}
}

// MissingPackets is a sentinel passed to finalize's status parameter
// callers that want the "Missing_Packets" outcome without importing
// buffer directly at the call site.
const MissingPackets = 1

// StatusFor maps an internal sentinel to its buffer.Status, used by
// onLeader when an in-flight frame is abandoned by a new leader.
func StatusFor(sentinel int) buffer.Status {
	switch sentinel {
	case MissingPackets:
		return buffer.StatusMissingPackets
	default:
		return buffer.StatusAborted
	}
}
