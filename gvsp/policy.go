package gvsp

// ResendPolicy selects how the reassembler reacts to a packet-id gap
// (spec.md §4.3 point 4).
type ResendPolicy int

const (
	// ResendNever means gaps permanently end the frame in
	// Missing_Packets; no PACKET_RESEND_CMD is ever issued.
	ResendNever ResendPolicy = iota
	// ResendAlways means every gap immediately issues a resend
	// command for the contiguous missing range, subject to
	// PacketRequestRatio.
	ResendAlways
)

func (p ResendPolicy) String() string {
	switch p {
	case ResendNever:
		return "Never"
	case ResendAlways:
		return "Always"
	default:
		return "Unknown"
	}
}
