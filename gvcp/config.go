package gvcp

import "time"

// clientConfig holds Client tuning parameters, set via functional
// options (grounded on the teacher's device.Option/config pattern in
// device/device_config.go).
type clientConfig struct {
	retryTimeout    time.Duration
	maxRetries      int
	maxCmdTransfer  uint32
	legacyEndianness bool
	heartbeatPeriod time.Duration
}

func defaultConfig() clientConfig {
	return clientConfig{
		retryTimeout:    100 * time.Millisecond,
		maxRetries:      3,
		maxCmdTransfer:  512,
		heartbeatPeriod: 3 * time.Second,
	}
}

// Option configures a Client at construction time.
type Option func(*clientConfig)

// WithRetryTimeout sets the timeout a Client waits for an ack before
// resending a command. Every attempt waits the same timeout; it is not
// scaled by the attempt number.
func WithRetryTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.retryTimeout = d }
}

// WithMaxRetries bounds how many times a Client resends a command
// before giving up with ErrTimeout.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) { c.maxRetries = n }
}

// WithMaxCmdTransfer sets max_cmd_transfer, the negotiated chunk size
// for memory reads/writes (spec.md §4.2; fallback 512 if never
// negotiated).
func WithMaxCmdTransfer(n uint32) Option {
	return func(c *clientConfig) { c.maxCmdTransfer = n }
}

// WithLegacyEndianness forces the legacy GenICam 1.0 register-access
// endianness mode for this device (spec.md §4.2, §9: carried forward
// verbatim from the vendor/model quirk table, never inferred).
func WithLegacyEndianness() Option {
	return func(c *clientConfig) { c.legacyEndianness = true }
}

// WithHeartbeatPeriod sets how often the Client's heartbeat goroutine
// writes to the control-channel-privilege register to retain its
// exclusive grip on the device.
func WithHeartbeatPeriod(d time.Duration) Option {
	return func(c *clientConfig) { c.heartbeatPeriod = d }
}
