// Package buffer implements the acquired-frame data model: Buffer, its
// Parts, the pixel-format bpp helper, and a pooled allocator that hands
// buffers to a stream's receive thread and recycles them once a consumer
// is done.
//
// # Usage
//
// A client creates empty buffers (or borrows a pool), queues them on a
// stream's input queue, and receives them back from the output queue
// once filled:
//
//	buf := buffer.New(1 << 20) // 1MB owned buffer
//	stream.Push(buf)
//	filled := <-stream.Output()
//	if filled.Status == buffer.StatusSuccess {
//	    process(filled.Data[:filled.ReceivedSize])
//	}
//	stream.Push(filled) // requeue for reuse
package buffer

import "time"

// Buffer represents one acquired (or about-to-be-acquired) frame.
//
// Data is either owned (allocated by New/the pool) or borrowed (supplied
// by the caller via Wrap, for zero-copy capture into caller-managed
// memory). ReceivedSize is always <= AllocatedSize; Status == StatusSuccess
// implies PayloadType and Parts[0] are consistent with the actual layout
// of Data[:ReceivedSize].
type Buffer struct {
	Data          []byte
	AllocatedSize int
	ReceivedSize  int

	Status      Status
	PayloadType PayloadType
	FrameID     uint64

	TimestampNS       uint64
	SystemTimestampNS uint64

	HasChunks       bool
	ChunkEndianness Endianness

	Parts []Part

	UserData   any
	onRelease  func(any)

	owned bool
	pool  *Pool
}

// New allocates an owned Buffer with the given capacity, status Cleared.
func New(size int) *Buffer {
	return &Buffer{
		Data:          make([]byte, size),
		AllocatedSize: size,
		Status:        StatusCleared,
		owned:         true,
	}
}

// Wrap creates a borrowed Buffer over caller-supplied memory. The
// reassembler will never resize or reallocate data; if the declared
// payload exceeds len(data), the frame fails with StatusSizeMismatch.
func Wrap(data []byte) *Buffer {
	return &Buffer{
		Data:          data,
		AllocatedSize: len(data),
		Status:        StatusCleared,
		owned:         false,
	}
}

// SetUserData attaches client context to the buffer, with an optional
// destructor invoked by Reset/Release.
func (b *Buffer) SetUserData(v any, destructor func(any)) {
	b.UserData = v
	b.onRelease = destructor
}

// Reset clears status/metadata for reuse on a stream's input queue,
// invoking any attached user-data destructor. Data and AllocatedSize are
// preserved; ReceivedSize is zeroed.
func (b *Buffer) Reset() {
	if b.onRelease != nil {
		b.onRelease(b.UserData)
	}
	b.UserData = nil
	b.onRelease = nil
	b.ReceivedSize = 0
	b.Status = StatusCleared
	b.PayloadType = PayloadUnknown
	b.FrameID = 0
	b.TimestampNS = 0
	b.SystemTimestampNS = 0
	b.HasChunks = false
	b.Parts = b.Parts[:0]
}

// Release returns the buffer to the pool it was obtained from, if any.
// Safe to call on a buffer that was not pool-allocated (no-op).
func (b *Buffer) Release() {
	if b.pool == nil {
		return
	}
	b.pool.Put(b)
}

// CaptureTime returns the device-reported timestamp as a time.Time,
// assuming TimestampNS is a Unix-epoch nanosecond count. Devices that
// report a free-running counter instead should use TimestampNS directly.
func (b *Buffer) CaptureTime() time.Time {
	return time.Unix(0, int64(b.TimestampNS))
}
