// Package chunkdata parses the trailing chunk-data records appended to a
// streamed image buffer's payload (spec.md §4.5, §6.5): a reverse-ordered
// list of (id uint32, size uint32) trailers, each preceded by size bytes
// of chunk payload.
//
// Layout read backwards from the buffer's received size:
//
//	offset := received_size
//	loop:
//	    record := bytes[offset-8 : offset]
//	    id  := u32(record[0:4])
//	    sz  := u32(record[4:8])
//	    payload := bytes[offset-8-sz : offset-8]
//	    if id == target: return payload
//	    offset -= 8 + sz
//	    if offset <= 0: return NotFound
package chunkdata

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aravis-go/aravis/buffer"
)

// ErrNotFound is returned when no chunk record matches the requested id.
var ErrNotFound = errors.New("chunkdata: not found")

// ErrMalformed is returned when a declared chunk size would extend
// before the start of the buffer's data.
var ErrMalformed = errors.New("chunkdata: malformed chunk list")

const recordSize = 8

// Entry is one parsed chunk record.
type Entry struct {
	ID      uint32
	Payload []byte
}

// byteOrder returns the binary.ByteOrder implied by the buffer's
// recorded chunk endianness.
func byteOrder(e buffer.Endianness) binary.ByteOrder {
	if e == buffer.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Find walks the chunk list at the tail of b.Data[:b.ReceivedSize],
// record by record from the end, and returns the payload for the first
// matching chunk id. It stops as soon as the id is found, so it never
// needs to walk past the real chunk records into whatever (non-chunk)
// data precedes them. Returns ErrNotFound if the walk reaches byte 0
// without a match, ErrMalformed if a record's declared size would
// extend before byte 0 of the buffer first.
func Find(b *buffer.Buffer, id uint32) ([]byte, error) {
	var found []byte
	err := walk(b, func(e Entry) bool {
		if e.ID == id {
			found = e.Payload
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("chunkdata: id 0x%08x: %w", id, ErrNotFound)
	}
	return found, nil
}

// Parse returns every chunk record in the buffer's tail, in the order
// they are encountered walking backward from ReceivedSize (i.e. the last
// appended record first). Intended for buffers whose entire declared
// chunk region is made of valid records; callers that only need one
// feature's value should prefer Find, which can stop early.
func Parse(b *buffer.Buffer) ([]Entry, error) {
	var entries []Entry
	err := walk(b, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

// walk invokes visit for each chunk record found scanning backward from
// ReceivedSize, stopping when visit returns false, when a record's
// declared size would extend before byte 0, or when offset reaches 0.
func walk(b *buffer.Buffer, visit func(Entry) bool) error {
	if !b.HasChunks {
		return nil
	}
	order := byteOrder(b.ChunkEndianness)
	data := b.Data
	offset := b.ReceivedSize

	for offset > 0 {
		if offset < recordSize {
			return fmt.Errorf("chunkdata: truncated record at offset %d: %w", offset, ErrMalformed)
		}
		record := data[offset-recordSize : offset]
		id := order.Uint32(record[0:4])
		size := order.Uint32(record[4:8])

		payloadStart := offset - recordSize - int(size)
		if payloadStart < 0 {
			return fmt.Errorf("chunkdata: record at offset %d declares size %d past buffer start: %w", offset, size, ErrMalformed)
		}

		if !visit(Entry{ID: id, Payload: data[payloadStart : offset-recordSize]}) {
			return nil
		}
		offset = payloadStart
	}
	return nil
}

// Integer reads a chunk payload as a big/little-endian (per b's
// ChunkEndianness) unsigned 32-bit integer. The featureName argument is
// used only for the returned error's context, matching the genicam chunk
// port's access-by-name convention.
func Integer(b *buffer.Buffer, id uint32, featureName string) (uint32, error) {
	payload, err := Find(b, id)
	if err != nil {
		return 0, fmt.Errorf("chunkdata: feature %s: %w", featureName, err)
	}
	if len(payload) < 4 {
		return 0, fmt.Errorf("chunkdata: feature %s: payload too short: %w", featureName, ErrMalformed)
	}
	return byteOrder(b.ChunkEndianness).Uint32(payload[:4]), nil
}

// String reads a chunk payload as a NUL-terminated (or full-length, if no
// NUL is present) ASCII string.
func String(b *buffer.Buffer, id uint32, featureName string) (string, error) {
	payload, err := Find(b, id)
	if err != nil {
		return "", fmt.Errorf("chunkdata: feature %s: %w", featureName, err)
	}
	end := len(payload)
	for i, c := range payload {
		if c == 0 {
			end = i
			break
		}
	}
	return string(payload[:end]), nil
}
