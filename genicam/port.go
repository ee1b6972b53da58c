package genicam

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Port is the device-access backend a Register-family node resolves
// through (spec.md §3 "Port node kind ... the device access backend").
// The feature engine never talks to a transport or a gvcp.Client
// directly; device wires its Device up as the Document's default Port
// so genicam stays free of any transport/gvcp import, matching spec.md
// §2's layering (feature engine -> device memory operations).
type Port interface {
	ReadMemory(ctx context.Context, address uint64, size uint32) ([]byte, error)
	WriteMemory(ctx context.Context, address uint64, data []byte) error
}

// RegisterPort is the narrow 32-bit register access a Port backend may
// additionally expose, distinct from the generic memory commands
// (spec.md §4.2: "addresses smaller than 32 bits use the narrow
// register commands"). device.Device satisfies this for every backend;
// Document routes a register-family node's 4-byte accesses through it
// instead of ReadMemory/WriteMemory when the device requires the
// legacy GenICam 1.0 register-access mechanism (spec.md §9) — some
// firmware families only honour the dedicated register commands for
// those accesses.
type RegisterPort interface {
	ReadRegister(ctx context.Context, address uint64) (uint32, error)
	WriteRegister(ctx context.Context, address uint64, value uint32) error
}

// order returns the byte order to use for a register access, selecting
// between GVCP's big-endian default and U3V's little-endian default per
// spec.md §4.4.3.
func (bo ByteOrder) order() binary.ByteOrder {
	if bo == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// readInt reads an n-byte integer at address through port, interpreting
// it per order and sign.
func readInt(ctx context.Context, p Port, address uint64, n int, order ByteOrder, sign Sign) (int64, error) {
	if n <= 0 || n > 8 {
		n = 4
	}
	raw, err := p.ReadMemory(ctx, address, uint32(n))
	if err != nil {
		return 0, err
	}
	if len(raw) < n {
		return 0, fmt.Errorf("genicam: short read at 0x%x: got %d bytes, want %d", address, len(raw), n)
	}
	var u uint64
	if order == LittleEndian {
		for i := n - 1; i >= 0; i-- {
			u = u<<8 | uint64(raw[i])
		}
	} else {
		for i := 0; i < n; i++ {
			u = u<<8 | uint64(raw[i])
		}
	}
	if sign == Unsigned || n == 8 {
		return int64(u), nil
	}
	signBit := int64(1) << uint(n*8-1)
	v := int64(u)
	if v&signBit != 0 {
		v -= int64(1) << uint(n*8)
	}
	return v, nil
}

// writeInt writes an n-byte integer at address through port.
func writeInt(ctx context.Context, p Port, address uint64, n int, order ByteOrder, value int64) error {
	if n <= 0 || n > 8 {
		n = 4
	}
	buf := make([]byte, n)
	u := uint64(value)
	if order == LittleEndian {
		for i := 0; i < n; i++ {
			buf[i] = byte(u)
			u >>= 8
		}
	} else {
		for i := n - 1; i >= 0; i-- {
			buf[i] = byte(u)
			u >>= 8
		}
	}
	return p.WriteMemory(ctx, address, buf)
}

// chunkPort is a Port backed by one Buffer's trailing chunk list,
// implementing spec.md §4.5 "the port's read operation looks up a
// chunk id ... and returns the slice at the requested offset inside
// that chunk." It is bound to exactly one buffer for the duration of a
// chunk parse, per spec.md §9's "scoped loan" replacement for the
// original's weak ArvGc->ArvBuffer reference.
type chunkPort struct {
	find func(id uint32) ([]byte, error)
}

func (c *chunkPort) ReadMemory(_ context.Context, address uint64, size uint32) ([]byte, error) {
	id := uint32(address >> 32)
	offset := uint32(address & 0xffffffff)
	payload, err := c.find(id)
	if err != nil {
		return nil, err
	}
	end := offset + size
	if end > uint32(len(payload)) {
		return nil, fmt.Errorf("genicam: chunk 0x%x offset %d+%d exceeds payload size %d", id, offset, size, len(payload))
	}
	return payload[offset:end], nil
}

func (c *chunkPort) WriteMemory(context.Context, uint64, []byte) error {
	return fmt.Errorf("genicam: chunk port is read-only: %w", ErrAccessDenied)
}

// chunkAddress packs a chunk id and an in-chunk byte offset into the
// single 64-bit address chunkPort.ReadMemory expects, the same way a
// StructEntry's Bit range packs into a register address space.
func chunkAddress(id uint32, offset uint32) uint64 {
	return uint64(id)<<32 | uint64(offset)
}
