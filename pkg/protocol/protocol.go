// Package protocol defines the on-wire framing used by the STM32 sampling
// device: a fixed 8-byte big-endian header followed by raw PCM payload bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the byte size of the datagram header.
	// [sequence(2) | chunk_index(1) | chunk_count(1) | timestamp(4)] = 8 bytes
	HeaderSize = 8

	// MaxDatagram is the largest datagram the device is known to emit.
	MaxDatagram = 4096

	// SequenceModulus is the size of the 16-bit sequence ring.
	SequenceModulus = 1 << 16

	// SampleBytes is the byte width of one PCM sample (signed 16-bit LE).
	SampleBytes = 2
)

// Control datagrams sent to the device address, fire-and-forget.
const (
	StartCommand = "START"
	StopCommand  = "STOP"
)

// ErrPacketTooShort reports a datagram smaller than the fixed header.
var ErrPacketTooShort = errors.New("protocol: packet shorter than header")

// Header is the parsed 8-byte datagram header. The byte layout is the wire
// contract with the device firmware and always network byte order.
type Header struct {
	Sequence   uint16 // 16-bit ring counter identifying the chunk
	ChunkIndex uint8  // fragment position within the chunk
	ChunkCount uint8  // total fragments; 1 means self-contained
	Timestamp  uint32 // device-side milliseconds counter
}

// Single reports whether the datagram carries a complete chunk on its own.
func (h Header) Single() bool {
	return h.ChunkCount == 1
}

// Packet is one received datagram: the header plus its payload bytes.
// The payload is a copy and safe to retain after the receive buffer is reused.
type Packet struct {
	Header
	Payload []byte
}

// ParseHeader decodes the fixed header from the start of a datagram.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrPacketTooShort
	}
	return Header{
		Sequence:   binary.BigEndian.Uint16(data[0:2]),
		ChunkIndex: data[2],
		ChunkCount: data[3],
		Timestamp:  binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// Parse decodes a full datagram, copying the payload out of the receive buffer.
func Parse(data []byte) (*Packet, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.ChunkCount == 0 {
		return nil, fmt.Errorf("protocol: zero chunk count in sequence %d", h.Sequence)
	}
	p := &Packet{
		Header:  h,
		Payload: make([]byte, len(data)-HeaderSize),
	}
	copy(p.Payload, data[HeaderSize:])
	return p, nil
}

// Marshal serializes a packet back into datagram form. Used by tests and by
// tools that simulate the device.
func (p *Packet) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], p.Sequence)
	buf[2] = p.ChunkIndex
	buf[3] = p.ChunkCount
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// SeqDistance returns the signed modular distance a-b on the 16-bit sequence
// ring, in [-32768, 32767]. Positive means a is ahead of b; the wrap
// 65535 -> 0 is a distance of +1, not -65535.
func SeqDistance(a, b uint16) int {
	return int(int16(a - b))
}
