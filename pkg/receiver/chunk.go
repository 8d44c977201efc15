// Package receiver implements the UDP audio ingest pipeline: datagram
// ingress, fragment reassembly, jitter buffering, and the sink drive loop
// that turns a lossy packet stream into continuous PCM output.
package receiver

import "errors"

// Chunk is one reassembled unit of audio identified by its sequence number.
// Immutable once produced; ownership moves downstream with the value and the
// producer never touches it again.
type Chunk struct {
	Sequence uint16
	Samples  []int16
}

// SampleCount returns the number of PCM samples in the chunk.
func (c *Chunk) SampleCount() int {
	return len(c.Samples)
}

// Packet-level errors. These are always recovered locally: the datagram is
// dropped and counted, the stream continues.
var (
	// ErrMalformedPacket reports a datagram too short to carry the header.
	ErrMalformedPacket = errors.New("receiver: malformed packet")

	// ErrInvalidFragmentIndex reports a fragment whose index is outside its
	// declared chunk set.
	ErrInvalidFragmentIndex = errors.New("receiver: invalid fragment index")
)
