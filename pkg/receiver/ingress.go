package receiver

import (
	"errors"
	"net"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/protocol"
)

// silenceRMSFloor is the RMS level below which a chunk counts as silent.
// The devices idle at a low noise floor, so a long silent run usually means
// a stuck or muted microphone rather than a quiet room.
const silenceRMSFloor = 50.0

// Ingress validates and classifies raw datagrams. Self-contained chunks
// (chunk_count == 1) are promoted directly; fragments are handed to the
// Reassembler. Not safe for concurrent use; only the network goroutine
// touches it.
type Ingress struct {
	cfg   Config
	reasm *Reassembler
	stats *Stats
}

// NewIngress creates the ingress stage in front of the given reassembler.
func NewIngress(cfg Config, reasm *Reassembler, stats *Stats) *Ingress {
	return &Ingress{cfg: cfg, reasm: reasm, stats: stats}
}

// Ingest consumes one datagram. It returns a chunk when the datagram
// completed one (directly or via reassembly), (nil, nil) when the datagram
// was folded into a pending entry or silently filtered, and a packet-level
// error when the datagram was dropped. Errors here are always recovered by
// the caller: the stream continues.
func (in *Ingress) Ingest(datagram []byte, src *net.UDPAddr) (*Chunk, error) {
	if src != nil && !in.cfg.sourceAllowed(src.IP) {
		in.stats.PacketsDroppedFiltered.Add(1)
		return nil, nil
	}
	in.stats.PacketsReceived.Add(1)

	pkt, err := protocol.Parse(datagram)
	if err != nil {
		in.stats.PacketsDroppedMalformed.Add(1)
		if errors.Is(err, protocol.ErrPacketTooShort) {
			return nil, ErrMalformedPacket
		}
		return nil, err
	}

	var chunk *Chunk
	if pkt.Single() {
		in.reasm.NoteCompleted(pkt.Sequence)
		in.reasm.Sweep()
		chunk = &Chunk{Sequence: pkt.Sequence, Samples: audio.BytesToPCM(pkt.Payload)}
	} else {
		if chunk, err = in.reasm.Accept(pkt.Header, pkt.Payload); err != nil {
			return nil, err
		}
	}

	if chunk != nil {
		in.stats.PacketsReassembled.Add(1)
		if audio.RMS(chunk.Samples) < silenceRMSFloor {
			in.stats.SilentChunks.Add(1)
		}
	}
	return chunk, nil
}
