package receiver

import (
	"time"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/protocol"
)

// maxPendingAge evicts entries by wall clock when no completions are
// advancing the window (e.g. the very first chunk never completes).
const maxPendingAge = 2 * time.Second

// pending is a partially received multi-fragment chunk.
type pending struct {
	slots   [][]byte
	filled  int
	arrival time.Time
}

// Reassembler groups fragments sharing a sequence number into complete audio
// chunks and evicts entries that fall outside the sliding acceptance window.
//
// Sequence numbers arrive reordered and wrap at 65536; all distance tests use
// signed modular arithmetic so the wrap 65535 -> 0 counts as forward progress.
// Not safe for concurrent use; only the network goroutine touches it.
type Reassembler struct {
	window  int
	entries map[uint16]*pending
	stats   *Stats

	lastCompleted uint16
	hasCompleted  bool

	now func() time.Time // test seam
}

// NewReassembler creates a reassembler with the given acceptance window,
// expressed in sequence numbers.
func NewReassembler(window int, stats *Stats) *Reassembler {
	return &Reassembler{
		window:  window,
		entries: make(map[uint16]*pending),
		stats:   stats,
		now:     time.Now,
	}
}

// Accept folds one fragment into its pending entry. When the fragment
// completes the chunk set, the promoted chunk is returned and the entry
// removed. A nil chunk with nil error means the entry is still waiting.
//
// A fragment with an index outside [0, chunk_count) fails with
// ErrInvalidFragmentIndex; the fragment is dropped and the entry survives.
func (r *Reassembler) Accept(h protocol.Header, payload []byte) (*Chunk, error) {
	defer r.sweep()

	if h.ChunkIndex >= h.ChunkCount {
		r.stats.PacketsDroppedBadIndex.Add(1)
		return nil, ErrInvalidFragmentIndex
	}

	e, ok := r.entries[h.Sequence]
	if !ok {
		e = &pending{
			slots:   make([][]byte, h.ChunkCount),
			arrival: r.now(),
		}
		r.entries[h.Sequence] = e
	} else if len(e.slots) != int(h.ChunkCount) {
		// Contradicts the count announced by earlier fragments; corrupt.
		r.stats.PacketsDroppedBadIndex.Add(1)
		return nil, ErrInvalidFragmentIndex
	}

	if e.slots[h.ChunkIndex] == nil {
		e.filled++
	}
	e.slots[h.ChunkIndex] = payload // duplicates overwrite in place

	if e.filled < len(e.slots) {
		return nil, nil
	}

	var joined []byte
	for _, slot := range e.slots {
		joined = append(joined, slot...)
	}
	delete(r.entries, h.Sequence)
	r.NoteCompleted(h.Sequence)

	return &Chunk{Sequence: h.Sequence, Samples: audio.BytesToPCM(joined)}, nil
}

// NoteCompleted advances the completion high-water mark. It moves only
// forward under signed modular distance; a backward jump of more than half
// the sequence space shows up as a positive distance and is a legitimate
// wrap. Ingress calls this for self-contained chunks so singles also drive
// the staleness window.
func (r *Reassembler) NoteCompleted(seq uint16) {
	if !r.hasCompleted || protocol.SeqDistance(seq, r.lastCompleted) > 0 {
		r.lastCompleted = seq
		r.hasCompleted = true
	}
}

// Sweep evicts stale entries. An entry is stale once its sequence falls more
// than the window behind the last completed sequence, or when it has sat
// unfinished past maxPendingAge. Evicted sequences never resurrect: their
// fragments arrive into a fresh entry that is immediately stale again.
func (r *Reassembler) Sweep() {
	r.sweep()
}

func (r *Reassembler) sweep() {
	cutoff := r.now().Add(-maxPendingAge)
	for seq, e := range r.entries {
		stale := r.hasCompleted && protocol.SeqDistance(seq, r.lastCompleted) < -r.window
		if stale || e.arrival.Before(cutoff) {
			delete(r.entries, seq)
			r.stats.PacketsDroppedStale.Add(1)
		}
	}
}

// PendingCount reports how many incomplete entries are held.
func (r *Reassembler) PendingCount() int {
	return len(r.entries)
}
