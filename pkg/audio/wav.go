package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavHeaderSize is the fixed RIFF/WAVE/fmt/data preamble length.
const wavHeaderSize = 44

// WAVWriter streams 16-bit mono PCM into a WAV container. The header is
// written up front with placeholder sizes and patched by Finalize, so the
// file grows as frames arrive, same as an open recording.
type WAVWriter struct {
	ws         io.WriteSeeker
	sampleRate int
	dataBytes  uint32
	finalized  bool
}

// NewWAVWriter writes the provisional header and returns a writer positioned
// at the start of the data chunk.
func NewWAVWriter(ws io.WriteSeeker, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}
	w := &WAVWriter{ws: ws, sampleRate: sampleRate}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WAVWriter) writeHeader() error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+w.dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(w.sampleRate)*channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(h[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], w.dataBytes)

	if _, err := w.ws.Write(h); err != nil {
		return fmt.Errorf("audio: write WAV header: %w", err)
	}
	return nil
}

// WriteSamples appends PCM samples to the data chunk.
func (w *WAVWriter) WriteSamples(pcm []int16) error {
	if w.finalized {
		return fmt.Errorf("audio: write after finalize")
	}
	data := PCMToBytes(pcm)
	if _, err := w.ws.Write(data); err != nil {
		return fmt.Errorf("audio: write WAV data: %w", err)
	}
	w.dataBytes += uint32(len(data))
	return nil
}

// DataBytes reports how many payload bytes have been written so far.
func (w *WAVWriter) DataBytes() uint32 {
	return w.dataBytes
}

// Finalize rewrites the header with the real chunk sizes. The writer is
// unusable afterwards.
func (w *WAVWriter) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: seek WAV header: %w", err)
	}
	return w.writeHeader()
}

// FileSink persists the stream to a WAV file on disk.
type FileSink struct {
	f *os.File
	w *WAVWriter
}

// NewFileSink creates (truncating) the output file and writes the header.
func NewFileSink(path string, sampleRate int) (*FileSink, error) {
	f, err := os.Create(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("audio: create %s: %w", path, err)
	}
	w, err := NewWAVWriter(f, sampleRate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FileSink{f: f, w: w}, nil
}

// WriteFrame appends the frame to the file.
func (s *FileSink) WriteFrame(pcm []int16) error {
	return s.w.WriteSamples(pcm)
}

// DataBytes reports how many payload bytes have been persisted.
func (s *FileSink) DataBytes() uint32 {
	return s.w.DataBytes()
}

// Close patches the header and closes the file.
func (s *FileSink) Close() error {
	if err := s.w.Finalize(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
