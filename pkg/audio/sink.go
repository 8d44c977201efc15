package audio

// Sink is an output collaborator that accepts raw PCM frames in the stream's
// native encoding (signed 16-bit, mono). Frames may be any length; sinks that
// need fixed-size writes buffer internally. Close releases the underlying
// resource and flushes anything pending.
type Sink interface {
	WriteFrame(pcm []int16) error
	Close() error
}

// MultiSink fans one frame out to several sinks (e.g. speaker plus WAV file).
// The first write error is returned; remaining sinks still receive the frame.
type MultiSink []Sink

// WriteFrame writes the frame to every sink.
func (m MultiSink) WriteFrame(pcm []int16) error {
	var first error
	for _, s := range m {
		if err := s.WriteFrame(pcm); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
