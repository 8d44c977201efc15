package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// SpeakerSink plays PCM audio on an output device.
//
// PortAudio streams write fixed-size buffers, while reassembled chunks can be
// any length, so incoming frames are staged and written out frameSize samples
// at a time.
type SpeakerSink struct {
	stream     *portaudio.Stream
	sampleRate float64
	frameSize  int
	buffer     []int16
	pending    []int16
	deviceName string // empty = system default
	mu         sync.Mutex
	running    bool
}

// NewSpeakerSink creates a speaker sink. frameSize is the number of samples
// per hardware write (e.g. 1024 for ~64ms at 16kHz). deviceName may be empty
// to use the system default output.
func NewSpeakerSink(sampleRate float64, frameSize int, deviceName string) (*SpeakerSink, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("audio: invalid frame size %d", frameSize)
	}
	return &SpeakerSink{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buffer:     make([]int16, frameSize),
		deviceName: deviceName,
	}, nil
}

// Start opens and starts the output stream.
func (s *SpeakerSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: init portaudio: %w", err)
	}

	var out *portaudio.DeviceInfo
	if s.deviceName != "" {
		out = FindOutputDevice(s.deviceName)
	}
	if out == nil {
		var err error
		out, err = portaudio.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("audio: no output device: %w", err)
		}
	}

	params := portaudio.LowLatencyParameters(nil, out)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = s.sampleRate
	params.FramesPerBuffer = s.frameSize

	stream, err := portaudio.OpenStream(params, s.buffer)
	if err != nil {
		return fmt.Errorf("audio: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("audio: start playback: %w", err)
	}

	s.stream = stream
	s.running = true
	slog.Debug("speaker sink started", "device", out.Name, "rate", s.sampleRate, "frame", s.frameSize)
	return nil
}

// WriteFrame stages the samples and writes complete hardware buffers.
// Blocks while the device drains them.
func (s *SpeakerSink) WriteFrame(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("audio: speaker sink not started")
	}

	s.pending = append(s.pending, pcm...)
	for len(s.pending) >= s.frameSize {
		copy(s.buffer, s.pending[:s.frameSize])
		s.pending = s.pending[s.frameSize:]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("audio: write frame: %w", err)
		}
	}
	return nil
}

// Close pads and flushes any staged samples, then releases the device.
func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if len(s.pending) > 0 {
		copy(s.buffer, s.pending)
		for i := len(s.pending); i < s.frameSize; i++ {
			s.buffer[i] = 0
		}
		_ = s.stream.Write()
		s.pending = nil
	}

	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
	}
	return portaudio.Terminate()
}
