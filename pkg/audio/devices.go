package audio

import (
	"github.com/gordonklaus/portaudio"
)

// DeviceEntry holds basic info about an audio output device.
type DeviceEntry struct {
	Name       string
	MaxOutputs int
	IsDefault  bool
}

// ListOutputDevices returns all available audio output devices. It manages
// its own PortAudio lifetime, so it can be called before any sink is started.
func ListOutputDevices() ([]DeviceEntry, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer func() { _ = portaudio.Terminate() }()

	defaultOut, _ := portaudio.DefaultOutputDevice()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var result []DeviceEntry
	for _, d := range devices {
		if d.MaxOutputChannels == 0 {
			continue
		}
		entry := DeviceEntry{
			Name:       d.Name,
			MaxOutputs: d.MaxOutputChannels,
		}
		if defaultOut != nil && d.Name == defaultOut.Name {
			entry.IsDefault = true
		}
		result = append(result, entry)
	}
	return result, nil
}

// FindOutputDevice returns the device matching by name, or nil.
// PortAudio must already be initialized.
func FindOutputDevice(name string) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d
		}
	}
	return nil
}
