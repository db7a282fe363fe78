package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable reports that the selected device (or the default)
// could not be resolved or opened.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// DefaultDevice is the selector sentinel for "whatever the OS default is at
// open time". It is resolved on every open, never pinned to a fixed id, so
// that default-device changes can be observed and acted on.
const DefaultDevice = ""

// Device describes one audio endpoint for enumeration and selection.
type Device struct {
	Name       string  `json:"name"`
	IsInput    bool    `json:"is_input"`
	IsOutput   bool    `json:"is_output"`
	IsDefault  bool    `json:"is_default"`
	SampleRate float64 `json:"sample_rate"`
}

// ListDevices enumerates every host device. PortAudio must be initialized.
func ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, Device{
			Name:       info.Name,
			IsInput:    info.MaxInputChannels > 0,
			IsOutput:   info.MaxOutputChannels > 0,
			IsDefault:  (defIn != nil && info.Name == defIn.Name) || (defOut != nil && info.Name == defOut.Name),
			SampleRate: info.DefaultSampleRate,
		})
	}
	return out, nil
}

// findInputDevice resolves a selector to a capture-capable device. The empty
// selector resolves to the current default input at call time.
func findInputDevice(selector string) (*portaudio.DeviceInfo, error) {
	if selector == DefaultDevice || strings.EqualFold(selector, "default") {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input: %v", ErrDeviceUnavailable, err)
		}
		return info, nil
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	for _, info := range infos {
		if info.MaxInputChannels > 0 && strings.EqualFold(info.Name, selector) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device named %q", ErrDeviceUnavailable, selector)
}

// findOutputDevice resolves a selector to a playback-capable device, used by
// the loopback keepalive stream.
func findOutputDevice(selector string) (*portaudio.DeviceInfo, error) {
	if selector == DefaultDevice || strings.EqualFold(selector, "default") {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default output: %v", ErrDeviceUnavailable, err)
		}
		return info, nil
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	for _, info := range infos {
		if info.MaxOutputChannels > 0 && strings.EqualFold(info.Name, selector) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: no output device named %q", ErrDeviceUnavailable, selector)
}
