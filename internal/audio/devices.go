package audio

import (
	"fmt"
	"sort"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio device in a Go-friendly way.
type Device struct {
	Name            string
	MaxInput        int
	MaxOutput       int
	DefaultSampleHz float64
	OutputLatencyMs float64
	HostAPI         string
	IsDefaultOutput bool
}

// ListDevices returns the devices that can play audio, sorted by host and
// name.
func ListDevices() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	var defaultOutputIndex = -1
	if def, err := portaudio.DefaultOutputDevice(); err == nil && def != nil {
		defaultOutputIndex = def.Index
	}

	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxOutputChannels == 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				MaxInput:        d.MaxInputChannels,
				MaxOutput:       d.MaxOutputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				OutputLatencyMs: d.DefaultLowOutputLatency.Seconds() * 1000,
				HostAPI:         host.Name,
				IsDefaultOutput: d.Index == defaultOutputIndex,
			})
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})

	return devices, nil
}
