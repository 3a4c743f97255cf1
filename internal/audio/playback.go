package audio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Playback wraps a PortAudio output stream whose callback drives the
// pipeline, one block per callback.
type Playback struct {
	stream     *portaudio.Stream
	pipeline   *Pipeline
	sampleRate float64
	device     *portaudio.DeviceInfo
}

// Config controls how a Playback instance is created.
type Config struct {
	DeviceName string
	BlockSize  int
}

const defaultBlockSize = 512

// DeviceSampleRate returns the default rate of the output device that
// NewPlayback would pick for name.
func DeviceSampleRate(name string) (float64, error) {
	device, err := findOutputDevice(name)
	if err != nil {
		return 0, err
	}
	return device.DefaultSampleRate, nil
}

// NewPlayback opens and starts an output stream for pipeline. The stream
// runs at the pipeline's sample rate.
func NewPlayback(cfg Config, pipeline *Pipeline) (*Playback, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}

	device, err := findOutputDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	outParams := portaudio.StreamDeviceParameters{
		Device:   device,
		Channels: pipeline.Channels(),
		Latency:  device.DefaultLowOutputLatency,
	}

	pb := &Playback{
		pipeline:   pipeline,
		sampleRate: pipeline.SampleRate(),
		device:     device,
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input:           portaudio.StreamDeviceParameters{},
		Output:          outParams,
		SampleRate:      pb.sampleRate,
		FramesPerBuffer: cfg.BlockSize,
	}, pb.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	pb.stream = stream

	if err := pb.stream.Start(); err != nil {
		_ = pb.stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return pb, nil
}

// process is the audio cadence.
func (pb *Playback) process(out []float32) {
	pb.pipeline.Fill(out)
}

// Close stops and closes the underlying PortAudio stream.
func (pb *Playback) Close() error {
	if pb.stream == nil {
		return nil
	}
	if err := pb.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		return err
	}
	return pb.stream.Close()
}

// SampleRate returns the stream sample rate.
func (pb *Playback) SampleRate() float64 {
	return pb.sampleRate
}

// Device returns the PortAudio device associated with the stream.
func (pb *Playback) Device() *portaudio.DeviceInfo {
	return pb.device
}

func findOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findOutputDeviceByName(name)
	}

	if dev, err := portaudio.DefaultOutputDevice(); err == nil && dev != nil && dev.MaxOutputChannels > 0 {
		return dev, nil
	}

	if host, err := portaudio.DefaultHostApi(); err == nil {
		if host != nil && host.DefaultOutputDevice != nil && host.DefaultOutputDevice.MaxOutputChannels > 0 {
			return host.DefaultOutputDevice, nil
		}
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	for _, d := range devices {
		if d != nil && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}

	return nil, fmt.Errorf("no suitable audio output device found")
}

func findOutputDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxOutputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), name) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("audio device %q not found", name)
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}
