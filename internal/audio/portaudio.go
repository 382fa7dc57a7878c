package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio delivers float32 buffers; the device reports its default rate
// and channel count, which is what we negotiate.
const portAudioMaxChannels = 2

type PortAudioBackend struct{}

// probeCallback only tells IsFormatSupported which sample format we use.
func probeCallback([]float32) {}

type portAudioDevice struct {
	info *portaudio.DeviceInfo
}

func (d portAudioDevice) Name() (string, error) {
	if d.info == nil || d.info.Name == "" {
		return "", errors.New("device has no name")
	}
	return d.info.Name, nil
}

// NewPortAudio initializes PortAudio. Close terminates it.
func NewPortAudio() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioBackend{}, nil
}

func (p *PortAudioBackend) InputDevices() ([]DeviceHandle, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]DeviceHandle, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, portAudioDevice{info: d})
		}
	}
	return result, nil
}

func (p *PortAudioBackend) DefaultInputName() (string, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return "", fmt.Errorf("failed to get default input device: %w", err)
	}
	return device.Name, nil
}

func (p *PortAudioBackend) Negotiate(dev DeviceHandle, hint StreamConfig) (StreamConfig, error) {
	d, ok := dev.(portAudioDevice)
	if !ok || d.info == nil {
		return StreamConfig{}, fmt.Errorf("not a PortAudio device: %T", dev)
	}

	cfg := StreamConfig{
		SampleRate: int(d.info.DefaultSampleRate),
		Channels:   min(d.info.MaxInputChannels, portAudioMaxChannels),
		Format:     FormatF32,
	}
	if err := portaudio.IsFormatSupported(p.params(d, cfg), probeCallback); err != nil {
		return StreamConfig{}, fmt.Errorf("device rejected its default config %s: %w", cfg, err)
	}

	// Prefer the caller's hint only when the device takes it as is.
	want := cfg
	if hint.SampleRate > 0 {
		want.SampleRate = hint.SampleRate
	}
	if hint.Channels > 0 && hint.Channels <= d.info.MaxInputChannels {
		want.Channels = hint.Channels
	}
	if want != cfg && portaudio.IsFormatSupported(p.params(d, want), probeCallback) == nil {
		cfg = want
	}
	return cfg, nil
}

func (p *PortAudioBackend) OpenStream(dev DeviceHandle, cfg StreamConfig, sink SampleSink) (Stream, error) {
	d, ok := dev.(portAudioDevice)
	if !ok || d.info == nil {
		return nil, fmt.Errorf("not a PortAudio device: %T", dev)
	}
	if cfg.Format != FormatF32 {
		return nil, fmt.Errorf("PortAudio streams deliver f32, not %s", cfg.Format)
	}

	stream, err := portaudio.OpenStream(p.params(d, cfg), func(in []float32) {
		sink.ProcessF32(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

func (p *PortAudioBackend) params(d portAudioDevice, cfg StreamConfig) portaudio.StreamParameters {
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   d.info,
			Channels: cfg.Channels,
			Latency:  d.info.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}
}

func (p *PortAudioBackend) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream  *portaudio.Stream
	started bool
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *portAudioStream) Close() error {
	var stopErr error
	if s.started {
		stopErr = s.stream.Stop()
		s.started = false
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
