package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// MiniaudioBackend captures through malgo. Unlike PortAudio it reports the
// device's native sample format, so buffers arrive as raw bytes and go
// through Pipeline.ProcessRaw.
type MiniaudioBackend struct {
	ctx *malgo.AllocatedContext
}

type miniaudioDevice struct {
	info malgo.DeviceInfo
}

func (d *miniaudioDevice) Name() (string, error) {
	name := d.info.Name()
	if name == "" {
		return "", errors.New("device has no name")
	}
	return name, nil
}

// NewMiniaudio initializes a malgo context on the platform's default
// backends.
func NewMiniaudio() (*MiniaudioBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	return &MiniaudioBackend{ctx: ctx}, nil
}

func (m *MiniaudioBackend) captureInfos() ([]malgo.DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	out := infos[:0]
	for i := range infos {
		// The null backend's sink is not a microphone.
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		out = append(out, infos[i])
	}
	return out, nil
}

func (m *MiniaudioBackend) InputDevices() ([]DeviceHandle, error) {
	infos, err := m.captureInfos()
	if err != nil {
		return nil, err
	}
	result := make([]DeviceHandle, 0, len(infos))
	for i := range infos {
		result = append(result, &miniaudioDevice{info: infos[i]})
	}
	return result, nil
}

func (m *MiniaudioBackend) DefaultInputName() (string, error) {
	infos, err := m.captureInfos()
	if err != nil {
		return "", err
	}
	for i := range infos {
		if infos[i].IsDefault == 1 {
			return infos[i].Name(), nil
		}
	}
	return "", errors.New("no default capture device reported")
}

// Negotiate opens the device with every parameter left unspecified so that
// miniaudio picks the native format, channel count and rate, then reads
// them back. The hint is not applied; miniaudio would silently resample.
func (m *MiniaudioBackend) Negotiate(dev DeviceHandle, _ StreamConfig) (StreamConfig, error) {
	d, ok := dev.(*miniaudioDevice)
	if !ok {
		return StreamConfig{}, fmt.Errorf("not a miniaudio device: %T", dev)
	}

	probe, err := malgo.InitDevice(m.ctx.Context, m.deviceConfig(d, StreamConfig{}), malgo.DeviceCallbacks{})
	if err != nil {
		return StreamConfig{}, fmt.Errorf("failed to probe device: %w", err)
	}
	defer probe.Uninit()

	cfg := StreamConfig{
		SampleRate: int(probe.SampleRate()),
		Channels:   int(probe.CaptureChannels()),
		Format:     formatFromMalgo(probe.CaptureFormat()),
	}
	if cfg.Format == FormatUnknown {
		return StreamConfig{}, fmt.Errorf("unsupported native format %v", probe.CaptureFormat())
	}
	return cfg, nil
}

func (m *MiniaudioBackend) OpenStream(dev DeviceHandle, cfg StreamConfig, sink SampleSink) (Stream, error) {
	d, ok := dev.(*miniaudioDevice)
	if !ok {
		return nil, fmt.Errorf("not a miniaudio device: %T", dev)
	}

	device, err := malgo.InitDevice(m.ctx.Context, m.deviceConfig(d, cfg), malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			sink.ProcessRaw(in)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	return &miniaudioStream{device: device}, nil
}

// deviceConfig leaves zero-valued fields of cfg to the device.
func (m *MiniaudioBackend) deviceConfig(d *miniaudioDevice, cfg StreamConfig) malgo.DeviceConfig {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = formatToMalgo(cfg.Format)
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Capture.DeviceID = d.info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	return deviceConfig
}

func (m *MiniaudioBackend) Close() error {
	err := m.ctx.Uninit()
	m.ctx.Free()
	return err
}

type miniaudioStream struct {
	device  *malgo.Device
	started bool
}

func (s *miniaudioStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	s.started = true
	return nil
}

func (s *miniaudioStream) Close() error {
	var err error
	if s.started {
		err = s.device.Stop()
		s.started = false
	}
	s.device.Uninit()
	return err
}

func formatFromMalgo(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}

func formatToMalgo(f SampleFormat) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	case FormatS32:
		return malgo.FormatS32
	case FormatF32:
		return malgo.FormatF32
	default:
		return malgo.FormatUnknown
	}
}
