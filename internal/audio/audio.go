package audio

import (
	"fmt"
	"strings"
)

// SampleFormat is the sample encoding delivered by an input stream.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatU16
	FormatS24
	FormatS32
	FormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatU16:
		return "u16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of one sample when delivered as raw
// little-endian bytes. S24 is packed into three bytes.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16, FormatU16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// StreamConfig describes a negotiated input stream.
type StreamConfig struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%d Hz/%d ch/%s", c.SampleRate, c.Channels, c.Format)
}

func (c StreamConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.Format.BytesPerSample() == 0 {
		return fmt.Errorf("unsupported sample format %s", c.Format)
	}
	return nil
}

// Device is an input device as presented to callers.
type Device struct {
	Name     string
	Default  bool
	Selected bool
}

// DeviceHandle is a live backend device reference. Handles are only ever
// touched by the capture goroutine.
type DeviceHandle interface {
	Name() (string, error)
}

// Stream is an open input stream. Close halts hardware capture; no sink
// callbacks are delivered after it returns.
type Stream interface {
	Start() error
	Close() error
}

// SampleSink receives captured buffers on the backend's real-time callback
// thread. Implementations must not block.
type SampleSink interface {
	ProcessF32(in []float32)
	ProcessRaw(in []byte)
}

// Backend abstracts the platform audio layer.
type Backend interface {
	// InputDevices enumerates devices that can capture.
	InputDevices() ([]DeviceHandle, error)
	// DefaultInputName reports the platform default input device name.
	DefaultInputName() (string, error)
	// Negotiate queries the device's native input configuration. The hint
	// is honoured only when the device supports it natively.
	Negotiate(dev DeviceHandle, hint StreamConfig) (StreamConfig, error)
	// OpenStream builds (but does not start) a stream delivering cfg to sink.
	OpenStream(dev DeviceHandle, cfg StreamConfig, sink SampleSink) (Stream, error)
	Close() error
}

// Backend names accepted by NewBackend.
const (
	BackendPortAudio = "portaudio"
	BackendMiniaudio = "miniaudio"
)

// NewBackend creates the named platform backend.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", BackendPortAudio:
		b, err := NewPortAudio()
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMiniaudio:
		b, err := NewMiniaudio()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}
