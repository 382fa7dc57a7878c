package audio

import (
	"errors"
	"sync"
)

type fakeDevice struct {
	name string
	err  error
}

func (d *fakeDevice) Name() (string, error) { return d.name, d.err }

func named(names ...string) []DeviceHandle {
	out := make([]DeviceHandle, 0, len(names))
	for _, n := range names {
		out = append(out, &fakeDevice{name: n})
	}
	return out
}

type fakeStream struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	startErr error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeBackend is a scriptable Backend. Errors in the *Errs slices are
// consumed one per call, in order.
type fakeBackend struct {
	mu sync.Mutex

	devices     []DeviceHandle
	defaultName string
	defaultErr  error
	enumErr     error
	config      StreamConfig

	// enumerate, when set, names the devices returned by the n-th
	// enumeration (counting from 1) instead of devices.
	enumerate func(n int) []string

	negotiateErrs []error
	openErrs      []error
	startErrs     []error

	// negotiateGate, when set, blocks Negotiate until it is closed.
	// negotiating is signalled on entry.
	negotiateGate chan struct{}
	negotiating   chan struct{}

	enumerations int
	negotiated   []string
	sink         SampleSink
	streams      []*fakeStream
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{
		devices: named(names...),
		config:  StreamConfig{SampleRate: 48000, Channels: 1, Format: FormatF32},
	}
	if len(names) > 0 {
		b.defaultName = names[0]
	}
	return b
}

func (b *fakeBackend) InputDevices() ([]DeviceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumerations++
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	if b.enumerate != nil {
		return named(b.enumerate(b.enumerations)...), nil
	}
	return append([]DeviceHandle(nil), b.devices...), nil
}

func (b *fakeBackend) DefaultInputName() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaultName, b.defaultErr
}

func (b *fakeBackend) Negotiate(dev DeviceHandle, _ StreamConfig) (StreamConfig, error) {
	b.mu.Lock()
	gate, entered := b.negotiateGate, b.negotiating
	b.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	name, _ := dev.Name()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.negotiated = append(b.negotiated, name)
	if err := pop(&b.negotiateErrs); err != nil {
		return StreamConfig{}, err
	}
	return b.config, nil
}

func (b *fakeBackend) OpenStream(_ DeviceHandle, _ StreamConfig, sink SampleSink) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := pop(&b.openErrs); err != nil {
		return nil, err
	}
	s := &fakeStream{startErr: pop(&b.startErrs)}
	b.sink = sink
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) setDevices(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = named(names...)
}

// push delivers one buffer as the real-time callback would.
func (b *fakeBackend) push(in []float32) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		panic(errors.New("no stream opened"))
	}
	sink.ProcessF32(in)
}

func (b *fakeBackend) lastStream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func constant(n int, v float32) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}
