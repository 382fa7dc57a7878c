package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type CommandKind int

const (
	CmdStart CommandKind = iota + 1
	CmdStop
	CmdPause
	CmdResume
	CmdRefreshDevices
	CmdSwitchDevice
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdRefreshDevices:
		return "refresh_devices"
	case CmdSwitchDevice:
		return "switch_device"
	default:
		return "unknown"
	}
}

// Command is a request for the capture goroutine. Path and the hints are
// used by CmdStart, Device by CmdSwitchDevice.
type Command struct {
	Kind           CommandKind
	Path           string
	SampleRateHint int
	ChannelHint    int
	Device         string

	reply chan Status
}

type StatusKind int

const (
	StatusStarted StatusKind = iota + 1
	StatusStopped
	StatusPaused
	StatusResumed
	StatusDevicesRefreshed
	StatusDeviceSwitched
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusStarted:
		return "started"
	case StatusStopped:
		return "stopped"
	case StatusPaused:
		return "paused"
	case StatusResumed:
		return "resumed"
	case StatusDevicesRefreshed:
		return "devices_refreshed"
	case StatusDeviceSwitched:
		return "device_switched"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionInfo describes a capture session. Frames and Duration are filled
// in when the session stops.
type SessionInfo struct {
	Path      string
	Device    string
	Config    StreamConfig
	StartedAt time.Time
	Frames    int64
	Duration  time.Duration
}

// Status is the single reply to a Command.
type Status struct {
	Kind    StatusKind
	Session *SessionInfo
	Devices []Device
	Device  string
	Err     error
}

func errorStatus(err error) Status {
	return Status{Kind: StatusError, Err: err}
}

// StartRequest is the payload of a start command.
type StartRequest struct {
	Path           string
	SampleRateHint int
	ChannelHint    int
}

type ControllerOptions struct {
	// QueueSize bounds the command queue. Defaults to 16.
	QueueSize int
	// PreferredDevice is selected by every enumeration that finds it,
	// including ones after it was unplugged and plugged back in.
	PreferredDevice string
	Logger          zerolog.Logger
	Metrics         *Metrics
	Now             func() time.Time
}

// Controller owns the audio device and stream on a dedicated goroutine
// locked to one OS thread. Commands are processed strictly in arrival
// order, one at a time, and each receives exactly one Status.
type Controller struct {
	queue     chan Command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the capture goroutine.
	backend  Backend
	registry *DeviceRegistry
	session  *activeSession
	log      zerolog.Logger
	metrics  *Metrics
	now      func() time.Time
}

type activeSession struct {
	info   SessionInfo
	state  *StateCell
	writer *WAVWriter
	stream Stream
}

// NewController starts the capture goroutine. Close must be called to stop it.
func NewController(backend Backend, opts ControllerOptions) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		queue:    make(chan Command, opts.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		backend:  backend,
		registry: NewDeviceRegistry(opts.PreferredDevice),
		log:      opts.Logger.With().Str("component", "capture").Logger(),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	go c.run()
	return c
}

// Enqueue hands cmd to the capture goroutine without waiting for it to be
// processed. The returned channel receives exactly one Status.
func (c *Controller) Enqueue(ctx context.Context, cmd Command) (<-chan Status, error) {
	cmd.reply = make(chan Status, 1)
	select {
	case <-c.quit:
		return nil, ErrControllerClosed
	default:
	}
	select {
	case c.queue <- cmd:
		return cmd.reply, nil
	case <-c.quit:
		return nil, ErrControllerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit enqueues cmd and waits for its Status. Cancelling ctx abandons the
// wait, not the command.
func (c *Controller) Submit(ctx context.Context, cmd Command) (Status, error) {
	reply, err := c.Enqueue(ctx, cmd)
	if err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-c.done:
		select {
		case st := <-reply:
			return st, nil
		default:
			return Status{}, ErrControllerClosed
		}
	}
}

func (c *Controller) do(ctx context.Context, cmd Command) (Status, error) {
	st, err := c.Submit(ctx, cmd)
	if err != nil {
		return st, err
	}
	if st.Kind == StatusError {
		return st, st.Err
	}
	return st, nil
}

func (c *Controller) Start(ctx context.Context, req StartRequest) (*SessionInfo, error) {
	st, err := c.do(ctx, Command{
		Kind:           CmdStart,
		Path:           req.Path,
		SampleRateHint: req.SampleRateHint,
		ChannelHint:    req.ChannelHint,
	})
	return st.Session, err
}

// Stop finalizes the active recording. The returned info may be non-nil
// alongside an error when the file could not be finalized cleanly.
func (c *Controller) Stop(ctx context.Context) (*SessionInfo, error) {
	st, err := c.do(ctx, Command{Kind: CmdStop})
	return st.Session, err
}

func (c *Controller) Pause(ctx context.Context) error {
	_, err := c.do(ctx, Command{Kind: CmdPause})
	return err
}

func (c *Controller) Resume(ctx context.Context) error {
	_, err := c.do(ctx, Command{Kind: CmdResume})
	return err
}

func (c *Controller) RefreshDevices(ctx context.Context) ([]Device, error) {
	st, err := c.do(ctx, Command{Kind: CmdRefreshDevices})
	return st.Devices, err
}

// SwitchDevice selects the device for the next Start. A running session
// keeps its device.
func (c *Controller) SwitchDevice(ctx context.Context, name string) error {
	_, err := c.do(ctx, Command{Kind: CmdSwitchDevice, Device: name})
	return err
}

// Close stops any active session and ends the capture goroutine.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return nil
}

func (c *Controller) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case cmd := <-c.queue:
			st := c.handle(cmd)
			c.metrics.command(cmd.Kind, st.Kind)
			if st.Kind == StatusError {
				c.log.Warn().Err(st.Err).Str("command", cmd.Kind.String()).Msg("Command failed")
			}
			cmd.reply <- st
		}
	}
}

func (c *Controller) handle(cmd Command) Status {
	switch cmd.Kind {
	case CmdStart:
		return c.handleStart(cmd)
	case CmdStop:
		return c.handleStop()
	case CmdPause:
		return c.setState(Paused, StatusPaused)
	case CmdResume:
		return c.setState(Recording, StatusResumed)
	case CmdRefreshDevices:
		return c.handleRefresh()
	case CmdSwitchDevice:
		return c.handleSwitch(cmd.Device)
	default:
		return errorStatus(fmt.Errorf("unknown command %d", cmd.Kind))
	}
}

func (c *Controller) handleStart(cmd Command) Status {
	if c.session != nil {
		return errorStatus(fmt.Errorf("%w: %s", ErrAlreadyRecording, c.session.info.Path))
	}
	if cmd.Path == "" {
		return errorStatus(errors.New("start requires an output path"))
	}

	sess, err := c.openSession(cmd)
	if err != nil {
		c.log.Warn().Err(err).Msg("Start failed, refreshing devices and retrying")
		if _, rerr := c.registry.Refresh(c.backend); rerr != nil {
			c.log.Warn().Err(rerr).Msg("Device refresh before retry failed")
		}
		var retryErr error
		sess, retryErr = c.openSession(cmd)
		if retryErr != nil {
			return errorStatus(fmt.Errorf("failed to start recording: %w; retry after device refresh: %w", err, retryErr))
		}
	}

	c.session = sess
	c.log.Info().
		Str("path", sess.info.Path).
		Str("device", sess.info.Device).
		Stringer("config", sess.info.Config).
		Msg("Recording started")

	info := sess.info
	return Status{Kind: StatusStarted, Session: &info, Device: info.Device}
}

func (c *Controller) openSession(cmd Command) (*activeSession, error) {
	if !c.registry.Populated() {
		if _, err := c.registry.Refresh(c.backend); err != nil {
			return nil, err
		}
	}
	dev, name, err := c.registry.Current()
	if err != nil {
		return nil, err
	}

	// Negotiate before creating the file: the container must be sized to
	// what the device actually delivers.
	cfg, err := c.backend.Negotiate(dev, StreamConfig{
		SampleRate: cmd.SampleRateHint,
		Channels:   cmd.ChannelHint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate input config for %q: %w", name, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("device %q: %w", name, err)
	}
	if cmd.SampleRateHint > 0 && cmd.SampleRateHint != cfg.SampleRate {
		c.log.Info().
			Int("requested", cmd.SampleRateHint).
			Int("negotiated", cfg.SampleRate).
			Msg("Using device sample rate")
	}

	writer, err := CreateWAV(cmd.Path, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	state := NewStateCell(Recording)
	pipe := NewPipeline(state, writer, cfg, c.log, c.metrics)

	stream, err := c.backend.OpenStream(dev, cfg, pipe)
	if err != nil {
		_ = writer.Discard()
		return nil, fmt.Errorf("failed to open input stream on %q: %w", name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = writer.Discard()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", name, err)
	}

	return &activeSession{
		info: SessionInfo{
			Path:      cmd.Path,
			Device:    name,
			Config:    cfg,
			StartedAt: c.now(),
		},
		state:  state,
		writer: writer,
		stream: stream,
	}, nil
}

func (c *Controller) handleStop() Status {
	if c.session == nil {
		return errorStatus(ErrNotRecording)
	}
	info, err := c.closeSession()
	if err != nil {
		st := errorStatus(err)
		st.Session = info
		return st
	}
	c.log.Info().
		Str("path", info.Path).
		Int64("frames", info.Frames).
		Dur("duration", info.Duration).
		Msg("Recording stopped")
	return Status{Kind: StatusStopped, Session: info}
}

// closeSession halts the stream before finalizing the container so the
// header reflects every sample that was accepted.
func (c *Controller) closeSession() (*SessionInfo, error) {
	s := c.session
	c.session = nil

	s.state.Set(Stopped)

	var errs []error
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close input stream: %w", err))
	}
	if err := s.writer.Close(); err != nil {
		errs = append(errs, err)
	}

	info := s.info
	info.Frames = s.writer.Frames()
	info.Duration = s.writer.Duration()
	return &info, errors.Join(errs...)
}

func (c *Controller) setState(to RecordingState, ok StatusKind) Status {
	if c.session == nil {
		return errorStatus(ErrNotRecording)
	}
	c.session.state.Set(to)
	c.log.Debug().Stringer("state", to).Msg("Recording state changed")
	return Status{Kind: ok}
}

func (c *Controller) handleRefresh() Status {
	devices, err := c.registry.Refresh(c.backend)
	if err != nil {
		return errorStatus(err)
	}
	return Status{Kind: StatusDevicesRefreshed, Devices: devices, Device: c.registry.Selected()}
}

func (c *Controller) handleSwitch(name string) Status {
	if !c.registry.Populated() {
		if _, err := c.registry.Refresh(c.backend); err != nil {
			return errorStatus(err)
		}
	}
	if err := c.registry.Select(name); err != nil {
		return errorStatus(err)
	}
	c.log.Info().Str("device", name).Msg("Input device selected")
	return Status{Kind: StatusDeviceSwitched, Device: name}
}

// shutdown finalizes any active session, then releases the backend.
func (c *Controller) shutdown() {
	if c.session != nil {
		info, err := c.closeSession()
		if err != nil {
			c.log.Error().Err(err).Str("path", info.Path).Msg("Failed to finalize recording on shutdown")
		} else {
			c.log.Info().Str("path", info.Path).Msg("Recording finalized on shutdown")
		}
	}
	if err := c.backend.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close audio backend")
	}
}
