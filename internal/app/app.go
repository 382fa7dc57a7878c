package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dsalearning/dsa-recorder/internal/audio"
	"github.com/dsalearning/dsa-recorder/internal/config"
	"github.com/dsalearning/dsa-recorder/internal/permissions"
	"github.com/dsalearning/dsa-recorder/internal/storage"
	"github.com/rs/zerolog"
)

// Recorder is the capture controller as seen by the command layer.
type Recorder interface {
	Start(ctx context.Context, req audio.StartRequest) (*audio.SessionInfo, error)
	Stop(ctx context.Context) (*audio.SessionInfo, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	RefreshDevices(ctx context.Context) ([]audio.Device, error)
	SwitchDevice(ctx context.Context, name string) error
	Close() error
}

// RecordingStore persists metadata of finished recordings.
type RecordingStore interface {
	SaveRecording(ctx context.Context, in storage.NewRecording) (*storage.Recording, error)
	Recordings(ctx context.Context) ([]storage.Recording, error)
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetPaused()
	SetError()
}

type Config struct {
	Recorder      Recorder
	Store         RecordingStore // Optional - recordings are not persisted when nil
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
	Now           func() time.Time
}

// RecordingInfo names the file a recording is written to.
type RecordingInfo struct {
	Filename string
	Filepath string
}

// StopResult describes a finished recording. Duration is the length of the
// audio in the file; Elapsed is wall time minus pauses.
type StopResult struct {
	RecordingInfo
	Device    string
	Duration  time.Duration
	Elapsed   time.Duration
	Recording *storage.Recording
}

// State is a snapshot of the current recording for display.
type State struct {
	IsRecording      bool
	IsPaused         bool
	CurrentRecording string
	StartTime        *time.Time
	ElapsedSeconds   int64
}

type current struct {
	info   RecordingInfo
	cardID string
	clock  *sessionClock

	// stopped is closed once the recorder has answered Stop; stopSess and
	// stopErr hold that answer.
	stopped  chan struct{}
	stopSess *audio.SessionInfo
	stopErr  error
}

type startResult struct {
	sess *audio.SessionInfo
	err  error
}

type App struct {
	rec    Recorder
	store  RecordingStore
	cfg    *config.Config
	log    zerolog.Logger
	status StatusUpdater
	now    func() time.Time

	mu       sync.Mutex
	current  *current
	lastPath string

	// inflight counts recorder commands still running for callers that
	// stopped waiting.
	inflight sync.WaitGroup
}

func New(cfg Config) *App {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		rec:    cfg.Recorder,
		store:  cfg.Store,
		cfg:    cfg.Config,
		log:    cfg.Logger,
		status: cfg.StatusUpdater,
		now:    cfg.Now,
	}
}

// RecordingFilename returns the file name for a recording started at t.
func RecordingFilename(t time.Time) string {
	return "recording_" + t.UTC().Format("20060102_150405") + ".wav"
}

// StartRecording begins a new recording in the recordings directory. cardID
// attaches the recording to a card once it is stopped; an empty cardID
// records without persisting metadata.
//
// If ctx ends before the recorder answers, the start is reported as failed
// and a session the recorder opens afterwards is stopped and its file
// removed.
func (a *App) StartRecording(ctx context.Context, cardID string) (RecordingInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RecordingInfo{}, fmt.Errorf("failed to start recording: %w", err)
	}
	if a.current != nil {
		return RecordingInfo{}, fmt.Errorf("failed to start recording: %w", audio.ErrAlreadyRecording)
	}

	dir, err := a.cfg.EnsureRecordingsDir()
	if err != nil {
		a.setError()
		return RecordingInfo{}, err
	}

	started := a.now()
	path := uniquePath(dir, RecordingFilename(started))
	info := RecordingInfo{Filename: filepath.Base(path), Filepath: path}

	req := audio.StartRequest{
		Path:           path,
		SampleRateHint: a.cfg.Audio.SampleRateHint,
		ChannelHint:    a.cfg.Audio.ChannelHint,
	}
	done := make(chan startResult, 1)
	go func() {
		sess, err := a.rec.Start(context.WithoutCancel(ctx), req)
		done <- startResult{sess: sess, err: err}
	}()

	var res startResult
	select {
	case res = <-done:
	case <-ctx.Done():
		a.inflight.Add(1)
		go a.abandonStart(done, path)
		a.log.Error().Err(ctx.Err()).Str("file", info.Filename).Msg("Gave up waiting for recording to start")
		a.setError()
		return RecordingInfo{}, fmt.Errorf("failed to start recording: %w", ctx.Err())
	}

	sess, err := res.sess, res.err
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		a.setError()
		return RecordingInfo{}, fmt.Errorf("failed to start recording: %w", err)
	}

	a.current = &current{info: info, cardID: cardID, clock: newSessionClock(started)}
	a.log.Info().
		Str("file", info.Filename).
		Str("device", sess.Device).
		Int("sample_rate", sess.Config.SampleRate).
		Msg("Recording")
	if a.status != nil {
		a.status.SetRecording()
	}
	return info, nil
}

// uniquePath picks a free name so an earlier take started within the same
// second is kept.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}

// abandonStart waits out a start whose caller gave up. The recorder still
// runs the command, so a session it opened is stopped again.
func (a *App) abandonStart(done <-chan startResult, path string) {
	defer a.inflight.Done()

	res := <-done
	if res.err != nil {
		return
	}
	if _, err := a.rec.Stop(context.Background()); err != nil {
		a.log.Error().Err(err).Str("file", path).Msg("Failed to stop abandoned recording")
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.log.Warn().Err(err).Str("file", path).Msg("Failed to remove abandoned recording")
	}
	a.log.Warn().Str("file", path).Msg("Discarded recording that started after its caller gave up")
}

// StopRecording finalizes the recording and, when it belongs to a card,
// saves its metadata. The result is returned alongside a metadata error
// because the audio file itself is intact.
//
// If ctx ends before the recorder answers, the stop still completes in the
// background: metadata is saved and the recording cleared. A later call
// waits for that same stop instead of issuing another.
func (a *App) StopRecording(ctx context.Context) (StopResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current
	if cur == nil {
		return StopResult{}, fmt.Errorf("failed to stop recording: %w", audio.ErrNotRecording)
	}

	if cur.stopped == nil {
		cur.stopped = make(chan struct{})
		a.inflight.Add(1)
		go a.awaitStop(context.WithoutCancel(ctx), cur, cur.stopped)
	}
	select {
	case <-cur.stopped:
	case <-ctx.Done():
		return StopResult{}, fmt.Errorf("failed to stop recording: %w", ctx.Err())
	}
	return a.finishStop(ctx, cur)
}

// awaitStop sends Stop for cur. When no caller is left waiting for the
// answer it completes the bookkeeping itself.
func (a *App) awaitStop(ctx context.Context, cur *current, stopped chan struct{}) {
	defer a.inflight.Done()

	cur.stopSess, cur.stopErr = a.rec.Stop(ctx)
	close(stopped)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != cur || cur.stopped != stopped {
		return
	}
	if _, err := a.finishStop(ctx, cur); err != nil {
		a.log.Error().Err(err).Str("file", cur.info.Filename).Msg("Stop completed after its caller gave up")
	}
}

// finishStop records the outcome of cur's stop. The caller holds a.mu and
// cur.stopped is closed.
func (a *App) finishStop(ctx context.Context, cur *current) (StopResult, error) {
	sess, err := cur.stopSess, cur.stopErr
	if sess == nil {
		if errors.Is(err, audio.ErrNotRecording) {
			// The controller already finalized it, e.g. on shutdown.
			a.current = nil
			a.setIdle()
		} else {
			// Still recording as far as we know; let the next call retry.
			cur.stopped = nil
			a.setError()
		}
		return StopResult{}, fmt.Errorf("failed to stop recording: %w", err)
	}

	a.current = nil
	a.lastPath = cur.info.Filepath
	res := StopResult{
		RecordingInfo: cur.info,
		Device:        sess.Device,
		Duration:      sess.Duration,
		Elapsed:       cur.clock.elapsed(a.now()),
	}
	if err != nil {
		a.log.Error().Err(err).Str("file", cur.info.Filename).Msg("Recording was not finalized cleanly")
		a.setError()
		return res, fmt.Errorf("failed to stop recording: %w", err)
	}

	a.log.Info().
		Str("file", cur.info.Filename).
		Dur("duration", res.Duration).
		Int64("frames", sess.Frames).
		Msg("Recording saved")

	if a.store != nil && cur.cardID != "" {
		rec, err := a.store.SaveRecording(ctx, storage.NewRecording{
			CardID:   cur.cardID,
			Filename: cur.info.Filename,
			Filepath: cur.info.Filepath,
			Duration: res.Duration,
		})
		if err != nil {
			a.log.Error().Err(err).Str("file", cur.info.Filename).Msg("Failed to save recording metadata")
			a.setError()
			return res, fmt.Errorf("failed to save recording metadata: %w", err)
		}
		res.Recording = rec
	}

	a.setIdle()
	return res, nil
}

func (a *App) PauseRecording(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return fmt.Errorf("failed to pause recording: %w", audio.ErrNotRecording)
	}
	if err := a.rec.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause recording: %w", err)
	}
	a.current.clock.pause(a.now())
	a.log.Info().Msg("Recording paused")
	if a.status != nil {
		a.status.SetPaused()
	}
	return nil
}

func (a *App) ResumeRecording(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return fmt.Errorf("failed to resume recording: %w", audio.ErrNotRecording)
	}
	if err := a.rec.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume recording: %w", err)
	}
	a.current.clock.resume(a.now())
	a.log.Info().Msg("Recording resumed")
	if a.status != nil {
		a.status.SetRecording()
	}
	return nil
}

// State reports the recording in progress, if any.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return State{}
	}
	start := a.current.clock.start
	return State{
		IsRecording:      !a.current.clock.paused,
		IsPaused:         a.current.clock.paused,
		CurrentRecording: a.current.info.Filename,
		StartTime:        &start,
		ElapsedSeconds:   int64(a.current.clock.elapsed(a.now()) / time.Second),
	}
}

func (a *App) IsRecording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

// ListDevices re-enumerates input devices.
func (a *App) ListDevices(ctx context.Context) ([]audio.Device, error) {
	devices, err := a.rec.RefreshDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// SetDevice selects the input device for the next recording and remembers
// it in the config file.
func (a *App) SetDevice(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rec.SwitchDevice(ctx, name); err != nil {
		return fmt.Errorf("failed to switch device: %w", err)
	}
	a.cfg.Audio.Device = name
	if err := a.cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// CheckMicrophone runs the permission pre-flight. Device queries go through
// the capture controller so the backend is only touched from its thread.
func (a *App) CheckMicrophone(ctx context.Context) (string, error) {
	return permissions.CheckMicrophone(controllerProber{ctx: ctx, rec: a.rec})
}

type controllerProber struct {
	ctx context.Context
	rec Recorder
}

func (p controllerProber) DefaultInputName() (string, error) {
	devices, err := p.rec.RefreshDevices(p.ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.Default {
			return d.Name, nil
		}
	}
	return "", audio.ErrNoDevices
}

func (a *App) Recordings(ctx context.Context) ([]storage.Recording, error) {
	if a.store == nil {
		return nil, errors.New("no recording store configured")
	}
	return a.store.Recordings(ctx)
}

// LastRecordingPath is the file of the most recently stopped recording.
func (a *App) LastRecordingPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPath
}

// AudioDataURL returns the file at path as a data: URL for embedding in a
// page.
func AudioDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Shutdown stops a recording in progress and closes the recorder once
// every outstanding recorder command has finished.
func (a *App) Shutdown(ctx context.Context) error {
	var stopErr error
	if a.IsRecording() {
		_, stopErr = a.StopRecording(ctx)
	}
	a.inflight.Wait()
	if err := a.rec.Close(); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

func (a *App) setIdle() {
	if a.status != nil {
		a.status.SetIdle()
	}
}

func (a *App) setError() {
	if a.status != nil {
		a.status.SetError()
	}
}
