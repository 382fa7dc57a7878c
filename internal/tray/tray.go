package tray

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dsalearning/dsa-recorder/internal/app"
	"github.com/dsalearning/dsa-recorder/internal/audio"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"
)

// commandTimeout bounds how long a menu click waits for the recorder.
const commandTimeout = 10 * time.Second

// Controls is the part of the app the tray drives.
type Controls interface {
	StartRecording(ctx context.Context, cardID string) (app.RecordingInfo, error)
	StopRecording(ctx context.Context) (app.StopResult, error)
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	State() app.State
	ListDevices(ctx context.Context) ([]audio.Device, error)
	SetDevice(ctx context.Context, name string) error
	LastRecordingPath() string
	Shutdown(ctx context.Context) error
}

type UI struct {
	app     Controls
	cardID  string
	version string
	commit  string
	log     zerolog.Logger

	// copyText is clipboard.WriteAll outside tests.
	copyText func(string) error

	mu     sync.Mutex
	status string
	ready  bool

	// Menu items
	mRecord  *systray.MenuItem
	mPause   *systray.MenuItem
	mDevices *systray.MenuItem
	mRefresh *systray.MenuItem
	mCopy    *systray.MenuItem

	deviceMu    sync.Mutex
	deviceItems map[string]*systray.MenuItem

	quit chan struct{}
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
}

func (u *UI) SetPaused() {
	u.updateStatus("paused")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

// New creates the tray. cardID is attached to every recording started from
// the menu.
func New(application Controls, cardID, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:         application,
		cardID:      cardID,
		version:     version,
		commit:      commit,
		log:         log.With().Str("component", "tray").Logger(),
		copyText:    clipboard.WriteAll,
		status:      "idle",
		deviceItems: make(map[string]*systray.MenuItem),
		quit:        make(chan struct{}),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application Controls) {
	u.app = application
}

// Run blocks until Quit is chosen. It must be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()

	// Use emoji instead of icon - microphone with initial status
	u.refreshTitle()
	systray.SetTooltip("DSA practice voice notes")

	// Build menu
	u.mRecord = systray.AddMenuItem("Start Recording", "Record a voice note")
	u.mPause = systray.AddMenuItem("Pause", "Pause or resume the recording")
	u.mPause.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.mRefresh = systray.AddMenuItem("Refresh Devices", "Re-scan input devices")
	u.buildDeviceMenu()

	systray.AddSeparator()
	u.mCopy = systray.AddMenuItem("Copy Last Recording Path", "Copy the path of the last recording")
	u.mCopy.Disable()
	mAbout := systray.AddMenuItem("About", "About DSA Recorder")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mAbout, mQuit)
	go u.tick()
}

func (u *UI) handleEvents(mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRecord.ClickedCh:
			if err := u.toggleRecording(); err != nil {
				u.log.Error().Err(err).Msg("Record action failed")
			}
			u.refreshMenu()
		case <-u.mPause.ClickedCh:
			if err := u.togglePause(); err != nil {
				u.log.Error().Err(err).Msg("Pause action failed")
			}
			u.refreshMenu()
		case <-u.mRefresh.ClickedCh:
			u.buildDeviceMenu()
		case <-u.mCopy.ClickedCh:
			if err := u.copyLastPath(); err != nil {
				u.log.Error().Err(err).Msg("Failed to copy recording path")
			}
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			close(u.quit)
			systray.Quit()
			return
		}
	}
}

// tick keeps the elapsed time in the title current while recording.
func (u *UI) tick() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-u.quit:
			return
		case <-t.C:
			u.refreshTitle()
		}
	}
}

func (u *UI) toggleRecording() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if u.app.State().CurrentRecording != "" {
		res, err := u.app.StopRecording(ctx)
		if err != nil {
			return err
		}
		u.log.Info().Str("file", res.Filepath).Dur("duration", res.Duration).Msg("Stopped from tray")
		return nil
	}

	info, err := u.app.StartRecording(ctx, u.cardID)
	if err != nil {
		return err
	}
	u.log.Info().Str("file", info.Filename).Msg("Started from tray")
	return nil
}

func (u *UI) togglePause() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	st := u.app.State()
	switch {
	case st.CurrentRecording == "":
		return audio.ErrNotRecording
	case st.IsPaused:
		return u.app.ResumeRecording(ctx)
	default:
		return u.app.PauseRecording(ctx)
	}
}

func (u *UI) copyLastPath() error {
	path := u.app.LastRecordingPath()
	if path == "" {
		return errors.New("no recording yet")
	}
	if err := u.copyText(path); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	u.log.Info().Str("path", path).Msg("Copied recording path")
	return nil
}

func (u *UI) refreshMenu() {
	st := u.app.State()
	u.mRecord.SetTitle(recordLabel(st))
	u.mPause.SetTitle(pauseLabel(st))
	if st.CurrentRecording != "" {
		u.mPause.Enable()
	} else {
		u.mPause.Disable()
	}
	if u.app.LastRecordingPath() != "" {
		u.mCopy.Enable()
	}
	u.refreshTitle()
}

// buildDeviceMenu adds items for newly seen devices and disables items
// for devices that went away; systray cannot remove menu items.
func (u *UI) buildDeviceMenu() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	devices, err := u.app.ListDevices(ctx)
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	u.deviceMu.Lock()
	defer u.deviceMu.Unlock()

	present := make(map[string]bool, len(devices))
	for _, dev := range devices {
		present[dev.Name] = true
		item, ok := u.deviceItems[dev.Name]
		if !ok {
			item = u.mDevices.AddSubMenuItem(dev.Name, "")
			u.deviceItems[dev.Name] = item
			go u.watchDevice(dev.Name, item)
		}
		item.Enable()
		if dev.Selected {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	for name, item := range u.deviceItems {
		if !present[name] {
			item.Uncheck()
			item.Disable()
		}
	}
}

func (u *UI) watchDevice(name string, menuItem *systray.MenuItem) {
	for {
		select {
		case <-u.quit:
			return
		case <-menuItem.ClickedCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err := u.app.SetDevice(ctx, name)
		cancel()
		if err != nil {
			u.log.Error().Err(err).Str("device", name).Msg("Failed to change audio device")
			continue
		}

		u.deviceMu.Lock()
		// Uncheck all other items
		for other, itm := range u.deviceItems {
			if other != name {
				itm.Uncheck()
			}
		}
		// Check this item
		menuItem.Check()
		u.deviceMu.Unlock()
		u.log.Info().Str("device", name).Msg("Changed audio device")
	}
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("DSA Recorder")
}

func (u *UI) onExit() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

// updateStatus records status and, once the tray is up, redraws the title.
// It is called with the app lock held, so it must not query app.State; the
// ticker adds the elapsed time back.
func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	u.status = status
	ready := u.ready
	u.mu.Unlock()
	if ready {
		systray.SetTitle(titleFor(status, app.State{}))
	}
}

func (u *UI) refreshTitle() {
	u.mu.Lock()
	ready, status := u.ready, u.status
	u.mu.Unlock()
	if !ready {
		return
	}
	var st app.State
	if u.app != nil {
		st = u.app.State()
	}
	systray.SetTitle(titleFor(status, st))
}

// titleFor is the tray title: microphone, status emoji and, during a
// recording, the elapsed time.
func titleFor(status string, st app.State) string {
	title := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if st.CurrentRecording != "" {
		title += " " + formatElapsed(st.ElapsedSeconds)
	}
	return title
}

func formatElapsed(secs int64) string {
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func recordLabel(st app.State) string {
	if st.CurrentRecording != "" {
		return "Stop Recording"
	}
	return "Start Recording"
}

func pauseLabel(st app.State) string {
	if st.IsPaused {
		return "Resume"
	}
	return "Pause"
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "paused":
		return "🟡" // Yellow - paused
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
