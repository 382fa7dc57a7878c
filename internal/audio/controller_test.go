package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, b Backend, opts ControllerOptions) *Controller {
	t.Helper()
	opts.Logger = zerolog.Nop()
	c := NewController(b, opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestControllerRecordsOneSecond(t *testing.T) {
	b := newFakeBackend("Built-in Microphone")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "take.wav")

	sess, err := c.Start(ctx, StartRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Built-in Microphone", sess.Device)
	assert.Equal(t, StreamConfig{SampleRate: 48000, Channels: 1, Format: FormatF32}, sess.Config)

	for i := 0; i < 48; i++ {
		b.push(constant(1000, 0.25))
	}

	stopped, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 48000, stopped.Frames)
	assert.Equal(t, time.Second, stopped.Duration)
	assert.True(t, b.lastStream().closed)

	info, err := ReadInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, time.Second, info.Duration)

	// Buffers arriving after stop are not persisted.
	b.push(constant(1000, 0.25))
	info, err = ReadInfo(path)
	require.NoError(t, err)
	assert.EqualValues(t, 48000, info.Frames)
}

func TestControllerUsesNegotiatedRate(t *testing.T) {
	b := newFakeBackend("USB Mic")
	b.config = StreamConfig{SampleRate: 44100, Channels: 2, Format: FormatF32}
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "take.wav")

	sess, err := c.Start(ctx, StartRequest{Path: path, SampleRateHint: 16000, ChannelHint: 1})
	require.NoError(t, err)
	assert.Equal(t, 44100, sess.Config.SampleRate)

	b.push([]float32{1, -1, 0.5, 0.5})
	_, err = c.Stop(ctx)
	require.NoError(t, err)

	info, err := ReadInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, []int{0, 16383}, readSamples(t, path))
}

func TestControllerStopIsIdempotent(t *testing.T) {
	b := newFakeBackend("Mic")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)

	_, err := c.Stop(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)

	_, err = c.Start(ctx, StartRequest{Path: filepath.Join(t.TempDir(), "a.wav")})
	require.NoError(t, err)
	_, err = c.Stop(ctx)
	require.NoError(t, err)

	_, err = c.Stop(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.ErrorIs(t, c.Pause(ctx), ErrNotRecording)
	assert.ErrorIs(t, c.Resume(ctx), ErrNotRecording)
}

func TestControllerPauseDropsBuffers(t *testing.T) {
	b := newFakeBackend("Mic")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "paused.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		b.push(constant(100, 0.5))
	}
	require.NoError(t, c.Pause(ctx))
	for i := 0; i < 5; i++ {
		b.push(constant(100, -0.5))
	}
	require.NoError(t, c.Resume(ctx))
	for i := 0; i < 2; i++ {
		b.push(constant(100, 0.5))
	}

	sess, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 500, sess.Frames)

	samples := readSamples(t, path)
	require.Len(t, samples, 500)
	for i, v := range samples {
		if v != 16383 {
			t.Fatalf("sample %d captured while paused: %d", i, v)
		}
	}
}

func TestControllerRejectsSecondStart(t *testing.T) {
	b := newFakeBackend("Mic")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.wav")
	second := filepath.Join(dir, "second.wav")

	_, err := c.Start(ctx, StartRequest{Path: first})
	require.NoError(t, err)

	_, err = c.Start(ctx, StartRequest{Path: second})
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.NoFileExists(t, second)

	b.push(constant(10, 0.5))
	sess, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, sess.Path)
	assert.EqualValues(t, 10, sess.Frames)
}

func TestControllerProcessesCommandsInOrder(t *testing.T) {
	b := newFakeBackend("Mic")
	gate := make(chan struct{})
	b.negotiateGate = gate
	b.negotiating = make(chan struct{}, 1)
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)

	start, err := c.Enqueue(ctx, Command{Kind: CmdStart, Path: filepath.Join(t.TempDir(), "fifo.wav")})
	require.NoError(t, err)
	<-b.negotiating

	// Queued behind a start that is still negotiating.
	pause, err := c.Enqueue(ctx, Command{Kind: CmdPause})
	require.NoError(t, err)
	stop, err := c.Enqueue(ctx, Command{Kind: CmdStop})
	require.NoError(t, err)

	select {
	case st := <-pause:
		t.Fatalf("pause answered before start finished: %s", st.Kind)
	case <-time.After(20 * time.Millisecond):
	}

	release()

	assert.Equal(t, StatusStarted, (<-start).Kind)
	assert.Equal(t, StatusPaused, (<-pause).Kind)
	st := <-stop
	assert.Equal(t, StatusStopped, st.Kind)
	require.NotNil(t, st.Session)
}

func TestControllerOrdersConcurrentCallers(t *testing.T) {
	b := newFakeBackend()
	b.enumerate = func(n int) []string { return []string{fmt.Sprintf("enumeration-%d", n)} }
	gate := make(chan struct{})
	b.negotiateGate = gate
	b.negotiating = make(chan struct{}, 1)
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)

	start, err := c.Enqueue(ctx, Command{Kind: CmdStart, Path: filepath.Join(t.TempDir(), "fifo.wav")})
	require.NoError(t, err)
	<-b.negotiating

	const callers = 6
	turns := make([]chan struct{}, callers)
	results := make([]Status, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range turns {
		turns[i] = make(chan struct{})
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-turns[i]
			results[i], errs[i] = c.Submit(ctx, Command{Kind: CmdRefreshDevices})
		}(i)
	}

	// Let the callers in one at a time so the queue order is known.
	for i := range turns {
		close(turns[i])
		require.Eventually(t, func() bool { return len(c.queue) == i+1 },
			time.Second, time.Millisecond)
	}

	release()
	assert.Equal(t, StatusStarted, (<-start).Kind)
	wg.Wait()

	// The start consumed the first enumeration; each refresh sees the next.
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, StatusDevicesRefreshed, results[i].Kind)
		require.Len(t, results[i].Devices, 1)
		assert.Equal(t, fmt.Sprintf("enumeration-%d", i+2), results[i].Devices[0].Name, "caller %d", i)
	}
}

func TestControllerStartKeepsExistingFile(t *testing.T) {
	b := newFakeBackend("Mic")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(path, []byte("earlier take"), 0o644))

	_, err := c.Start(ctx, StartRequest{Path: path})
	assert.ErrorIs(t, err, fs.ErrExist)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "earlier take", string(data))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.streams)
}

func TestControllerDeviceSelection(t *testing.T) {
	b := newFakeBackend("A", "B")
	b.defaultName = "B"
	c := newTestController(t, b, ControllerOptions{PreferredDevice: "Gone"})
	ctx := testContext(t)
	dir := t.TempDir()

	// An unknown preference falls back to the default device.
	sess, err := c.Start(ctx, StartRequest{Path: filepath.Join(dir, "1.wav")})
	require.NoError(t, err)
	assert.Equal(t, "B", sess.Device)
	_, err = c.Stop(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, c.SwitchDevice(ctx, "C"), ErrDeviceNotFound)
	require.NoError(t, c.SwitchDevice(ctx, "A"))

	sess, err = c.Start(ctx, StartRequest{Path: filepath.Join(dir, "2.wav")})
	require.NoError(t, err)
	assert.Equal(t, "A", sess.Device)
	_, err = c.Stop(ctx)
	require.NoError(t, err)

	// A is unplugged: the refresh reselects the default.
	b.setDevices("B")
	devices, err := c.RefreshDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Device{{Name: "B", Default: true, Selected: true}}, devices)

	sess, err = c.Start(ctx, StartRequest{Path: filepath.Join(dir, "3.wav")})
	require.NoError(t, err)
	assert.Equal(t, "B", sess.Device)
}

func TestControllerSwitchDuringSessionAppliesNextTime(t *testing.T) {
	b := newFakeBackend("A", "B")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	dir := t.TempDir()

	sess, err := c.Start(ctx, StartRequest{Path: filepath.Join(dir, "1.wav")})
	require.NoError(t, err)
	require.Equal(t, "A", sess.Device)

	require.NoError(t, c.SwitchDevice(ctx, "B"))
	stopped, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", stopped.Device)

	sess, err = c.Start(ctx, StartRequest{Path: filepath.Join(dir, "2.wav")})
	require.NoError(t, err)
	assert.Equal(t, "B", sess.Device)
}

func TestControllerRetriesAfterRefresh(t *testing.T) {
	b := newFakeBackend("Mic")
	b.negotiateErrs = []error{errors.New("device busy")}
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)

	_, err := c.Start(ctx, StartRequest{Path: filepath.Join(t.TempDir(), "retry.wav")})
	require.NoError(t, err)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 2, b.enumerations)
	assert.Equal(t, []string{"Mic", "Mic"}, b.negotiated)
}

func TestControllerStartFailureKeepsControllerUsable(t *testing.T) {
	b := newFakeBackend("Mic")
	b.openErrs = []error{errors.New("first"), errors.New("second")}
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "failed.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.NoFileExists(t, path)

	_, err = c.Start(ctx, StartRequest{Path: path})
	require.NoError(t, err)
	_, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestControllerStreamStartFailureRemovesFile(t *testing.T) {
	b := newFakeBackend("Mic")
	b.startErrs = []error{errors.New("no"), errors.New("still no")}
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "failed.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	require.Error(t, err)
	assert.NoFileExists(t, path)
	assert.True(t, b.lastStream().closed)
}

func TestControllerNoDevices(t *testing.T) {
	b := newFakeBackend()
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "none.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	assert.ErrorIs(t, err, ErrNoDevices)
	assert.NoFileExists(t, path)

	_, err = c.RefreshDevices(ctx)
	assert.ErrorIs(t, err, ErrNoDevices)

	b.setDevices("Late Mic")
	b.defaultName = "Late Mic"
	sess, err := c.Start(ctx, StartRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Late Mic", sess.Device)
}

func TestControllerUnwritablePath(t *testing.T) {
	b := newFakeBackend("Mic")
	c := newTestController(t, b, ControllerOptions{})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "missing", "out.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	require.Error(t, err)
	assert.NoFileExists(t, path)

	_, err = c.Start(ctx, StartRequest{})
	require.Error(t, err)

	_, err = c.Stop(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestControllerCloseFinalizesSession(t *testing.T) {
	b := newFakeBackend("Mic")
	c := NewController(b, ControllerOptions{Logger: zerolog.Nop()})
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "shutdown.wav")

	_, err := c.Start(ctx, StartRequest{Path: path})
	require.NoError(t, err)
	b.push(constant(800, 0.5))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	info, err := ReadInfo(path)
	require.NoError(t, err)
	assert.EqualValues(t, 800, info.Frames)

	_, err = c.Start(ctx, StartRequest{Path: path + ".2"})
	assert.ErrorIs(t, err, ErrControllerClosed)
	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err))
}

func TestControllerSubmitHonoursContext(t *testing.T) {
	b := newFakeBackend("Mic")
	gate := make(chan struct{})
	b.negotiateGate = gate
	b.negotiating = make(chan struct{}, 1)
	c := newTestController(t, b, ControllerOptions{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)

	reply, err := c.Enqueue(testContext(t), Command{Kind: CmdStart, Path: filepath.Join(t.TempDir(), "slow.wav")})
	require.NoError(t, err)
	<-b.negotiating

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, StatusStarted, (<-reply).Kind)
}
