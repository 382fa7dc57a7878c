package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	outputBitDepth = 16
	outputChannels = 1
	wavFormatPCM   = 1
)

var errWriterClosed = errors.New("wav writer closed")

// WAVWriter is the output container of a session: 16-bit mono PCM at the
// negotiated sample rate. Its mutex is shared with the real-time callback,
// which only ever acquires it with TryLock.
type WAVWriter struct {
	mu     sync.Mutex
	path   string
	rate   int
	f      *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames int64
	closed bool
}

// CreateWAV creates path and writes the RIFF header immediately so that
// permission and disk problems surface before a stream is opened. An
// existing file at path is never overwritten.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := &WAVWriter{
		path: path,
		rate: sampleRate,
		f:    f,
		enc:  wav.NewEncoder(f, sampleRate, outputBitDepth, outputChannels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: outputChannels},
			SourceBitDepth: outputBitDepth,
		},
	}

	if err := w.enc.Write(w.buf); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write WAV header to %s: %w", path, err)
	}
	return w, nil
}

// write appends mono samples. The caller holds w.mu.
func (w *WAVWriter) write(samples []int) error {
	if w.closed {
		return errWriterClosed
	}
	if len(samples) == 0 {
		return nil
	}
	w.buf.Data = samples
	err := w.enc.Write(w.buf)
	w.buf.Data = nil
	if err != nil {
		return err
	}
	w.frames += int64(len(samples))
	return nil
}

// Close rewrites the header sizes and closes the file. It is safe to call
// more than once.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", w.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, fileErr)
	}
	return nil
}

// Discard closes the writer and removes the file. Used when a session
// fails to come up so no half-made recording is left behind.
func (w *WAVWriter) Discard() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		_ = w.f.Close()
	}
	w.mu.Unlock()

	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", w.path, err)
	}
	return nil
}

// Frames returns the number of mono frames written so far.
func (w *WAVWriter) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Duration is the audio length implied by Frames.
func (w *WAVWriter) Duration() time.Duration {
	return framesToDuration(w.Frames(), w.rate)
}

func framesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// FileInfo is the header summary of a WAV file on disk.
type FileInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
	Duration   time.Duration
}

// ReadInfo decodes the header of the WAV file at path.
func ReadInfo(path string) (FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// IsValidFile rejects zero-length data chunks, which a recording stopped
	// before the first buffer legitimately has.
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return FileInfo{}, fmt.Errorf("%s is not a valid WAV file: %w", path, err)
	}
	if d.NumChans < 1 || d.BitDepth < 8 {
		return FileInfo{}, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if err := d.FwdToPCM(); err != nil {
		return FileInfo{}, fmt.Errorf("failed to locate PCM data in %s: %w", path, err)
	}

	info := FileInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if frameSize := int64(info.Channels) * int64(info.BitDepth/8); frameSize > 0 {
		info.Frames = d.PCMLen() / frameSize
	}
	info.Duration = framesToDuration(info.Frames, info.SampleRate)
	return info, nil
}
