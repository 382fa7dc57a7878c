package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a new zerolog logger with console and file output at info level
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel is New with an explicit level name ("debug", "warn", ...).
// Unknown names fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	logPath := LogPath()

	// Ensure directory exists; lumberjack opens the file lazily.
	_ = os.MkdirAll(filepath.Dir(logPath), 0755)

	file := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	return newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, file, level)
}

func newLogger(console, file io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	// Multi-writer: console + file
	multi := zerolog.MultiLevelWriter(console, file)

	return zerolog.New(multi).Level(lvl).With().Timestamp().Caller().Logger()
}

// LogPath returns platform-specific log file path
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "dsa-recorder", "dsa-recorder.log")
}
