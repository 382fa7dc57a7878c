package logging

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestNewLoggerWritesBothOutputs(t *testing.T) {
	var console, file bytes.Buffer
	log := newLogger(&console, &file, "debug")

	log.Debug().Str("device", "USB Mic").Msg("Input device selected")

	if !strings.Contains(console.String(), "Input device selected") {
		t.Errorf("console output missing message: %q", console.String())
	}
	if !strings.Contains(file.String(), `"device":"USB Mic"`) {
		t.Errorf("file output missing field: %q", file.String())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		level   string
		debugOn bool
	}{
		{"debug", true},
		{"DEBUG", true},
		{"warn", false},
		{"", false},
		{"nonsense", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var out bytes.Buffer
			log := newLogger(&bytes.Buffer{}, &out, tt.level)
			log.Debug().Msg("probe")

			if got := out.Len() > 0; got != tt.debugOn {
				t.Errorf("debug logged = %v, want %v", got, tt.debugOn)
			}
		})
	}
}

func TestLogPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout applies to linux only")
	}
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	if got, want := LogPath(), "/xdg/state/dsa-recorder/dsa-recorder.log"; got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
}
