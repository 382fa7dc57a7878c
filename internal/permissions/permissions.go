// Package permissions runs the microphone pre-flight before a recording.
package permissions

import (
	"errors"
	"fmt"
)

// ErrMicrophoneDenied means the OS has not granted microphone access.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// Prober is the part of an audio backend the pre-flight needs.
type Prober interface {
	DefaultInputName() (string, error)
}

// CheckMicrophone reports the default input device name if the microphone
// is usable: the OS has not refused access and the backend can reach a
// default input device.
func CheckMicrophone(p Prober) (string, error) {
	if err := platformCheck(); err != nil {
		return "", err
	}
	name, err := p.DefaultInputName()
	if err != nil {
		return "", fmt.Errorf("failed to query default input device: %w", err)
	}
	return name, nil
}
