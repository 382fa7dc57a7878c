package audio

import "errors"

var (
	// ErrNoDevices means no input device (not even a default) is available.
	ErrNoDevices = errors.New("no input devices available")
	// ErrDeviceNotFound means a named device is not in the registry.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAlreadyRecording is returned by Start while a session is open.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop, Pause and Resume while idle.
	ErrNotRecording = errors.New("no active recording")
	// ErrControllerClosed is returned once the capture goroutine has exited.
	ErrControllerClosed = errors.New("capture controller closed")
)
