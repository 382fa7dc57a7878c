package audio

import "sync"

// RecordingState tells the real-time callback whether to persist samples.
type RecordingState int

const (
	Stopped RecordingState = iota
	Recording
	Paused
)

func (s RecordingState) String() string {
	switch s {
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// StateCell is the RecordingState shared between the capture goroutine and
// the audio callback. The controller side may block; the callback side only
// ever uses TryGet.
type StateCell struct {
	mu    sync.Mutex
	state RecordingState
}

func NewStateCell(s RecordingState) *StateCell {
	return &StateCell{state: s}
}

func (c *StateCell) Set(s RecordingState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *StateCell) Get() RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TryGet reads the state without blocking. ok is false when the lock is
// held elsewhere; callers treat that as "skip this buffer".
func (c *StateCell) TryGet() (s RecordingState, ok bool) {
	if !c.mu.TryLock() {
		return Stopped, false
	}
	s = c.state
	c.mu.Unlock()
	return s, true
}
