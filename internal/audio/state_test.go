package audio

import "testing"

func TestStateCell(t *testing.T) {
	c := NewStateCell(Recording)
	if got := c.Get(); got != Recording {
		t.Fatalf("expected recording, got %s", got)
	}

	c.Set(Paused)
	s, ok := c.TryGet()
	if !ok || s != Paused {
		t.Fatalf("expected paused, got %s (ok=%v)", s, ok)
	}
}

func TestStateCellTryGetWhileLocked(t *testing.T) {
	c := NewStateCell(Recording)

	c.mu.Lock()
	s, ok := c.TryGet()
	c.mu.Unlock()

	if ok {
		t.Fatal("TryGet succeeded while the lock was held")
	}
	if s != Stopped {
		t.Fatalf("expected stopped on contention, got %s", s)
	}

	if _, ok := c.TryGet(); !ok {
		t.Fatal("TryGet failed on an uncontended cell")
	}
}

func TestRecordingStateString(t *testing.T) {
	tests := map[RecordingState]string{
		Stopped:   "stopped",
		Recording: "recording",
		Paused:    "paused",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
