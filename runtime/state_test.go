package runtime

import (
	"errors"
	"testing"

	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

func TestState_Snapshot(t *testing.T) {
	s := NewState()
	if got := s.Snapshot(); got.Mode != types.ModePassThrough || !got.PassThrough {
		t.Errorf("initial state = %+v", got)
	}

	s.recMu.Lock()
	s.rec.writer = store.NewWriter(&discard{})
	s.rec.filename = "a.bin"
	s.rec.frames = 4
	s.recMu.Unlock()
	if got := s.Snapshot(); got.Mode != types.ModeRecording || got.Filename != "a.bin" || got.RecordedFrames != 4 {
		t.Errorf("recording state = %+v", got)
	}

	s.recMu.Lock()
	s.rec.writer = nil
	s.recMu.Unlock()
	s.playMu.Lock()
	s.play.playing = true
	s.play.passThrough = false
	s.play.filename = "b.bin"
	s.playMu.Unlock()
	if got := s.Snapshot(); got.Mode != types.ModePlaying || got.Filename != "b.bin" || got.PassThrough {
		t.Errorf("playing state = %+v", got)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRecordingOutcome(t *testing.T) {
	tests := []struct {
		name     string
		closeErr error
		writeErr error
		want     types.SessionOutcome
	}{
		{"clean close", nil, nil, types.OutcomeComplete},
		{"close failed", errors.New("disk gone"), nil, types.OutcomeFailed},
		{"write failed", nil, errors.New("disk full"), types.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, msg := RecordingOutcome(tt.closeErr, tt.writeErr, 3); got != tt.want || msg == "" {
				t.Errorf("RecordingOutcome = %s %q, want %s", got, msg, tt.want)
			}
		})
	}
}
