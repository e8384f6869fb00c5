// Package runtime runs the framelog roles: the producer, the logger state
// machine, the playback engine and the consumer receive loop, plus the
// pipeline that wires them to named channels.
package runtime

import (
	"sync"
	"time"

	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

// LoggerState is a point-in-time view of the logger state machine.
type LoggerState struct {
	Mode           types.LoggerMode `json:"mode"`
	Filename       string           `json:"filename,omitempty"`
	PassThrough    bool             `json:"passthrough"`
	RecordedFrames int64            `json:"recorded_frames"`
	PlayedFrames   int64            `json:"played_frames"`
}

// recordState is owned by the logger goroutine and guarded by State.recMu.
type recordState struct {
	writer    *store.Writer
	filename  string
	frames    int64
	gen       uint64 // bumped on every StartRecord
	startedAt time.Time
}

// playbackState is guarded by State.playMu. Passthrough lives here because
// it only changes together with playback.
type playbackState struct {
	playing     bool
	passThrough bool
	filename    string
	reader      *store.Reader
	frames      int64
	startedAt   time.Time
}

// State is the logger state shared by the logger and playback engines.
// Record state and playback state each have their own mutex; no method
// holds both at once.
type State struct {
	recMu sync.Mutex
	rec   recordState

	playMu sync.Mutex
	play   playbackState

	// wake nudges an idle playback engine; capacity 1 so signalling never blocks.
	wake chan struct{}
}

// NewState returns the initial PassThrough state.
func NewState() *State {
	return &State{
		play: playbackState{passThrough: true},
		wake: make(chan struct{}, 1),
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() LoggerState {
	s.recMu.Lock()
	recording := s.rec.writer != nil
	recFile := s.rec.filename
	recFrames := s.rec.frames
	s.recMu.Unlock()

	s.playMu.Lock()
	playing := s.play.playing
	playFile := s.play.filename
	playFrames := s.play.frames
	pass := s.play.passThrough
	s.playMu.Unlock()

	out := LoggerState{
		Mode:           types.ModePassThrough,
		PassThrough:    pass,
		RecordedFrames: recFrames,
		PlayedFrames:   playFrames,
	}
	switch {
	case playing:
		out.Mode = types.ModePlaying
		out.Filename = playFile
	case recording:
		out.Mode = types.ModeRecording
		out.Filename = recFile
	}
	return out
}

func (s *State) passThrough() bool {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	return s.play.passThrough
}

func (s *State) playing() bool {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	return s.play.playing
}

func (s *State) recording() bool {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.rec.writer != nil
}

func (s *State) recordGen() uint64 {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.rec.gen
}

func (s *State) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
