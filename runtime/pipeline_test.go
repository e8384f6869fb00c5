package runtime

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

func newTestPipeline(t *testing.T, collector *metrics.Collector, ad *recordingAdapter) *Pipeline {
	t.Helper()
	cfg := PipelineConfig{
		ChannelOptions:      channel.Options{Depth: 256},
		ControlPollInterval: 5 * time.Millisecond,
		FrameInterval:       time.Millisecond,
		IdlePoll:            5 * time.Millisecond,
		Metrics:             collector,
	}
	if ad != nil {
		cfg.Archiver = memoryArchiver(t, collector)
		cfg.Adapter = ad
	}
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func publishFrames(t *testing.T, p *Pipeline, n, w, h int) {
	t.Helper()
	depth := make([]int16, w*h)
	color := make([]byte, w*h*3)
	for i := range n {
		SyntheticPattern(i, w, h, depth, color)
		if err := p.Producer().Publish(t.Context(), depth, color, w, h); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
}

func TestPipeline_RecordThenReplay(t *testing.T) {
	collector := metrics.NewCollector("strict", "memory", "test")
	ad := &recordingAdapter{}
	p := newTestPipeline(t, collector, ad)
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "walk.bin")

	// Live frames reach the consumer slot.
	publishFrames(t, p, 2, 64, 48)
	waitFor(t, "live frame delivered", func() bool {
		f, _ := p.Slot().Peek()
		return f.FrameID == 2
	})

	if err := p.Control(t.Context(), types.CommandStartRecord, path); err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	waitFor(t, "recording", func() bool { return p.State().Mode == types.ModeRecording })

	publishFrames(t, p, 5, 64, 48) // frame ids 3..7
	waitFor(t, "5 recorded", func() bool { return p.State().RecordedFrames == 5 })

	if err := p.Control(t.Context(), types.CommandStopRecord, ""); err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	waitFor(t, "passthrough", func() bool { return p.State().Mode == types.ModePassThrough })

	waitFor(t, "live frame 7 delivered", func() bool {
		f, _ := p.Slot().Peek()
		return f.FrameID == 7
	})
	live, _ := p.Slot().Peek()

	if err := p.Control(t.Context(), types.CommandStartPlayback, path); err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	waitFor(t, "playback finished", func() bool { return len(p.Sessions()) == 2 })

	// The consumer ends on the last replayed frame, identical to the live one.
	waitFor(t, "replayed frame delivered", func() bool {
		return p.Slot().Stats().Published >= 12
	})
	replayed, _ := p.Slot().Peek()
	if replayed.FrameID != 7 || !bytes.Equal(replayed.Depth, live.Depth) || !bytes.Equal(replayed.Color, live.Color) {
		t.Errorf("replayed frame %d differs from recorded frame %d", replayed.FrameID, live.FrameID)
	}

	if err := p.Stop(3 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	sum, err := store.Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !sum.Complete || sum.Frames != 5 || sum.FirstFrameID != 3 || sum.LastFrameID != 7 {
		t.Errorf("summary = %+v", sum)
	}

	sessions := p.Sessions()
	if sessions[0].Kind != types.SessionRecording || sessions[0].Outcome != types.OutcomeComplete {
		t.Errorf("recording session = %+v", sessions[0])
	}
	if sessions[1].Kind != types.SessionPlayback || sessions[1].Outcome != types.OutcomeComplete || sessions[1].Frames != 5 {
		t.Errorf("playback session = %+v", sessions[1])
	}

	if got := len(ad.Events()); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
	snap := collector.Snapshot()
	if snap.ArchiveSuccess != 2 || snap.ProducerFramesSent != 7 {
		t.Errorf("ArchiveSuccess=%d ProducerFramesSent=%d", snap.ArchiveSuccess, snap.ProducerFramesSent)
	}

	report := BuildRunReport(p, snap, 0)
	var buf bytes.Buffer
	if err := writeRunReportTo(report, &buf); err != nil {
		t.Fatalf("writeRunReportTo failed: %v", err)
	}
	if report.Policy.FramesSent != 7 || len(report.Sessions) != 2 || len(report.Channels) != 3 {
		t.Errorf("report = %+v", report)
	}
	if report.LastFrame == nil || report.LastFrame.FrameID != 7 || report.LastFrame.Width != 64 {
		t.Errorf("report last frame = %+v, want frame 7 at 64 wide", report.LastFrame)
	}
	if p.Slot().Stats().Consumed != 0 {
		t.Error("building the report consumed the slot")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"session_id"`)) {
		t.Error("report JSON missing session_id")
	}
}

func TestPipeline_StopClosesActiveRecording(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "open.bin")
	if err := p.Control(t.Context(), types.CommandStartRecord, path); err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	waitFor(t, "recording", func() bool { return p.State().Mode == types.ModeRecording })
	publishFrames(t, p, 3, 8, 8)
	waitFor(t, "3 recorded", func() bool { return p.State().RecordedFrames == 3 })

	if err := p.Stop(3 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	sum, err := store.Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !sum.Complete || sum.Frames != 3 {
		t.Errorf("summary = %+v, want complete with 3 frames", sum)
	}

	// Stop is idempotent.
	if err := p.Stop(time.Second); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestPipeline_SyntheticSourceFeedsConsumer(t *testing.T) {
	p, err := NewPipeline(PipelineConfig{
		ControlPollInterval: 5 * time.Millisecond,
		Synthetic:           &SyntheticConfig{Width: 32, Height: 24, FPS: 200},
	})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	var f types.Frame
	if err := p.Slot().Next(contextWithTimeout(t, 3*time.Second), &f); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f.Width != 32 || f.Height != 24 || f.FrameID == 0 {
		t.Errorf("frame = %dx%d id %d", f.Width, f.Height, f.FrameID)
	}
	if err := p.Stop(3 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestPipeline_ControlValidation(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	tests := []struct {
		name     string
		cmd      types.ControlCommand
		filename string
	}{
		{"unknown command", types.ControlCommand(42), ""},
		{"record without filename", types.CommandStartRecord, ""},
		{"playback without filename", types.CommandStartPlayback, ""},
		{"filename too long", types.CommandStartRecord, string(bytes.Repeat([]byte{'a'}, 256))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Control(t.Context(), tt.cmd, tt.filename); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPipeline_StopReportsStuckRoles(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	p.mu.Lock()
	p.spawn(t.Context(), "stuck", func(context.Context) error {
		<-release
		return nil
	})
	p.mu.Unlock()

	err := p.Stop(50 * time.Millisecond)
	var stopErr *StopError
	if !errors.As(err, &stopErr) {
		t.Fatalf("Stop = %v, want *StopError", err)
	}
	if len(stopErr.Stuck) != 1 || stopErr.Stuck[0] != "stuck" {
		t.Errorf("Stuck = %v", stopErr.Stuck)
	}
}

func contextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	t.Cleanup(cancel)
	return ctx
}
