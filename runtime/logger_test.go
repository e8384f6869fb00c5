package runtime

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

func TestLogger_PassThroughForwardsVerbatim(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)

	f := testFrame(1, 64, 64) // depth spans two chunks
	msgs := encodeFrame(h.codec, &f)
	sendAll(t, h.input, msgs)

	for i, want := range msgs {
		got, err := h.output.Receive(t.Context())
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("message %d differs after forwarding", i)
		}
	}

	waitFor(t, "frame assembled", func() bool { return h.metrics.Snapshot().FramesAssembled == 1 })
	if got := h.metrics.Snapshot().MessagesForwarded; got != int64(len(msgs)) {
		t.Errorf("MessagesForwarded = %d, want %d", got, len(msgs))
	}
	if h.mode() != types.ModePassThrough {
		t.Errorf("mode = %s, want passthrough", h.mode())
	}
}

func TestLogger_RecordAndStop(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	path := filepath.Join(t.TempDir(), "walk.bin")

	sendControl(t, h.codec, h.control, types.CommandStartRecord, path)
	waitFor(t, "recording", func() bool { return h.mode() == types.ModeRecording })

	for id := uint32(1); id <= 3; id++ {
		f := testFrame(id, 8, 4)
		sendAll(t, h.input, encodeFrame(h.codec, &f))
	}
	waitFor(t, "3 recorded frames", func() bool { return h.engine.State().RecordedFrames == 3 })

	sendControl(t, h.codec, h.control, types.CommandStopRecord, "")
	waitFor(t, "passthrough", func() bool { return h.mode() == types.ModePassThrough })

	sum, err := store.Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !sum.Complete || sum.Frames != 3 || sum.FirstFrameID != 1 || sum.LastFrameID != 3 {
		t.Errorf("summary = %+v", sum)
	}

	sessions := h.finalizer.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if s := sessions[0]; s.Kind != types.SessionRecording || s.Outcome != types.OutcomeComplete || s.Frames != 3 {
		t.Errorf("session = %+v", s)
	}

	snap := h.metrics.Snapshot()
	if snap.RecordingsStarted != 1 || snap.RecordingsCompleted != 1 || snap.FramesRecorded != 3 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestLogger_RecordingExcludesFrameStartedBefore(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	path := filepath.Join(t.TempDir(), "gen.bin")

	// Frame 1 starts assembling before StartRecord is observed.
	f1 := testFrame(1, 8, 4)
	m1 := encodeFrame(h.codec, &f1)
	sendAll(t, h.input, m1[:2])
	h.waitReceived(t, 2)

	sendControl(t, h.codec, h.control, types.CommandStartRecord, path)
	waitFor(t, "recording", func() bool { return h.mode() == types.ModeRecording })

	sendAll(t, h.input, m1[2:])
	f2 := testFrame(2, 8, 4)
	m2 := encodeFrame(h.codec, &f2)
	sendAll(t, h.input, m2)
	h.waitReceived(t, int64(len(m1)+len(m2)))

	waitFor(t, "frame 2 recorded", func() bool { return h.engine.State().RecordedFrames == 1 })
	if got := h.metrics.Snapshot().FramesAssembled; got != 2 {
		t.Errorf("FramesAssembled = %d, want 2", got)
	}

	sendControl(t, h.codec, h.control, types.CommandStopRecord, "")
	waitFor(t, "passthrough", func() bool { return h.mode() == types.ModePassThrough })

	sum, err := store.Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if sum.Frames != 1 || sum.FirstFrameID != 2 {
		t.Errorf("recorded frames = %d (first %d), want only frame 2", sum.Frames, sum.FirstFrameID)
	}
}

func TestLogger_RecordAndPlaybackExclusive(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	dir := t.TempDir()

	// Playing blocks recording. No playback engine runs, so Playing persists.
	sendControl(t, h.codec, h.control, types.CommandStartPlayback, filepath.Join(dir, "in.bin"))
	waitFor(t, "playing", func() bool { return h.mode() == types.ModePlaying })
	if h.engine.State().PassThrough {
		t.Error("passthrough should be disabled while playing")
	}

	sendControl(t, h.codec, h.control, types.CommandStartRecord, filepath.Join(dir, "out.bin"))
	waitFor(t, "record rejected", func() bool { return h.metrics.Snapshot().ControlRejected == 1 })
	if h.mode() != types.ModePlaying {
		t.Errorf("mode = %s, want playing", h.mode())
	}

	sendControl(t, h.codec, h.control, types.CommandStopPlayback, "")
	waitFor(t, "passthrough", func() bool { return h.mode() == types.ModePassThrough })
	if !h.engine.State().PassThrough {
		t.Error("passthrough should be re-enabled")
	}

	// Recording blocks playback.
	sendControl(t, h.codec, h.control, types.CommandStartRecord, filepath.Join(dir, "out.bin"))
	waitFor(t, "recording", func() bool { return h.mode() == types.ModeRecording })
	sendControl(t, h.codec, h.control, types.CommandStartPlayback, filepath.Join(dir, "in.bin"))
	waitFor(t, "playback rejected", func() bool { return h.metrics.Snapshot().ControlRejected == 2 })
	if h.mode() != types.ModeRecording {
		t.Errorf("mode = %s, want recording", h.mode())
	}

	sessions := h.finalizer.Sessions()
	if len(sessions) != 1 || sessions[0].Outcome != types.OutcomeStopped {
		t.Errorf("sessions = %+v, want one stopped playback", sessions)
	}
}

func TestLogger_IgnoredCommands(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	path := filepath.Join(t.TempDir(), "dup.bin")

	sendControl(t, h.codec, h.control, types.CommandStopRecord, "")
	sendControl(t, h.codec, h.control, types.CommandStartRecord, path)
	sendControl(t, h.codec, h.control, types.CommandStartRecord, path+".2")

	// Non-control and unknown-command messages on the control channel.
	meta := h.codec.EncodeMetadata(1, 0, 4, 2)
	if err := h.control.Send(t.Context(), meta.Marshal()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	unknown := ipc.Message{Kind: types.KindControl, Command: types.ControlCommand(9)}
	if err := h.control.Send(t.Context(), unknown.Marshal()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, "four ignored", func() bool { return h.metrics.Snapshot().ControlIgnored == 4 })
	st := h.engine.State()
	if st.Mode != types.ModeRecording || st.Filename != path {
		t.Errorf("state = %+v, want recording to %s", st, path)
	}
}

func TestLogger_StartRecordOpenFailure(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	path := filepath.Join(t.TempDir(), "missing", "dir", "x.bin")

	sendControl(t, h.codec, h.control, types.CommandStartRecord, path)
	waitFor(t, "failure reported", func() bool { return h.metrics.Snapshot().RecordingsFailed == 1 })

	if h.mode() != types.ModePassThrough {
		t.Errorf("mode = %s, want passthrough", h.mode())
	}
	sessions := h.finalizer.Sessions()
	if len(sessions) != 1 || sessions[0].Outcome != types.OutcomeFailed {
		t.Errorf("sessions = %+v, want one failed recording", sessions)
	}
}

func TestLogger_ShutdownClosesRecording(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)
	path := filepath.Join(t.TempDir(), "shutdown.bin")

	sendControl(t, h.codec, h.control, types.CommandStartRecord, path)
	waitFor(t, "recording", func() bool { return h.mode() == types.ModeRecording })
	for id := uint32(1); id <= 2; id++ {
		f := testFrame(id, 4, 2)
		sendAll(t, h.input, encodeFrame(h.codec, &f))
	}
	waitFor(t, "2 recorded frames", func() bool { return h.engine.State().RecordedFrames == 2 })

	h.stop()

	sum, err := store.Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !sum.Complete || sum.Frames != 2 {
		t.Errorf("summary = %+v, want complete with 2 frames", sum)
	}
	if h.mode() != types.ModePassThrough {
		t.Errorf("mode = %s after shutdown", h.mode())
	}
}

func TestLogger_MalformedDataDropped(t *testing.T) {
	h := newLoggerHarness(t)
	h.start(t)

	if err := h.input.Send(t.Context(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	f := testFrame(1, 4, 2)
	sendAll(t, h.input, encodeFrame(h.codec, &f))
	h.waitReceived(t, 4)

	waitFor(t, "frame assembled", func() bool { return h.metrics.Snapshot().FramesAssembled == 1 })
	if got := h.metrics.Snapshot().MalformedMessages; got != 1 {
		t.Errorf("MalformedMessages = %d, want 1", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestLogger_WriteFailureAbortsRecording(t *testing.T) {
	h := newLoggerHarness(t)

	// Install a recording whose writes fail.
	h.state.recMu.Lock()
	h.state.rec.writer = store.NewWriter(failingWriter{})
	h.state.rec.filename = "full.bin"
	h.state.rec.gen++
	h.state.recMu.Unlock()
	h.start(t)

	f := testFrame(1, 4, 2)
	sendAll(t, h.input, encodeFrame(h.codec, &f))
	waitFor(t, "write failure", func() bool { return h.metrics.Snapshot().RecordWriteFailures == 1 })

	if h.mode() != types.ModePassThrough {
		t.Errorf("mode = %s, want passthrough", h.mode())
	}
	sessions := h.finalizer.Sessions()
	if len(sessions) != 1 || sessions[0].Outcome != types.OutcomeFailed {
		t.Errorf("sessions = %+v, want one failed recording", sessions)
	}
}
