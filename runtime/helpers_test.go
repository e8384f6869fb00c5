package runtime

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/types"
)

// testFrame builds a w x h frame whose bytes identify it.
func testFrame(id uint32, w, h int) types.Frame {
	return types.Frame{
		FrameID:     id,
		TimestampMs: id * 33,
		Width:       w,
		Height:      h,
		Depth:       bytes.Repeat([]byte{byte(id)}, w*h*types.DepthBytesPerPixel),
		Color:       bytes.Repeat([]byte{byte(id + 100)}, w*h*types.ColorBytesPerPixel),
	}
}

// encodeFrame marshals a frame into wire messages.
func encodeFrame(codec *ipc.Codec, f *types.Frame) [][]byte {
	var out [][]byte
	for _, m := range codec.EncodeFrame(f) {
		out = append(out, m.Marshal())
	}
	return out
}

func sendAll(t *testing.T, ch channel.Channel, msgs [][]byte) {
	t.Helper()
	for _, m := range msgs {
		if err := ch.Send(t.Context(), m); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
}

func sendControl(t *testing.T, codec *ipc.Codec, ch channel.Channel, cmd types.ControlCommand, filename string) {
	t.Helper()
	msg := codec.EncodeControl(cmd, filename)
	if err := ch.Send(t.Context(), msg.Marshal()); err != nil {
		t.Fatalf("Send control failed: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// loggerHarness runs a LoggerEngine over in-process queues.
type loggerHarness struct {
	codec     *ipc.Codec
	input     *channel.Queue
	output    *channel.Queue
	control   *channel.Queue
	state     *State
	finalizer *Finalizer
	metrics   *metrics.Collector
	engine    *LoggerEngine

	cancel context.CancelFunc
	done   chan error
}

func newLoggerHarness(t *testing.T) *loggerHarness {
	t.Helper()
	opts := channel.Options{Depth: 4096}
	h := &loggerHarness{
		codec:   ipc.DefaultCodec(),
		input:   channel.NewQueue(channel.SensorLogger, opts),
		output:  channel.NewQueue(channel.LoggerViewer, opts),
		control: channel.NewQueue(channel.Control, opts),
		state:   NewState(),
		metrics: metrics.NewCollector("strict", "none", "test"),
	}
	h.finalizer = NewFinalizer(FinalizerConfig{})
	h.engine = NewLoggerEngine(LoggerConfig{
		Input:               h.input,
		Output:              h.output,
		Control:             h.control,
		Codec:               h.codec,
		ControlPollInterval: 5 * time.Millisecond,
		State:               h.state,
		Finalizer:           h.finalizer,
		SessionID:           "test",
		Metrics:             h.metrics,
	})
	return h
}

func (h *loggerHarness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.engine.Run(ctx) }()
	t.Cleanup(h.stop)
}

func (h *loggerHarness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func (h *loggerHarness) mode() types.LoggerMode {
	return h.engine.State().Mode
}

// waitReceived waits until the logger has taken n data messages.
func (h *loggerHarness) waitReceived(t *testing.T, n int64) {
	t.Helper()
	waitFor(t, "messages received", func() bool {
		return h.metrics.Snapshot().MessagesReceived >= n
	})
}
