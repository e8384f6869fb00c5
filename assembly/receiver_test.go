package assembly

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/types"
)

func TestReceiver_PublishesCompletedFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	codec := smallCodec(t)
	src := channel.NewQueue(channel.LoggerViewer, channel.Options{Depth: 64, MaxMessageSize: codec.MaxMessageSize()})
	slot := NewSlot()
	m := metrics.NewCollector("strict", "", "s")

	recv := NewReceiver(ReceiverConfig{
		Source:  src,
		Codec:   codec,
		Slot:    slot,
		Logger:  log.NewNop(),
		Metrics: m,
	})

	done := make(chan error, 1)
	go func() { done <- recv.Run(ctx) }()

	f1 := testFrame(1, 4, 2)
	f2 := testFrame(2, 4, 2)
	for _, f := range []*types.Frame{f1, f2} {
		for _, msg := range codec.EncodeFrame(f) {
			if err := src.Send(ctx, msg.Marshal()); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
		}
	}
	// Garbage is dropped and counted, not fatal.
	_ = src.Send(ctx, []byte{1, 2, 3})
	_ = src.Close()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	got, fresh := slot.Consume()
	if !fresh || got.FrameID != 2 {
		t.Fatalf("slot = id %d fresh %v, want id 2", got.FrameID, fresh)
	}
	if !bytes.Equal(got.Depth, f2.Depth) || !bytes.Equal(got.Color, f2.Color) {
		t.Error("delivered frame differs from source")
	}

	s := m.Snapshot()
	if s.FramesDelivered != 2 {
		t.Errorf("FramesDelivered = %d, want 2", s.FramesDelivered)
	}
	if s.MalformedMessages != 1 {
		t.Errorf("MalformedMessages = %d, want 1", s.MalformedMessages)
	}
	if st := recv.Stats(); st.FramesCompleted != 2 {
		t.Errorf("FramesCompleted = %d, want 2", st.FramesCompleted)
	}
}

func TestReceiver_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	src := channel.NewQueue(channel.LoggerViewer, channel.Options{})
	recv := NewReceiver(ReceiverConfig{
		Source: src,
		Codec:  smallCodec(t),
		Slot:   NewSlot(),
		Logger: log.NewNop(),
	})

	done := make(chan error, 1)
	go func() { done <- recv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
