package policy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/policy"
)

func frameMsgs(n int) [][]byte {
	msgs := make([][]byte, n)
	for i := range msgs {
		msgs[i] = []byte{byte(i), byte(i + 1)}
	}
	return msgs
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    policy.Name
		wantErr bool
	}{
		{"strict", policy.NameStrict, false},
		{"drop", policy.NameDrop, false},
		{"noop", policy.NameNoop, false},
		{"", policy.NameStrict, false},
		{"buffered", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := policy.ParseName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_SelectsPolicy(t *testing.T) {
	sink := policy.NewStubSink()
	for _, name := range []policy.Name{policy.NameStrict, policy.NameDrop, policy.NameNoop} {
		pol, err := policy.New(name, sink, policy.Config{})
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		if pol.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, pol.Name())
		}
	}
	if _, err := policy.New("bogus", sink, policy.Config{}); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestStrictPolicy_SendsInOrder(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	msgs := frameMsgs(5)
	if err := pol.SendFrame(t.Context(), msgs); err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}

	got := sink.Drain()
	if len(got) != len(msgs) {
		t.Fatalf("sink holds %d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if got[i][0] != msgs[i][0] {
			t.Errorf("message %d out of order", i)
		}
	}

	stats := pol.Stats()
	if stats.FramesSent != 1 || stats.MessagesSent != 5 || stats.FramesDropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStrictPolicy_BlocksUntilConsumed(t *testing.T) {
	q := channel.NewQueue("/strict", channel.Options{Depth: 2})
	pol := policy.NewStrictPolicy(q)

	done := make(chan error, 1)
	go func() { done <- pol.SendFrame(t.Context(), frameMsgs(6)) }()

	received := 0
	for received < 6 {
		if _, err := q.Receive(t.Context()); err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		received++
	}
	if err := <-done; err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}
	if got := pol.Stats().FramesDropped; got != 0 {
		t.Errorf("strict policy dropped %d frames", got)
	}
}

func TestStrictPolicy_SinkErrorIsFatal(t *testing.T) {
	q := channel.NewQueue("/closed", channel.Options{})
	_ = q.Close()
	pol := policy.NewStrictPolicy(q)

	err := pol.SendFrame(t.Context(), frameMsgs(3))
	if !errors.Is(err, channel.ErrClosed) {
		t.Fatalf("SendFrame = %v, want ErrClosed", err)
	}
	if errors.Is(err, policy.ErrFrameDropped) {
		t.Error("closed sink must not be reported as a drop")
	}
	if got := pol.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestDropPolicy_FullSinkDropsWholeFrame(t *testing.T) {
	sink := &policy.StubSink{Capacity: 1}
	if err := sink.TrySend([]byte{0xFF}); err != nil {
		t.Fatalf("prefill failed: %v", err)
	}
	pol := policy.NewDropPolicy(sink, 5*time.Millisecond)

	err := pol.SendFrame(t.Context(), frameMsgs(4))
	if !errors.Is(err, policy.ErrFrameDropped) {
		t.Fatalf("SendFrame = %v, want ErrFrameDropped", err)
	}
	if sink.Len() != 1 {
		t.Errorf("sink holds %d messages, want only the prefill", sink.Len())
	}

	stats := pol.Stats()
	if stats.FramesDropped != 1 || stats.MessagesSent != 0 || stats.MessagesDropped != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDropPolicy_MidFrameTimeoutDropsRest(t *testing.T) {
	sink := &policy.StubSink{Capacity: 2}
	pol := policy.NewDropPolicy(sink, 5*time.Millisecond)

	err := pol.SendFrame(t.Context(), frameMsgs(5))
	if !errors.Is(err, policy.ErrFrameDropped) {
		t.Fatalf("SendFrame = %v, want ErrFrameDropped", err)
	}

	stats := pol.Stats()
	if stats.FramesDropped != 1 || stats.MessagesSent != 2 || stats.MessagesDropped != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDropPolicy_SendsWhenRoom(t *testing.T) {
	q := channel.NewQueue("/drop", channel.Options{Depth: 10})
	pol := policy.NewDropPolicy(q, 0)

	for range 2 {
		if err := pol.SendFrame(t.Context(), frameMsgs(5)); err != nil {
			t.Fatalf("SendFrame failed: %v", err)
		}
	}
	// Queue now holds 10 messages: the third frame has no room.
	if err := pol.SendFrame(t.Context(), frameMsgs(5)); !errors.Is(err, policy.ErrFrameDropped) {
		t.Fatalf("third SendFrame = %v, want ErrFrameDropped", err)
	}

	stats := pol.Stats()
	if stats.FramesSent != 2 || stats.FramesDropped != 1 || stats.MessagesSent != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDropPolicy_CancelledContextIsFatal(t *testing.T) {
	sink := &policy.StubSink{Capacity: 1}
	pol := policy.NewDropPolicy(sink, time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := pol.SendFrame(ctx, frameMsgs(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SendFrame = %v, want context.Canceled", err)
	}
	if pol.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", pol.Stats().Errors)
	}
}

func TestNoopPolicy_CountsWithoutSending(t *testing.T) {
	pol := policy.NewNoopPolicy()
	for range 3 {
		if err := pol.SendFrame(t.Context(), frameMsgs(4)); err != nil {
			t.Fatalf("SendFrame failed: %v", err)
		}
	}
	stats := pol.Stats()
	if stats.FramesSent != 3 || stats.MessagesSent != 12 {
		t.Errorf("stats = %+v", stats)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := pol.SendFrame(ctx, frameMsgs(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("SendFrame on cancelled ctx = %v", err)
	}
}
