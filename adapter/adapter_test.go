package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/framelog/types"
)

func TestNewSessionCompletedEvent(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	res := &types.SessionResult{
		SessionID:   "s-1",
		Kind:        types.SessionRecording,
		Filename:    "walk.bin",
		Outcome:     types.OutcomeComplete,
		Frames:      90,
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
	}

	ev := NewSessionCompletedEvent(res, "file:///archive/walk.bin")
	if ev.EventType != EventType || ev.ContractVersion != ContractVersion {
		t.Errorf("event header = %q/%q", ev.EventType, ev.ContractVersion)
	}
	if ev.Kind != "recording" || ev.Outcome != "complete" || ev.Frames != 90 {
		t.Errorf("event = %+v", ev)
	}
	if ev.DurationMs != 3000 {
		t.Errorf("DurationMs = %d, want 3000", ev.DurationMs)
	}
	if ev.Timestamp != "2026-10-19T12:00:03Z" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
	if ev.StoragePath != "file:///archive/walk.bin" {
		t.Errorf("StoragePath = %q", ev.StoragePath)
	}
}

func TestRetry(t *testing.T) {
	errBoom := errors.New("boom")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		retries   int
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"first attempt succeeds", 3, 0, errBoom, 1, false},
		{"succeeds after retries", 3, 2, errBoom, 3, false},
		{"exhausts retries", 2, 10, errBoom, 3, true},
		{"permanent error stops", 5, 10, errFatal, 1, true},
		{"negative retries means one attempt", -1, 10, errBoom, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), RetryPolicy{
				Name:      "test",
				Retries:   tt.retries,
				Backoff:   time.Millisecond,
				Permanent: func(err error) bool { return errors.Is(err, errFatal) },
			}, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Retry error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, tt.err) {
				t.Errorf("Retry error %v does not wrap %v", err, tt.err)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := Retry(ctx, RetryPolicy{Name: "test"}, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry = %v, want context.Canceled", err)
	}
}
