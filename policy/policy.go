// Package policy decides how the producer hands encoded frames to the
// sensor-to-logger channel when the channel cannot keep up.
//
// A frame is the ordered sequence of its Metadata, depth chunk and color
// chunk messages. Policies never reorder or alter messages:
//   - strict: every message is sent, blocking while the channel is full
//   - drop: a frame the channel has no room for is discarded, which is
//     data loss at the producer and not a fatal condition
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFrameDropped is returned by SendFrame when the policy discarded the
// remainder of a frame. It is not fatal; the producer moves on to the next frame.
var ErrFrameDropped = errors.New("frame dropped")

// Name identifies a policy in configuration and metrics.
type Name string

const (
	// NameStrict selects StrictPolicy.
	NameStrict Name = "strict"
	// NameDrop selects DropPolicy.
	NameDrop Name = "drop"
	// NameNoop selects NoopPolicy.
	NameNoop Name = "noop"
)

// ParseName parses a policy name from configuration.
func ParseName(s string) (Name, error) {
	switch n := Name(s); n {
	case NameStrict, NameDrop, NameNoop:
		return n, nil
	case "":
		return NameStrict, nil
	default:
		return "", fmt.Errorf("unknown send policy %q (want strict or drop)", s)
	}
}

// Policy sends the messages of one frame to a Sink.
type Policy interface {
	// SendFrame sends msgs in order.
	// Returns ErrFrameDropped when the frame was (partially) discarded;
	// any other error means the sink is unusable and the producer should stop.
	SendFrame(ctx context.Context, msgs [][]byte) error

	// Name returns the policy name.
	Name() Name

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats represents send policy counters.
type Stats struct {
	// FramesSent is the number of frames whose every message was sent.
	FramesSent int64 `json:"frames_sent"`
	// FramesDropped is the number of frames discarded in whole or in part.
	FramesDropped int64 `json:"frames_dropped"`
	// MessagesSent is the number of messages accepted by the sink.
	MessagesSent int64 `json:"messages_sent"`
	// MessagesDropped is the number of messages never handed to the sink.
	MessagesDropped int64 `json:"messages_dropped"`
	// Errors is the number of fatal sink errors.
	Errors int64 `json:"errors"`
}

// New builds the named policy over sink.
func New(name Name, sink Sink, cfg Config) (Policy, error) {
	switch name {
	case NameStrict, "":
		return NewStrictPolicy(sink), nil
	case NameDrop:
		return NewDropPolicy(sink, cfg.SendTimeout), nil
	case NameNoop:
		return NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown send policy %q", name)
	}
}

// statsRecorder is an internal helper for thread-safe stats management.
// Policies call explicit methods to record outcomes; the recorder does
// not infer any policy decision.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) frameSent(messages int) {
	r.mu.Lock()
	r.stats.FramesSent++
	r.stats.MessagesSent += int64(messages)
	r.mu.Unlock()
}

func (r *statsRecorder) frameDropped(sent, dropped int) {
	r.mu.Lock()
	r.stats.FramesDropped++
	r.stats.MessagesSent += int64(sent)
	r.stats.MessagesDropped += int64(dropped)
	r.mu.Unlock()
}

func (r *statsRecorder) frameFailed(sent int) {
	r.mu.Lock()
	r.stats.Errors++
	r.stats.MessagesSent += int64(sent)
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
