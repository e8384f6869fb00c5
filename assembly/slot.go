package assembly

import (
	"context"
	"sync"

	"github.com/pithecene-io/framelog/types"
)

// SlotStats counts slot activity.
type SlotStats struct {
	// Published is the number of frames written to the slot.
	Published int64 `json:"published"`
	// Consumed is the number of reads that observed new data.
	Consumed int64 `json:"consumed"`
	// Overwritten counts frames replaced before any reader saw them.
	Overwritten int64 `json:"overwritten"`
}

// Slot holds the most recent completed frame for a renderer.
//
// Single-slot overwrite semantics: a newer frame replaces an unconsumed
// one and the replacement is counted. Readers poll with Consume, which
// returns the latest frame and whether it is new since the last Consume.
type Slot struct {
	mu     sync.Mutex
	frame  types.Frame
	hasNew bool
	filled bool
	stats  SlotStats

	// notify wakes Next waiters; capacity 1 so Publish never blocks.
	notify chan struct{}
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{notify: make(chan struct{}, 1)}
}

// Publish copies f into the slot, reusing the slot's buffers.
func (s *Slot) Publish(f *types.Frame) {
	s.mu.Lock()
	if s.hasNew {
		s.stats.Overwritten++
	}
	s.frame.FrameID = f.FrameID
	s.frame.TimestampMs = f.TimestampMs
	s.frame.Width = f.Width
	s.frame.Height = f.Height
	s.frame.Depth = append(s.frame.Depth[:0], f.Depth...)
	s.frame.Color = append(s.frame.Color[:0], f.Color...)
	s.hasNew = true
	s.filled = true
	s.stats.Published++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Consume returns a copy of the latest frame and whether it is new since
// the previous Consume. The new-data flag is cleared. Before the first
// Publish it returns a zero Frame and false.
func (s *Slot) Consume() (types.Frame, bool) {
	var out types.Frame
	fresh := s.ConsumeInto(&out)
	return out, fresh
}

// ConsumeInto is Consume writing into dst, reusing dst's buffers.
func (s *Slot) ConsumeInto(dst *types.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		return false
	}
	copyFrame(dst, &s.frame)
	fresh := s.hasNew
	if fresh {
		s.hasNew = false
		s.stats.Consumed++
	}
	return fresh
}

// Peek returns a copy of the latest frame without clearing the new-data flag.
func (s *Slot) Peek() (types.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out types.Frame
	if s.filled {
		copyFrame(&out, &s.frame)
	}
	return out, s.hasNew
}

// Next blocks until new data is available, then consumes it into dst
// as ConsumeInto does.
func (s *Slot) Next(ctx context.Context, dst *types.Frame) error {
	for {
		if s.ConsumeInto(dst) {
			return nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns slot counters.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func copyFrame(dst, src *types.Frame) {
	dst.FrameID = src.FrameID
	dst.TimestampMs = src.TimestampMs
	dst.Width = src.Width
	dst.Height = src.Height
	dst.Depth = append(dst.Depth[:0], src.Depth...)
	dst.Color = append(dst.Color[:0], src.Color...)
}
