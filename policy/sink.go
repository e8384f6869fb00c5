package policy

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/framelog/channel"
)

// Sink abstracts the channel a policy writes to.
// channel.Channel satisfies it.
type Sink interface {
	// Send enqueues msg, blocking while the sink is full.
	Send(ctx context.Context, msg []byte) error
	// TrySend enqueues msg or returns channel.ErrFull.
	TrySend(msg []byte) error
}

// Config tunes policy construction.
type Config struct {
	// SendTimeout bounds how long the drop policy waits for room once a
	// frame has started. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
}

// DefaultSendTimeout is the drop policy's mid-frame wait.
const DefaultSendTimeout = 50 * time.Millisecond

// StubSink is a test sink that records accepted messages.
// Capacity bounds how many messages it accepts before reporting
// channel.ErrFull; zero means unbounded.
type StubSink struct {
	mu sync.Mutex

	// Capacity is the number of messages accepted before the sink is full.
	Capacity int
	// Err, when set, is returned by every send.
	Err error

	// Messages stores accepted messages in order.
	Messages [][]byte
	// Blocked counts sends that found the sink full.
	Blocked int64
}

// NewStubSink creates an unbounded stub sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// TrySend records msg or returns channel.ErrFull.
func (s *StubSink) TrySend(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	if s.Capacity > 0 && len(s.Messages) >= s.Capacity {
		s.Blocked++
		return channel.ErrFull
	}
	s.Messages = append(s.Messages, append([]byte(nil), msg...))
	return nil
}

// Send records msg. A full stub sink blocks until ctx is done.
func (s *StubSink) Send(ctx context.Context, msg []byte) error {
	err := s.TrySend(msg)
	if err != channel.ErrFull {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// Drain empties the sink, returning the messages it held.
func (s *StubSink) Drain() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.Messages
	s.Messages = nil
	return out
}

// Len returns the number of held messages.
func (s *StubSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}
