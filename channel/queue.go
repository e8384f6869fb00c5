// Package channel provides bounded, named, message-oriented queues.
//
// A Queue carries opaque byte messages up to a configured size. Send copies
// the message, so each receive yields a private buffer. Sends block while
// the queue is full and receives block while it is empty; Try variants
// never block. Queues are looked up by name through a Registry, matching
// the create-on-open semantics of POSIX message queues.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for queue construction.
const (
	// DefaultDepth is the default queue capacity in messages.
	DefaultDepth = 10
	// DefaultMaxMessageSize is the default per-message size limit in bytes.
	DefaultMaxMessageSize = 8192
)

var (
	// ErrFull is returned by TrySend when the queue is at capacity.
	ErrFull = errors.New("channel full")
	// ErrEmpty is returned by TryReceive and ReceiveTimeout when no message is available.
	ErrEmpty = errors.New("channel empty")
	// ErrClosed is returned after Close once no buffered messages remain.
	ErrClosed = errors.New("channel closed")
	// ErrMessageTooLarge is returned when a message exceeds the queue's size limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// Channel is a bounded, message-oriented FIFO.
type Channel interface {
	// Name returns the channel name.
	Name() string
	// Send enqueues a copy of msg, blocking while the channel is full.
	Send(ctx context.Context, msg []byte) error
	// TrySend enqueues a copy of msg or returns ErrFull.
	TrySend(msg []byte) error
	// Receive dequeues the next message, blocking while the channel is empty.
	Receive(ctx context.Context) ([]byte, error)
	// ReceiveTimeout dequeues the next message, waiting at most d.
	// Returns ErrEmpty when d elapses first.
	ReceiveTimeout(ctx context.Context, d time.Duration) ([]byte, error)
	// TryReceive dequeues the next message or returns ErrEmpty.
	TryReceive() ([]byte, error)
	// Close stops further sends. Buffered messages remain receivable.
	Close() error
}

// Options configures a queue.
type Options struct {
	// Depth is the capacity in messages. Zero means DefaultDepth.
	Depth int
	// MaxMessageSize is the per-message limit in bytes. Zero means DefaultMaxMessageSize.
	MaxMessageSize int
}

func (o Options) withDefaults() Options {
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	return o
}

// Stats is a point-in-time view of queue counters.
type Stats struct {
	Name       string `json:"name"`
	Depth      int    `json:"depth"`
	Capacity   int    `json:"capacity"`
	Sent       int64  `json:"sent"`
	Received   int64  `json:"received"`
	FullEvents int64  `json:"full_events"`
	Closed     bool   `json:"closed"`
}

// Queue is an in-process Channel backed by a buffered Go channel.
type Queue struct {
	name    string
	maxSize int
	ch      chan []byte

	done      chan struct{}
	closeOnce sync.Once

	sent     atomic.Int64
	received atomic.Int64
	full     atomic.Int64
}

var _ Channel = (*Queue)(nil)

// NewQueue creates a standalone queue. Most callers go through Registry.Open.
func NewQueue(name string, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		name:    name,
		maxSize: opts.MaxMessageSize,
		ch:      make(chan []byte, opts.Depth),
		done:    make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// MaxMessageSize returns the per-message size limit.
func (q *Queue) MaxMessageSize() int {
	return q.maxSize
}

func (q *Queue) prepare(msg []byte) ([]byte, error) {
	if len(msg) > q.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d on %s", ErrMessageTooLarge, len(msg), q.maxSize, q.name)
	}
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}
	return append([]byte(nil), msg...), nil
}

// Send enqueues a copy of msg, blocking while the queue is full.
func (q *Queue) Send(ctx context.Context, msg []byte) error {
	buf, err := q.prepare(msg)
	if err != nil {
		return err
	}

	select {
	case q.ch <- buf:
		q.sent.Add(1)
		return nil
	default:
		q.full.Add(1)
	}

	select {
	case q.ch <- buf:
		q.sent.Add(1)
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues a copy of msg or returns ErrFull.
func (q *Queue) TrySend(msg []byte) error {
	buf, err := q.prepare(msg)
	if err != nil {
		return err
	}

	select {
	case q.ch <- buf:
		q.sent.Add(1)
		return nil
	default:
		q.full.Add(1)
		return ErrFull
	}
}

// TryReceive dequeues the next message or returns ErrEmpty.
// After Close, returns ErrClosed once the queue is drained.
func (q *Queue) TryReceive() ([]byte, error) {
	select {
	case msg := <-q.ch:
		q.received.Add(1)
		return msg, nil
	default:
	}

	select {
	case <-q.done:
		return nil, ErrClosed
	default:
		return nil, ErrEmpty
	}
}

// Receive dequeues the next message, blocking while the queue is empty.
func (q *Queue) Receive(ctx context.Context) ([]byte, error) {
	return q.receive(ctx, nil)
}

// ReceiveTimeout dequeues the next message, waiting at most d.
func (q *Queue) ReceiveTimeout(ctx context.Context, d time.Duration) ([]byte, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	return q.receive(ctx, timer.C)
}

func (q *Queue) receive(ctx context.Context, timeout <-chan time.Time) ([]byte, error) {
	if msg, err := q.TryReceive(); err != ErrEmpty {
		return msg, err
	}

	select {
	case msg := <-q.ch:
		q.received.Add(1)
		return msg, nil
	case <-q.done:
		// Drain anything that raced with Close.
		return q.TryReceive()
	case <-timeout:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops further sends and wakes blocked senders and receivers.
// Buffered messages remain receivable. Close is idempotent.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	closed := false
	select {
	case <-q.done:
		closed = true
	default:
	}
	return Stats{
		Name:       q.name,
		Depth:      len(q.ch),
		Capacity:   cap(q.ch),
		Sent:       q.sent.Load(),
		Received:   q.received.Load(),
		FullEvents: q.full.Load(),
		Closed:     closed,
	}
}
