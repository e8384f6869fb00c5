package policy

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/framelog/channel"
)

// DropPolicy discards frames the sink has no room for.
//
// Semantics:
//   - The first message of a frame is offered without blocking; a full
//     sink drops the whole frame before anything is sent
//   - Once a frame has started, each further message may wait up to the
//     send timeout; on timeout the rest of the frame is dropped and the
//     consumer sees an incomplete frame it will never finish
//   - Dropped frames are data loss, reported as ErrFrameDropped
//   - Closed sinks and cancelled contexts are fatal, as with strict
type DropPolicy struct {
	sink    Sink
	timeout time.Duration
	stats   statsRecorder
}

// NewDropPolicy creates a drop policy. A zero timeout means DefaultSendTimeout.
func NewDropPolicy(sink Sink, timeout time.Duration) *DropPolicy {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &DropPolicy{sink: sink, timeout: timeout}
}

// SendFrame sends msgs in order or drops the frame.
func (p *DropPolicy) SendFrame(ctx context.Context, msgs [][]byte) error {
	if len(msgs) == 0 {
		p.stats.frameSent(0)
		return nil
	}

	if err := p.sink.TrySend(msgs[0]); err != nil {
		if errors.Is(err, channel.ErrFull) {
			p.stats.frameDropped(0, len(msgs))
			return ErrFrameDropped
		}
		p.stats.frameFailed(0)
		return err
	}

	for i := 1; i < len(msgs); i++ {
		err := p.sendBounded(ctx, msgs[i])
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			p.stats.frameDropped(i, len(msgs)-i)
			return ErrFrameDropped
		}
		p.stats.frameFailed(i)
		return err
	}

	p.stats.frameSent(len(msgs))
	return nil
}

func (p *DropPolicy) sendBounded(ctx context.Context, msg []byte) error {
	if err := p.sink.TrySend(msg); !errors.Is(err, channel.ErrFull) {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.sink.Send(sendCtx, msg)
}

// Name returns NameDrop.
func (p *DropPolicy) Name() Name {
	return NameDrop
}

// Stats returns policy statistics.
func (p *DropPolicy) Stats() Stats {
	return p.stats.snapshot()
}
