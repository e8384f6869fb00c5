package policy

import (
	"context"
)

// StrictPolicy sends every message, blocking on a full sink.
//
// Semantics:
//   - No drops: each message is sent in order
//   - Backpressure: the producer blocks on consumer latency
//   - Sink errors (closed channel, cancelled context) stop the producer
type StrictPolicy struct {
	sink  Sink
	stats statsRecorder
}

// NewStrictPolicy creates a strict policy writing to sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

// SendFrame sends msgs in order, blocking while the sink is full.
func (p *StrictPolicy) SendFrame(ctx context.Context, msgs [][]byte) error {
	for i, m := range msgs {
		if err := p.sink.Send(ctx, m); err != nil {
			p.stats.frameFailed(i)
			return err
		}
	}
	p.stats.frameSent(len(msgs))
	return nil
}

// Name returns NameStrict.
func (p *StrictPolicy) Name() Name {
	return NameStrict
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
