package policy

import (
	"context"
)

// NoopPolicy discards every frame without sending it.
// Used to measure producer throughput with no consumer attached.
// Frames are counted as sent so throughput figures stay meaningful.
type NoopPolicy struct {
	stats statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

// SendFrame counts the frame and returns nil unless ctx is done.
func (p *NoopPolicy) SendFrame(ctx context.Context, msgs [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.stats.frameSent(len(msgs))
	return nil
}

// Name returns NameNoop.
func (p *NoopPolicy) Name() Name {
	return NameNoop
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
