package assembly

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
)

// ReceiverConfig configures a consumer-side Receiver.
type ReceiverConfig struct {
	// Source is the logger->consumer channel.
	Source channel.Channel
	// Codec decodes wire messages.
	Codec *ipc.Codec
	// Limits bounds frame allocation.
	Limits Limits
	// Slot receives completed frames.
	Slot *Slot
	// Logger for warnings. Required.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// Receiver is the consumer receive loop: it reassembles frames arriving on
// the logger->consumer channel and publishes each completed frame to a Slot.
type Receiver struct {
	src   channel.Channel
	codec *ipc.Codec

	mu  sync.Mutex // guards asm for Stats readers
	asm *Reassembler

	slot    *Slot
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewReceiver creates a Receiver.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	return &Receiver{
		src:     cfg.Source,
		codec:   cfg.Codec,
		asm:     NewReassembler(cfg.Codec, cfg.Limits),
		slot:    cfg.Slot,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Run receives until ctx is cancelled or the source channel is closed.
// Both are normal termination and return nil.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := r.src.Receive(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		r.handle(raw)
	}
}

func (r *Receiver) handle(raw []byte) {
	msg, err := r.codec.Decode(raw)
	if err != nil {
		r.metrics.IncMalformedMessages()
		r.logger.Warn("dropping malformed message", map[string]any{"error": err.Error()})
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.asm.Apply(msg)
	if err != nil {
		ReportApplyError(r.logger, r.metrics, err)
		return
	}

	switch res {
	case ResultStale:
		r.metrics.IncStaleChunks()
	case ResultCompleted:
		frame := r.asm.Current()
		r.slot.Publish(&frame)
		r.metrics.IncFramesDelivered()
	}
}

// Stats returns the receiver's reassembly counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asm.Stats()
}

// ReportApplyError logs and counts an error returned by Reassembler.Apply.
func ReportApplyError(logger *log.Logger, m *metrics.Collector, err error) {
	var allocErr *AllocationError
	switch {
	case errors.As(err, &allocErr):
		m.IncAllocationFailures()
		logger.Warn("frame allocation failed, keeping previous frame", map[string]any{
			"frame_id": allocErr.FrameID,
			"width":    allocErr.Width,
			"height":   allocErr.Height,
			"reason":   allocErr.Reason,
		})
	case ipc.IsBoundsViolation(err):
		m.IncBoundsViolations()
		logger.Warn("chunk rejected by bounds check", map[string]any{"error": err.Error()})
	default:
		m.IncMalformedMessages()
		logger.Warn("chunk rejected", map[string]any{"error": err.Error()})
	}
}
