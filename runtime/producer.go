package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/policy"
	"github.com/pithecene-io/framelog/types"
)

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	// Codec chunks frames into wire messages.
	Codec *ipc.Codec
	// Sink is the producer->logger channel.
	Sink channel.Channel
	// Policy selects the send policy. Empty means strict.
	Policy policy.Name
	// SendTimeout bounds mid-frame waits under the drop policy.
	SendTimeout time.Duration
	// Clock stamps frames. Defaults to time.Now.
	Clock func() time.Time
	// Logger is required.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// Producer is the sensor-side sender. It assigns frame ids and timestamps,
// chunks each frame and hands the messages to the send policy.
// Safe for concurrent use; frames are sent one at a time.
type Producer struct {
	codec   *ipc.Codec
	policy  policy.Policy
	clock   func() time.Time
	start   time.Time
	logger  *log.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	nextID uint32
	frame  types.Frame
	bufs   [][]byte
}

// NewProducer creates a Producer. Timestamps are milliseconds since the
// producer was created.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if cfg.Codec == nil {
		return nil, errors.New("producer codec is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("producer sink is required")
	}
	pol, err := policy.New(cfg.Policy, cfg.Sink, policy.Config{SendTimeout: cfg.SendTimeout})
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Producer{
		codec:   cfg.Codec,
		policy:  pol,
		clock:   cfg.Clock,
		start:   cfg.Clock(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		nextID:  1,
	}, nil
}

// Publish sends one sensor frame: depth holds w*h samples, color holds
// w*h RGB triples. A frame dropped by the send policy is data loss, not an
// error. Errors are returned for invalid input and for a closed channel or
// cancelled context.
func (p *Producer) Publish(ctx context.Context, depth []int16, color []byte, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", w, h)
	}
	if len(depth) != w*h {
		return fmt.Errorf("depth has %d samples, want %d for %dx%d", len(depth), w*h, w, h)
	}
	if len(color) != w*h*types.ColorBytesPerPixel {
		return fmt.Errorf("color has %d bytes, want %d for %dx%d", len(color), w*h*types.ColorBytesPerPixel, w, h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f := &p.frame
	f.FrameID = p.nextID
	f.TimestampMs = uint32(p.clock().Sub(p.start).Milliseconds())
	f.Width = w
	f.Height = h
	f.Depth = types.EncodeDepth(f.Depth[:0], depth)
	f.Color = append(f.Color[:0], color...)
	p.nextID++

	msgs := p.codec.EncodeFrame(f)
	for len(p.bufs) < len(msgs) {
		p.bufs = append(p.bufs, nil)
	}
	for i := range msgs {
		p.bufs[i] = msgs[i].AppendTo(p.bufs[i][:0])
	}

	err := p.policy.SendFrame(ctx, p.bufs[:len(msgs)])
	if errors.Is(err, policy.ErrFrameDropped) {
		p.logger.Debug("frame dropped at producer", map[string]any{"frame_id": f.FrameID})
		return nil
	}
	return err
}

// Stats returns the send policy counters.
func (p *Producer) Stats() policy.Stats {
	return p.policy.Stats()
}

// PolicyName returns the active send policy.
func (p *Producer) PolicyName() policy.Name {
	return p.policy.Name()
}

// Flush copies the send counters into the metrics collector.
func (p *Producer) Flush() {
	s := p.policy.Stats()
	p.metrics.AbsorbSendStats(s.FramesSent, s.FramesDropped, s.MessagesSent)
}
