package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/framelog/adapter"
	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/lode"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/policy"
	"github.com/pithecene-io/framelog/types"
)

// DefaultShutdownTimeout bounds Stop's join.
const DefaultShutdownTimeout = 5 * time.Second

// Role names reported by Stop.
const (
	RoleSensor    = "sensor"
	RoleLogger    = "logger"
	RolePlayback  = "playback"
	RoleReceiver  = "receiver"
	RoleFinalizer = "finalizer"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Registry supplies the named channels. Nil creates a private registry
	// with ChannelOptions.
	Registry *channel.Registry
	// ChannelOptions sizes channels of a private registry.
	ChannelOptions channel.Options
	// Limits bounds frame allocation in both reassemblers.
	Limits assembly.Limits

	// Policy and SendTimeout configure the producer.
	Policy      policy.Name
	SendTimeout time.Duration

	// ControlPollInterval, FrameInterval, IdlePoll and MaxFrameBytes tune
	// the logger and playback engines. MaxFrameBytes bounds both recording
	// and replay. Zero values use package defaults.
	ControlPollInterval time.Duration
	FrameInterval       time.Duration
	IdlePoll            time.Duration
	MaxFrameBytes       int

	// Synthetic enables the synthetic sensor source when non-nil.
	Synthetic *SyntheticConfig

	// Archiver and Adapter are optional finalizer sinks.
	Archiver lode.SessionArchiver
	Adapter  adapter.Adapter

	// Session identifies this process lifetime. Nil creates one.
	Session *types.SessionMeta
	Clock   func() time.Time
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// StopError reports roles that did not finish within the shutdown timeout.
// Their goroutines are abandoned.
type StopError struct {
	Stuck []string
}

func (e *StopError) Error() string {
	return fmt.Sprintf("roles did not stop in time: %s", strings.Join(e.Stuck, ", "))
}

type role struct {
	name string
	done chan struct{}
	err  error
}

// Pipeline wires producer, logger, playback and consumer roles to the
// three named channels and runs one goroutine per role.
type Pipeline struct {
	cfg      PipelineConfig
	registry *channel.Registry
	codec    *ipc.Codec

	sensor  *channel.Queue
	viewer  *channel.Queue
	control *channel.Queue

	state     *State
	producer  *Producer
	source    *SyntheticSource
	logger    *LoggerEngine
	playback  *PlaybackEngine
	receiver  *assembly.Receiver
	slot      *assembly.Slot
	finalizer *Finalizer

	log     *log.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	roles     []*role
	stopped   bool
}

// NewPipeline opens the channels and builds every role.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Session == nil {
		cfg.Session = types.NewSessionMeta()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	registry := cfg.Registry
	if registry == nil {
		registry = channel.NewRegistry(cfg.ChannelOptions)
	}

	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		state:    NewState(),
		slot:     assembly.NewSlot(),
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}

	var err error
	if p.sensor, err = registry.Open(channel.SensorLogger); err != nil {
		return nil, err
	}
	if p.viewer, err = registry.Open(channel.LoggerViewer); err != nil {
		return nil, err
	}
	if p.control, err = registry.Open(channel.Control); err != nil {
		return nil, err
	}

	// All three channels share one message size, so one codec serves every role.
	if p.codec, err = ipc.NewCodec(p.sensor.MaxMessageSize()); err != nil {
		return nil, fmt.Errorf("channel message size: %w", err)
	}

	sessionID := cfg.Session.SessionID
	p.finalizer = NewFinalizer(FinalizerConfig{
		Archiver: cfg.Archiver,
		Adapter:  cfg.Adapter,
		Logger:   cfg.Logger.With("finalizer"),
		Metrics:  cfg.Metrics,
	})

	p.producer, err = NewProducer(ProducerConfig{
		Codec:       p.codec,
		Sink:        p.sensor,
		Policy:      cfg.Policy,
		SendTimeout: cfg.SendTimeout,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.With("producer"),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Synthetic != nil {
		p.source = NewSyntheticSource(*cfg.Synthetic, p.producer)
	}

	p.logger = NewLoggerEngine(LoggerConfig{
		Input:               p.sensor,
		Output:              p.viewer,
		Control:             p.control,
		Codec:               p.codec,
		Limits:              cfg.Limits,
		MaxFrameBytes:       cfg.MaxFrameBytes,
		ControlPollInterval: cfg.ControlPollInterval,
		State:               p.state,
		Finalizer:           p.finalizer,
		SessionID:           sessionID,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger.With("logger"),
		Metrics:             cfg.Metrics,
	})

	p.playback = NewPlaybackEngine(PlaybackConfig{
		Output:        p.viewer,
		Codec:         p.codec,
		State:         p.state,
		FrameInterval: cfg.FrameInterval,
		IdlePoll:      cfg.IdlePoll,
		MaxFrameBytes: cfg.MaxFrameBytes,
		Finalizer:     p.finalizer,
		SessionID:     sessionID,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger.With("playback"),
		Metrics:       cfg.Metrics,
	})

	p.receiver = assembly.NewReceiver(assembly.ReceiverConfig{
		Source:  p.viewer,
		Codec:   p.codec,
		Limits:  cfg.Limits,
		Slot:    p.slot,
		Logger:  cfg.Logger.With("receiver"),
		Metrics: cfg.Metrics,
	})

	return p, nil
}

// Start launches one goroutine per role. The pipeline runs until Stop or
// until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pipeline already started")
	}
	p.started = true
	p.startedAt = p.cfg.Clock()

	ctx, p.cancel = context.WithCancel(ctx)

	// The finalizer outlives the role context so sessions closed during
	// shutdown are still archived; Stop drains it.
	go p.finalizer.Run(context.WithoutCancel(ctx))

	if p.source != nil {
		p.spawn(ctx, RoleSensor, p.source.Run)
	}
	p.spawn(ctx, RoleLogger, p.logger.Run)
	p.spawn(ctx, RolePlayback, p.playback.Run)
	p.spawn(ctx, RoleReceiver, p.receiver.Run)

	p.log.Info("pipeline started", map[string]any{
		"policy":        string(p.producer.PolicyName()),
		"max_message":   p.codec.MaxMessageSize(),
		"synthetic":     p.source != nil,
		"archive":       p.cfg.Archiver != nil,
		"notifications": p.cfg.Adapter != nil,
	})
	return nil
}

func (p *Pipeline) spawn(ctx context.Context, name string, run func(context.Context) error) {
	r := &role{name: name, done: make(chan struct{})}
	p.roles = append(p.roles, r)
	go func() {
		defer close(r.done)
		r.err = run(ctx)
		if r.err != nil {
			p.log.Error("role exited with error", map[string]any{
				"role":  name,
				"error": r.err.Error(),
			})
		}
	}()
}

// Control sends a control command to the logger through the control channel.
func (p *Pipeline) Control(ctx context.Context, cmd types.ControlCommand, filename string) error {
	if !cmd.Valid() {
		return fmt.Errorf("unknown control command %d", uint32(cmd))
	}
	if cmd.NeedsFilename() && filename == "" {
		return fmt.Errorf("%s requires a filename", cmd)
	}
	if len(filename) > ipc.MaxFilenameLen {
		return fmt.Errorf("filename longer than %d bytes", ipc.MaxFilenameLen)
	}
	msg := p.codec.EncodeControl(cmd, filename)
	return p.control.Send(ctx, msg.Marshal())
}

// Stop shuts the pipeline down: it cancels every role (the logger closes an
// active recording with its end-of-stream record, the playback engine stops
// an active playback), closes the channels, and waits up to timeout for the
// roles and then for the finalizer to drain. Roles still running after the
// timeout are reported in a *StopError. Role errors are joined in.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	roles := p.roles
	p.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	deadline := time.Now().Add(timeout)

	p.cancel()
	p.registry.CloseAll()

	var stuck []string
	var errs []error
	for _, r := range roles {
		select {
		case <-r.done:
			if r.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
			}
		case <-time.After(time.Until(deadline)):
			stuck = append(stuck, r.name)
		}
	}

	p.producer.Flush()

	if !p.finalizer.Close(max(time.Until(deadline), 0)) {
		stuck = append(stuck, RoleFinalizer)
	}

	if len(stuck) > 0 {
		p.log.Error("pipeline stop timed out", map[string]any{"stuck": stuck})
		errs = append(errs, &StopError{Stuck: stuck})
	} else {
		p.log.Info("pipeline stopped", map[string]any{
			"duration_ms": p.cfg.Clock().Sub(p.startedAt).Milliseconds(),
		})
	}
	return errors.Join(errs...)
}

// State returns the logger state.
func (p *Pipeline) State() LoggerState {
	return p.state.Snapshot()
}

// Slot returns the consumer's current-frame slot.
func (p *Pipeline) Slot() *assembly.Slot {
	return p.slot
}

// Producer returns the sensor-side sender.
func (p *Pipeline) Producer() *Producer {
	return p.producer
}

// SensorChannel returns the producer to logger channel, for feeding frames
// from another process.
func (p *Pipeline) SensorChannel() channel.Channel {
	return p.sensor
}

// ControlChannel returns the control channel, for socket bridges.
func (p *Pipeline) ControlChannel() channel.Channel {
	return p.control
}

// Codec returns the codec shared by every role.
func (p *Pipeline) Codec() *ipc.Codec {
	return p.codec
}

// Sessions returns every finished recording and playback session.
func (p *Pipeline) Sessions() []types.SessionResult {
	return p.finalizer.Sessions()
}

// Session returns the process session metadata.
func (p *Pipeline) Session() *types.SessionMeta {
	return p.cfg.Session
}

// ReceiverStats returns the consumer reassembly counters.
func (p *Pipeline) ReceiverStats() assembly.Stats {
	return p.receiver.Stats()
}

// ChannelStats returns counters for every registered channel.
func (p *Pipeline) ChannelStats() []channel.Stats {
	return p.registry.Stats()
}
