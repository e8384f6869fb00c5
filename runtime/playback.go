package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

// Playback pacing defaults.
const (
	// DefaultFrameInterval is the spacing between replayed frames (30 fps).
	DefaultFrameInterval = time.Second / 30
	// DefaultIdlePoll bounds how long an idle playback engine sleeps
	// between state checks when no wake signal arrives.
	DefaultIdlePoll = 100 * time.Millisecond
)

// PlaybackConfig configures a PlaybackEngine.
type PlaybackConfig struct {
	// Output is the logger->consumer channel.
	Output channel.Channel
	// Codec encodes replayed frames.
	Codec *ipc.Codec
	// State is shared with the LoggerEngine. Required.
	State *State
	// FrameInterval paces emission. Zero means DefaultFrameInterval.
	FrameInterval time.Duration
	// IdlePoll is the idle wait. Zero means DefaultIdlePoll.
	IdlePoll time.Duration
	// MaxFrameBytes bounds each stream of a stored record. Zero means store.DefaultMaxFrameBytes.
	MaxFrameBytes int
	// Finalizer receives finished playback sessions. Optional.
	Finalizer *Finalizer
	// SessionID tags session results.
	SessionID string
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger is required.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// PlaybackEngine replays the file named by the shared state onto the
// consumer channel while the logger is Playing. The file is opened lazily
// on the first iteration after StartPlayback.
type PlaybackEngine struct {
	cfg   PlaybackConfig
	state *State
	buf   []byte

	logger  *log.Logger
	metrics *metrics.Collector
}

// NewPlaybackEngine creates a PlaybackEngine.
func NewPlaybackEngine(cfg PlaybackConfig) *PlaybackEngine {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultIdlePoll
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &PlaybackEngine{
		cfg:     cfg,
		state:   cfg.State,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Run is the playback loop. Returns nil when ctx is done or the output
// channel is closed. Any playback still open on exit is stopped.
func (e *PlaybackEngine) Run(ctx context.Context) error {
	defer e.closePlayback()

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, ok := e.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-e.state.wake:
			case <-time.After(e.cfg.IdlePoll):
			}
			continue
		}

		emittedAt := time.Now()
		if err := e.emit(ctx, &frame); err != nil {
			if ctx.Err() != nil || errors.Is(err, channel.ErrClosed) {
				return nil
			}
			return err
		}

		if wait := e.cfg.FrameInterval - time.Since(emittedAt); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	}
}

// next reads the next stored frame under the playback mutex. It returns
// false when not playing or when the read ended playback. The returned
// frame aliases the reader's buffers, which only this goroutine reuses.
func (e *PlaybackEngine) next() (types.Frame, bool) {
	s := e.state
	s.playMu.Lock()
	if !s.play.playing {
		s.playMu.Unlock()
		return types.Frame{}, false
	}

	if s.play.reader == nil {
		r, err := store.Open(s.play.filename, e.cfg.MaxFrameBytes)
		if err != nil {
			result := stopPlaybackLocked(s, e.cfg.SessionID, types.OutcomeFailed, err.Error(), e.cfg.Clock())
			s.playMu.Unlock()
			e.metrics.IncPlaybacksFailed()
			e.logger.Error("failed to open recording for playback", map[string]any{
				"filename": result.Filename,
				"error":    err.Error(),
			})
			e.cfg.Finalizer.Submit(result, "")
			return types.Frame{}, false
		}
		s.play.reader = r
	}

	frame, err := s.play.reader.ReadFrame()
	if err != nil {
		outcome, message := PlaybackOutcome(err, s.play.frames)
		result := stopPlaybackLocked(s, e.cfg.SessionID, outcome, message, e.cfg.Clock())
		s.playMu.Unlock()
		e.finished(result)
		return types.Frame{}, false
	}

	s.play.frames++
	n := s.play.frames
	s.playMu.Unlock()

	e.metrics.IncFramesPlayed()
	e.logger.Debug("playing frame", map[string]any{
		"frame":        n,
		"frame_id":     frame.FrameID,
		"timestamp_ms": frame.TimestampMs,
	})
	return frame, true
}

func (e *PlaybackEngine) finished(result *types.SessionResult) {
	fields := map[string]any{
		"filename": result.Filename,
		"frames":   result.Frames,
		"outcome":  string(result.Outcome),
	}
	switch result.Outcome {
	case types.OutcomeComplete:
		e.metrics.IncPlaybacksCompleted()
		e.logger.Info("playback finished", fields)
	case types.OutcomeIncomplete:
		e.metrics.IncPlaybacksIncomplete()
		fields["message"] = result.Message
		e.logger.Warn("playback ended early", fields)
	default:
		e.metrics.IncPlaybacksFailed()
		fields["message"] = result.Message
		e.logger.Error("playback failed", fields)
	}
	e.cfg.Finalizer.Submit(result, "")
}

// emit sends Metadata, depth chunks and color chunks for one frame.
// No lock is held while sending.
func (e *PlaybackEngine) emit(ctx context.Context, f *types.Frame) error {
	for _, msg := range e.cfg.Codec.EncodeFrame(f) {
		e.buf = msg.AppendTo(e.buf[:0])
		if err := e.cfg.Output.Send(ctx, e.buf); err != nil {
			return err
		}
	}
	return nil
}

// closePlayback stops an open playback on shutdown.
func (e *PlaybackEngine) closePlayback() {
	s := e.state
	s.playMu.Lock()
	if !s.play.playing {
		s.playMu.Unlock()
		return
	}
	result := stopPlaybackLocked(s, e.cfg.SessionID, types.OutcomeStopped, "stopped on shutdown", e.cfg.Clock())
	s.playMu.Unlock()

	e.logger.Info("playback closed on shutdown", map[string]any{
		"filename": result.Filename,
		"frames":   result.Frames,
	})
	e.cfg.Finalizer.Submit(result, "")
}
