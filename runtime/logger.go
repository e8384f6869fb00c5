package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

// DefaultControlPollInterval bounds how long the logger waits for producer
// data before checking the control channel again.
const DefaultControlPollInterval = 100 * time.Millisecond

// LoggerConfig configures a LoggerEngine.
type LoggerConfig struct {
	// Input is the producer->logger channel.
	Input channel.Channel
	// Output is the logger->consumer channel.
	Output channel.Channel
	// Control carries control messages.
	Control channel.Channel
	// Codec decodes and encodes wire messages.
	Codec *ipc.Codec
	// Limits bounds frame allocation in the logger's reassembler.
	Limits assembly.Limits
	// MaxFrameBytes bounds each stream of a recorded frame. Zero means
	// store.DefaultMaxFrameBytes.
	MaxFrameBytes int
	// ControlPollInterval is the bounded producer wait. Zero means DefaultControlPollInterval.
	ControlPollInterval time.Duration
	// State is shared with the PlaybackEngine. Required.
	State *State
	// Finalizer receives finished sessions. Optional.
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

// LoggerEngine is the logger role: it forwards live producer messages to
// the consumer while passthrough is enabled, records completed frames while
// recording, and applies control commands.
//
// Transitions happen only on this goroutine, so the record and playback
// checks in each handler never race with another transition. The playback
// engine may only leave Playing.
type LoggerEngine struct {
	cfg   LoggerConfig
	state *State
	asm   *assembly.Reassembler

	// frameGen is the recording generation observed when the frame under
	// assembly received its Metadata.
	frameGen uint64

	logger  *log.Logger
	metrics *metrics.Collector
}

// NewLoggerEngine creates a LoggerEngine.
func NewLoggerEngine(cfg LoggerConfig) *LoggerEngine {
	if cfg.ControlPollInterval <= 0 {
		cfg.ControlPollInterval = DefaultControlPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &LoggerEngine{
		cfg:     cfg,
		state:   cfg.State,
		asm:     assembly.NewReassembler(cfg.Codec, cfg.Limits),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// State returns a snapshot of the logger state.
func (e *LoggerEngine) State() LoggerState {
	return e.state.Snapshot()
}

// Run is the logger main loop. Each iteration drains at most one control
// message, then waits up to ControlPollInterval for producer data.
// Returns nil when ctx is done or the input channel is closed. An active
// recording is closed with its end-of-stream record on the way out.
func (e *LoggerEngine) Run(ctx context.Context) error {
	defer e.closeRecording()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if raw, err := e.cfg.Control.TryReceive(); err == nil {
			e.handleControl(raw)
		}

		raw, err := e.cfg.Input.ReceiveTimeout(ctx, e.cfg.ControlPollInterval)
		switch {
		case err == nil:
			e.handleData(ctx, raw)
		case errors.Is(err, channel.ErrEmpty):
		case errors.Is(err, channel.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

func (e *LoggerEngine) handleData(ctx context.Context, raw []byte) {
	e.metrics.IncMessagesReceived()

	if e.state.passThrough() {
		if err := e.cfg.Output.Send(ctx, raw); err != nil {
			if ctx.Err() == nil && !errors.Is(err, channel.ErrClosed) {
				e.logger.Warn("failed to forward message", map[string]any{"error": err.Error()})
			}
		} else {
			e.metrics.IncMessagesForwarded()
		}
	}

	msg, err := e.cfg.Codec.Decode(raw)
	if err != nil {
		e.metrics.IncMalformedMessages()
		e.logger.Warn("dropping malformed message", map[string]any{"error": err.Error()})
		return
	}

	res, err := e.asm.Apply(msg)
	if err != nil {
		assembly.ReportApplyError(e.logger, e.metrics, err)
		return
	}

	switch res {
	case assembly.ResultStarted:
		e.frameGen = e.state.recordGen()
	case assembly.ResultStale:
		e.metrics.IncStaleChunks()
	case assembly.ResultCompleted:
		e.metrics.IncFramesAssembled()
		e.recordFrame()
	}
}

// recordFrame writes the completed frame when a recording is active and
// the frame started assembling after the recording did.
func (e *LoggerEngine) recordFrame() {
	s := e.state
	s.recMu.Lock()
	if s.rec.writer == nil || e.frameGen != s.rec.gen {
		s.recMu.Unlock()
		return
	}

	frame := e.asm.Current()
	err := s.rec.writer.WriteFrame(&frame)
	if err == nil {
		s.rec.frames++
		s.recMu.Unlock()
		e.metrics.IncFramesRecorded()
		return
	}

	result := e.endRecordingLocked(nil, err)
	s.recMu.Unlock()

	e.metrics.IncRecordWriteFailures()
	e.logger.Error("recording write failed, returning to passthrough", map[string]any{
		"filename": result.Filename,
		"frame_id": frame.FrameID,
		"error":    err.Error(),
	})
	e.cfg.Finalizer.Submit(result, result.Filename)
}

func (e *LoggerEngine) handleControl(raw []byte) {
	msg, err := e.cfg.Codec.Decode(raw)
	if err != nil {
		e.metrics.IncMalformedMessages()
		e.logger.Warn("dropping malformed control message", map[string]any{"error": err.Error()})
		return
	}
	if msg.Kind != types.KindControl {
		e.metrics.IncControlIgnored()
		e.logger.Warn("ignoring non-control message on control channel", map[string]any{
			"kind": msg.Kind.String(),
		})
		return
	}

	e.metrics.IncControlCommands()
	fields := map[string]any{"command": msg.Command.String()}
	if msg.Filename != "" {
		fields["filename"] = msg.Filename
	}
	e.logger.Info("control command received", fields)

	switch msg.Command {
	case types.CommandStartRecord:
		e.startRecord(msg.Filename)
	case types.CommandStopRecord:
		e.stopRecord()
	case types.CommandStartPlayback:
		e.startPlayback(msg.Filename)
	case types.CommandStopPlayback:
		e.stopPlayback()
	default:
		e.metrics.IncControlIgnored()
		e.logger.Warn("ignoring unknown control command", fields)
	}
}

func (e *LoggerEngine) reject(reason string, fields map[string]any) {
	e.metrics.IncControlRejected()
	e.logger.Warn(reason, fields)
}

func (e *LoggerEngine) ignore(reason string, fields map[string]any) {
	e.metrics.IncControlIgnored()
	e.logger.Warn(reason, fields)
}

func (e *LoggerEngine) startRecord(filename string) {
	if filename == "" {
		e.reject("start record rejected: filename required", nil)
		return
	}
	if e.state.playing() {
		e.reject("start record rejected: playback in progress", map[string]any{"filename": filename})
		return
	}

	s := e.state
	s.recMu.Lock()
	if s.rec.writer != nil {
		active := s.rec.filename
		s.recMu.Unlock()
		e.ignore("start record ignored: already recording", map[string]any{
			"filename": filename,
			"active":   active,
		})
		return
	}

	now := e.cfg.Clock()
	w, err := store.Create(filename)
	if err != nil {
		s.recMu.Unlock()
		e.metrics.IncRecordingsFailed()
		e.logger.Error("failed to open recording", map[string]any{
			"filename": filename,
			"error":    err.Error(),
		})
		e.cfg.Finalizer.Submit(&types.SessionResult{
			SessionID:   e.cfg.SessionID,
			Kind:        types.SessionRecording,
			Filename:    filename,
			Outcome:     types.OutcomeFailed,
			Message:     err.Error(),
			StartedAt:   now,
			CompletedAt: now,
		}, filename)
		return
	}
	w.SetMaxFrameBytes(e.cfg.MaxFrameBytes)

	s.rec.writer = w
	s.rec.filename = filename
	s.rec.frames = 0
	s.rec.gen++
	s.rec.startedAt = now
	s.recMu.Unlock()

	e.metrics.IncRecordingsStarted()
	e.logger.Info("recording started", map[string]any{"filename": filename})
}

func (e *LoggerEngine) stopRecord() {
	s := e.state
	s.recMu.Lock()
	if s.rec.writer == nil {
		s.recMu.Unlock()
		e.ignore("stop record ignored: not recording", nil)
		return
	}
	closeErr := s.rec.writer.Close()
	result := e.endRecordingLocked(closeErr, nil)
	s.recMu.Unlock()

	e.logger.Info("recording stopped", map[string]any{
		"filename": result.Filename,
		"frames":   result.Frames,
	})
	e.cfg.Finalizer.Submit(result, result.Filename)
}

// closeRecording closes an active recording with its sentinel on shutdown.
func (e *LoggerEngine) closeRecording() {
	s := e.state
	s.recMu.Lock()
	if s.rec.writer == nil {
		s.recMu.Unlock()
		return
	}
	closeErr := s.rec.writer.Close()
	result := e.endRecordingLocked(closeErr, nil)
	s.recMu.Unlock()

	e.logger.Info("recording closed on shutdown", map[string]any{
		"filename": result.Filename,
		"frames":   result.Frames,
	})
	e.cfg.Finalizer.Submit(result, result.Filename)
}

// endRecordingLocked leaves Recording and builds the session result.
// A write failure aborts the file without its sentinel. Caller holds recMu.
func (e *LoggerEngine) endRecordingLocked(closeErr, writeErr error) *types.SessionResult {
	s := e.state
	if writeErr != nil {
		if err := s.rec.writer.Abort(); err != nil {
			e.logger.Warn("failed to abort recording", map[string]any{"error": err.Error()})
		}
	}

	outcome, message := RecordingOutcome(closeErr, writeErr, s.rec.frames)
	if outcome == types.OutcomeComplete {
		e.metrics.IncRecordingsCompleted()
	} else {
		e.metrics.IncRecordingsFailed()
	}

	result := &types.SessionResult{
		SessionID:   e.cfg.SessionID,
		Kind:        types.SessionRecording,
		Filename:    s.rec.filename,
		Outcome:     outcome,
		Frames:      s.rec.frames,
		Message:     message,
		StartedAt:   s.rec.startedAt,
		CompletedAt: e.cfg.Clock(),
	}
	s.rec.writer = nil
	return result
}

func (e *LoggerEngine) startPlayback(filename string) {
	if filename == "" {
		e.reject("start playback rejected: filename required", nil)
		return
	}
	if e.state.recording() {
		e.reject("start playback rejected: recording in progress", map[string]any{"filename": filename})
		return
	}

	s := e.state
	s.playMu.Lock()
	if s.play.playing {
		active := s.play.filename
		s.playMu.Unlock()
		e.ignore("start playback ignored: already playing", map[string]any{
			"filename": filename,
			"active":   active,
		})
		return
	}
	s.play.passThrough = false
	s.play.filename = filename
	s.play.frames = 0
	s.play.reader = nil
	s.play.startedAt = e.cfg.Clock()
	s.play.playing = true
	s.playMu.Unlock()

	s.signal()
	e.metrics.IncPlaybacksStarted()
	e.logger.Info("playback started", map[string]any{"filename": filename})
}

func (e *LoggerEngine) stopPlayback() {
	s := e.state
	s.playMu.Lock()
	if !s.play.playing {
		s.play.passThrough = true
		s.playMu.Unlock()
		e.ignore("stop playback ignored: not playing", nil)
		return
	}
	result := stopPlaybackLocked(s, e.cfg.SessionID, types.OutcomeStopped, "stopped by command", e.cfg.Clock())
	s.playMu.Unlock()

	e.logger.Info("playback stopped", map[string]any{
		"filename": result.Filename,
		"frames":   result.Frames,
	})
	e.cfg.Finalizer.Submit(result, "")
}

// stopPlaybackLocked closes any open reader, re-enables passthrough and
// leaves Playing. Caller holds playMu.
func stopPlaybackLocked(s *State, sessionID string, outcome types.SessionOutcome, message string, now time.Time) *types.SessionResult {
	if s.play.reader != nil {
		_ = s.play.reader.Close()
		s.play.reader = nil
	}
	s.play.playing = false
	s.play.passThrough = true
	return &types.SessionResult{
		SessionID:   sessionID,
		Kind:        types.SessionPlayback,
		Filename:    s.play.filename,
		Outcome:     outcome,
		Frames:      s.play.frames,
		Message:     message,
		StartedAt:   s.play.startedAt,
		CompletedAt: now,
	}
}
