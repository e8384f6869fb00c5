package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/framelog/adapter"
	"github.com/pithecene-io/framelog/lode"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/types"
)

// DefaultFinalizerQueue is the number of finished sessions the finalizer
// buffers before new ones are dropped.
const DefaultFinalizerQueue = 64

// finalizerDrainGrace is the least time Close gives an idle worker to exit.
const finalizerDrainGrace = 100 * time.Millisecond

// FinalizerConfig configures a Finalizer.
type FinalizerConfig struct {
	// Archiver stores recordings and session rows. Nil disables archiving.
	Archiver lode.SessionArchiver
	// Adapter publishes session events. Nil disables notification.
	Adapter adapter.Adapter
	// QueueSize bounds pending sessions. Zero means DefaultFinalizerQueue.
	QueueSize int
	// Logger is required.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

type finalizeJob struct {
	result    types.SessionResult
	localPath string
}

// Finalizer archives and announces finished sessions on a background
// worker so the logger and playback loops never wait on storage or network.
// Archive and notify failures are logged and counted only.
type Finalizer struct {
	cfg   FinalizerConfig
	queue chan finalizeJob

	mu       sync.Mutex
	sessions []types.SessionResult
	closed   bool

	done chan struct{}
}

// NewFinalizer creates a finalizer. Call Run to start its worker.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultFinalizerQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Finalizer{
		cfg:   cfg,
		queue: make(chan finalizeJob, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Submit hands a finished session to the worker. localPath is the
// recording file for recording sessions. Never blocks: when the queue is
// full the session is logged and dropped from archiving. Nil-safe.
func (f *Finalizer) Submit(result *types.SessionResult, localPath string) {
	if f == nil {
		return
	}
	fields := map[string]any{
		"kind":     string(result.Kind),
		"filename": result.Filename,
		"outcome":  string(result.Outcome),
		"frames":   result.Frames,
	}
	if result.Message != "" {
		fields["message"] = result.Message
	}
	if result.Outcome == types.OutcomeComplete || result.Outcome == types.OutcomeStopped {
		f.cfg.Logger.Info("session finished", fields)
	} else {
		f.cfg.Logger.Warn("session finished", fields)
	}

	// Held across the send so Close cannot close the queue underneath it.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, *result)
	if f.closed || (f.cfg.Archiver == nil && f.cfg.Adapter == nil) {
		return
	}

	select {
	case f.queue <- finalizeJob{result: *result, localPath: localPath}:
	default:
		f.cfg.Logger.Warn("finalizer queue full, session not archived", map[string]any{
			"filename": result.Filename,
		})
	}
}

// Sessions returns every session submitted so far, oldest first.
func (f *Finalizer) Sessions() []types.SessionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SessionResult(nil), f.sessions...)
}

// Run processes sessions until Close is called and the queue is drained.
// ctx bounds each archive and publish call, not the drain itself.
func (f *Finalizer) Run(ctx context.Context) {
	defer close(f.done)
	for job := range f.queue {
		f.process(ctx, &job)
	}
}

// Close stops accepting sessions and waits up to timeout for the worker
// to drain. Timeouts below finalizerDrainGrace are raised to it, so an
// exhausted shutdown deadline still lets an idle worker exit.
// Returns false when the worker did not finish in time.
func (f *Finalizer) Close(timeout time.Duration) bool {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return true
	default:
	}

	timer := time.NewTimer(max(timeout, finalizerDrainGrace))
	defer timer.Stop()
	select {
	case <-f.done:
		return true
	case <-timer.C:
		return false
	}
}

func (f *Finalizer) process(ctx context.Context, job *finalizeJob) {
	storagePath := ""
	if f.cfg.Archiver != nil {
		res, err := f.cfg.Archiver.Archive(ctx, &job.result, job.localPath)
		if err != nil {
			f.cfg.Logger.Error("failed to archive session", map[string]any{
				"filename": job.result.Filename,
				"error":    err.Error(),
			})
		} else {
			storagePath = res.StoragePath
			if res.ObjectPath != "" {
				f.cfg.Logger.Info("recording archived", map[string]any{
					"filename":     job.result.Filename,
					"storage_path": res.StoragePath,
					"size_bytes":   res.SizeBytes,
					"sha256":       res.SHA256,
				})
			}
		}
	}

	if f.cfg.Adapter == nil {
		return
	}
	event := adapter.NewSessionCompletedEvent(&job.result, storagePath)
	if err := f.cfg.Adapter.Publish(ctx, event); err != nil {
		f.cfg.Metrics.IncNotifyFailure()
		f.cfg.Logger.Error("failed to publish session event", map[string]any{
			"filename": job.result.Filename,
			"error":    err.Error(),
		})
		return
	}
	f.cfg.Metrics.IncNotifySuccess()
}
