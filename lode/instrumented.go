package lode

import (
	"context"

	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/types"
)

// SessionArchiver is the write side of the archive used by the runtime.
type SessionArchiver interface {
	// Archive records a finished session, copying localPath when it names a recording.
	Archive(ctx context.Context, result *types.SessionResult, localPath string) (*ArchiveResult, error)
	// Close releases archive resources.
	Close() error
}

// Verify Archiver implements SessionArchiver.
var _ SessionArchiver = (*Archiver)(nil)

// InstrumentedArchiver wraps a SessionArchiver and counts archive outcomes
// on a metrics collector.
type InstrumentedArchiver struct {
	inner     SessionArchiver
	collector *metrics.Collector
}

// NewInstrumentedArchiver wraps inner with metrics instrumentation.
func NewInstrumentedArchiver(inner SessionArchiver, collector *metrics.Collector) *InstrumentedArchiver {
	return &InstrumentedArchiver{inner: inner, collector: collector}
}

// Archive delegates to the inner archiver and records success or failure.
func (a *InstrumentedArchiver) Archive(ctx context.Context, result *types.SessionResult, localPath string) (*ArchiveResult, error) {
	res, err := a.inner.Archive(ctx, result, localPath)
	if err != nil {
		a.collector.IncArchiveFailure()
	} else {
		a.collector.IncArchiveSuccess()
	}
	return res, err
}

// Close delegates to the inner archiver.
func (a *InstrumentedArchiver) Close() error {
	return a.inner.Close()
}

// Verify InstrumentedArchiver implements SessionArchiver.
var _ SessionArchiver = (*InstrumentedArchiver)(nil)
