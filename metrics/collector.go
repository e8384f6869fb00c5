// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters for one framelog process. It is a leaf
// package with no internal dependencies. Producer send-policy counters are
// absorbed from policy.Stats at shutdown rather than recorded live, avoiding
// double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Logger input
	MessagesReceived  int64 `json:"messages_received"`
	MessagesForwarded int64 `json:"messages_forwarded"`
	MalformedMessages int64 `json:"malformed_messages"`
	StaleChunks       int64 `json:"stale_chunks"`
	BoundsViolations  int64 `json:"bounds_violations"`
	AllocationFails   int64 `json:"allocation_failures"`
	FramesAssembled   int64 `json:"frames_assembled"`

	// Control
	ControlCommands int64 `json:"control_commands"`
	ControlIgnored  int64 `json:"control_ignored"`
	ControlRejected int64 `json:"control_rejected"`

	// Recording
	RecordingsStarted   int64 `json:"recordings_started"`
	RecordingsCompleted int64 `json:"recordings_completed"`
	RecordingsFailed    int64 `json:"recordings_failed"`
	FramesRecorded      int64 `json:"frames_recorded"`
	RecordWriteFailures int64 `json:"record_write_failures"`

	// Playback
	PlaybacksStarted    int64 `json:"playbacks_started"`
	PlaybacksCompleted  int64 `json:"playbacks_completed"`
	PlaybacksIncomplete int64 `json:"playbacks_incomplete"`
	PlaybacksFailed     int64 `json:"playbacks_failed"`
	FramesPlayed        int64 `json:"frames_played"`

	// Consumer
	FramesDelivered int64 `json:"frames_delivered"`

	// Producer (absorbed from policy.Stats at shutdown)
	ProducerFramesSent    int64 `json:"producer_frames_sent"`
	ProducerFramesDropped int64 `json:"producer_frames_dropped"`
	ProducerMessagesSent  int64 `json:"producer_messages_sent"`

	// Archive / notification
	ArchiveSuccess int64 `json:"archive_success"`
	ArchiveFailure int64 `json:"archive_failure"`
	NotifySuccess  int64 `json:"notify_success"`
	NotifyFailure  int64 `json:"notify_failure"`

	// Dimensions (informational, set at construction)
	Policy         string `json:"policy"`
	StorageBackend string `json:"storage_backend"`
	SessionID      string `json:"session_id"`
}

// Collector accumulates metrics for one session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when archiving is disabled.
func NewCollector(policy, storageBackend, sessionID string) *Collector {
	return &Collector{
		s: Snapshot{
			Policy:         policy,
			StorageBackend: storageBackend,
			SessionID:      sessionID,
		},
	}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Logger input ---

// IncMessagesReceived records a message received from the producer channel.
func (c *Collector) IncMessagesReceived() {
	c.add(func(s *Snapshot) *int64 { return &s.MessagesReceived }, 1)
}

// IncMessagesForwarded records a message forwarded verbatim to the consumer.
func (c *Collector) IncMessagesForwarded() {
	c.add(func(s *Snapshot) *int64 { return &s.MessagesForwarded }, 1)
}

// IncMalformedMessages records a message that failed to decode.
func (c *Collector) IncMalformedMessages() {
	c.add(func(s *Snapshot) *int64 { return &s.MalformedMessages }, 1)
}

// IncStaleChunks records a chunk ignored because it belongs to another frame.
func (c *Collector) IncStaleChunks() {
	c.add(func(s *Snapshot) *int64 { return &s.StaleChunks }, 1)
}

// IncBoundsViolations records a chunk rejected by the bounds check.
func (c *Collector) IncBoundsViolations() {
	c.add(func(s *Snapshot) *int64 { return &s.BoundsViolations }, 1)
}

// IncAllocationFailures records a Metadata message whose buffers could not be sized.
func (c *Collector) IncAllocationFailures() {
	c.add(func(s *Snapshot) *int64 { return &s.AllocationFails }, 1)
}

// IncFramesAssembled records a frame completed by the logger's reassembler.
func (c *Collector) IncFramesAssembled() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesAssembled }, 1)
}

// --- Control ---

// IncControlCommands records a control message handled by the state machine.
func (c *Collector) IncControlCommands() {
	c.add(func(s *Snapshot) *int64 { return &s.ControlCommands }, 1)
}

// IncControlIgnored records a control message with no effect in the current mode.
func (c *Collector) IncControlIgnored() {
	c.add(func(s *Snapshot) *int64 { return &s.ControlIgnored }, 1)
}

// IncControlRejected records a control message refused because it conflicts
// with the active mode (record during playback and the reverse).
func (c *Collector) IncControlRejected() {
	c.add(func(s *Snapshot) *int64 { return &s.ControlRejected }, 1)
}

// --- Recording ---

// IncRecordingsStarted records a recording file opened.
func (c *Collector) IncRecordingsStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.RecordingsStarted }, 1)
}

// IncRecordingsCompleted records a recording closed with its end-of-stream record.
func (c *Collector) IncRecordingsCompleted() {
	c.add(func(s *Snapshot) *int64 { return &s.RecordingsCompleted }, 1)
}

// IncRecordingsFailed records a recording that could not be opened or written.
func (c *Collector) IncRecordingsFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.RecordingsFailed }, 1)
}

// IncFramesRecorded records a frame written to disk.
func (c *Collector) IncFramesRecorded() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesRecorded }, 1)
}

// IncRecordWriteFailures records a failed frame write.
func (c *Collector) IncRecordWriteFailures() {
	c.add(func(s *Snapshot) *int64 { return &s.RecordWriteFailures }, 1)
}

// --- Playback ---

// IncPlaybacksStarted records a StartPlayback accepted by the state machine.
func (c *Collector) IncPlaybacksStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.PlaybacksStarted }, 1)
}

// IncPlaybacksCompleted records a playback that reached end-of-stream.
func (c *Collector) IncPlaybacksCompleted() {
	c.add(func(s *Snapshot) *int64 { return &s.PlaybacksCompleted }, 1)
}

// IncPlaybacksIncomplete records a playback of a file without end-of-stream.
func (c *Collector) IncPlaybacksIncomplete() {
	c.add(func(s *Snapshot) *int64 { return &s.PlaybacksIncomplete }, 1)
}

// IncPlaybacksFailed records a playback ended by an open, read or corruption error.
func (c *Collector) IncPlaybacksFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.PlaybacksFailed }, 1)
}

// IncFramesPlayed records a stored frame re-emitted to the consumer.
func (c *Collector) IncFramesPlayed() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesPlayed }, 1)
}

// --- Consumer ---

// IncFramesDelivered records a frame completed by the consumer's reassembler.
func (c *Collector) IncFramesDelivered() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesDelivered }, 1)
}

// --- Archive / notification ---
// Counters are per finished session, not per object written.

// IncArchiveSuccess records a recording archived.
func (c *Collector) IncArchiveSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.ArchiveSuccess }, 1)
}

// IncArchiveFailure records a failed archive attempt.
func (c *Collector) IncArchiveFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.ArchiveFailure }, 1)
}

// IncNotifySuccess records a session event published.
func (c *Collector) IncNotifySuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.NotifySuccess }, 1)
}

// IncNotifyFailure records a failed session event publish.
func (c *Collector) IncNotifyFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.NotifyFailure }, 1)
}

// --- Producer (absorbed from policy.Stats) ---

// AbsorbSendStats copies producer counters from the send policy.
// Called once at shutdown with the final policy stats snapshot.
func (c *Collector) AbsorbSendStats(framesSent, framesDropped, messagesSent int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ProducerFramesSent = framesSent
	c.s.ProducerFramesDropped = framesDropped
	c.s.ProducerMessagesSent = messagesSent
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
