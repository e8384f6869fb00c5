//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LoggerMode is the logger state machine mode.
type LoggerMode string

const (
	// ModePassThrough forwards live input to the consumer.
	ModePassThrough LoggerMode = "passthrough"
	// ModeRecording forwards live input and writes completed frames to disk.
	ModeRecording LoggerMode = "recording"
	// ModePlaying replays a stored file in place of live input.
	ModePlaying LoggerMode = "playing"
)

// SessionMeta identifies one framelog process lifetime.
// All log entries and archived records carry the session id.
type SessionMeta struct {
	// SessionID is a globally unique identifier for this process lifetime.
	SessionID string
	// StartedAt is when the session was created.
	StartedAt time.Time
}

// NewSessionMeta creates session metadata with a fresh UUID.
func NewSessionMeta() *SessionMeta {
	return &SessionMeta{
		SessionID: uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Validate checks that the session id is present and well-formed.
func (s *SessionMeta) Validate() error {
	if s.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if _, err := uuid.Parse(s.SessionID); err != nil {
		return errors.New("session_id must be a UUID")
	}
	return nil
}

// SessionKind distinguishes recording sessions from playback sessions.
type SessionKind string

const (
	// SessionRecording is a recording from StartRecord to StopRecord.
	SessionRecording SessionKind = "recording"
	// SessionPlayback is a playback from StartPlayback to end of file or StopPlayback.
	SessionPlayback SessionKind = "playback"
)

// SessionOutcome classifies how a recording or playback ended.
type SessionOutcome string

const (
	// OutcomeComplete means the file was closed with its end-of-stream record
	// (recording) or replayed to its end-of-stream record (playback).
	OutcomeComplete SessionOutcome = "complete"
	// OutcomeStopped means playback was stopped by command before the end.
	OutcomeStopped SessionOutcome = "stopped"
	// OutcomeIncomplete means the file ended without an end-of-stream record.
	OutcomeIncomplete SessionOutcome = "incomplete"
	// OutcomeFailed means an I/O or corruption error ended the session.
	OutcomeFailed SessionOutcome = "failed"
)

// SessionResult describes a finished recording or playback.
type SessionResult struct {
	SessionID   string         `json:"session_id" msgpack:"session_id"`
	Kind        SessionKind    `json:"kind" msgpack:"kind"`
	Filename    string         `json:"filename" msgpack:"filename"`
	Outcome     SessionOutcome `json:"outcome" msgpack:"outcome"`
	Frames      int64          `json:"frames" msgpack:"frames"`
	Message     string         `json:"message,omitempty" msgpack:"message,omitempty"`
	StartedAt   time.Time      `json:"started_at" msgpack:"started_at"`
	CompletedAt time.Time      `json:"completed_at" msgpack:"completed_at"`
}

// Duration returns the wall-clock length of the session.
func (r *SessionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
