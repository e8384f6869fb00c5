// Package adapter defines the notification boundary for finished sessions.
//
// Adapters publish recording and playback completion events to downstream
// systems. The runtime owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/framelog/types"
)

// EventType is the event_type carried by every session event.
const EventType = "session_completed"

// ContractVersion is the event payload version.
const ContractVersion = "1"

// SessionCompletedEvent is the payload published when a recording or
// playback finishes.
type SessionCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_completed"
	SessionID       string `json:"session_id"`
	Kind            string `json:"kind"`    // recording, playback
	Outcome         string `json:"outcome"` // complete, stopped, incomplete, failed
	Filename        string `json:"filename"`
	StoragePath     string `json:"storage_path,omitempty"`
	Frames          int64  `json:"frames"`
	Message         string `json:"message,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
}

// NewSessionCompletedEvent builds the event for result. storagePath is the
// archive location of the recording, empty when it was not archived.
func NewSessionCompletedEvent(result *types.SessionResult, storagePath string) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		ContractVersion: ContractVersion,
		EventType:       EventType,
		SessionID:       result.SessionID,
		Kind:            string(result.Kind),
		Outcome:         string(result.Outcome),
		Filename:        result.Filename,
		StoragePath:     storagePath,
		Frames:          result.Frames,
		Message:         result.Message,
		Timestamp:       result.CompletedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:      result.Duration().Milliseconds(),
	}
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
