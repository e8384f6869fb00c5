// Package lode archives finished recordings and their session records.
//
// Layout inside the archive store:
//
//	recordings/day=<YYYY-MM-DD>/session_id=<id>/<object>.bin             recording bytes
//	recordings/day=<YYYY-MM-DD>/session_id=<id>/<object>.manifest.msgpack manifest
//	datasets/<dataset>/...                                               session rows (JSONL, Hive layout day/kind)
//
// The recording file is copied byte for byte; the archive never rewrites it.
package lode

import (
	"fmt"
	"time"

	"github.com/pithecene-io/framelog/types"
)

// RecordKindSession discriminates session rows in the dataset.
const RecordKindSession = "session"

// DefaultDataset is the dataset id for session rows.
const DefaultDataset = "framelog"

// partitionKeys is the Hive layout for session rows.
var partitionKeys = []string{"day", "kind"}

// DeriveDay computes the partition day from a session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SessionRecord is one row in the sessions dataset.
type SessionRecord struct {
	RecordKind  string `json:"record_kind"`
	SessionID   string `json:"session_id"`
	Kind        string `json:"kind"`
	Day         string `json:"day"`
	Filename    string `json:"filename"`
	Outcome     string `json:"outcome"`
	Frames      int64  `json:"frames"`
	Message     string `json:"message,omitempty"`
	ObjectPath  string `json:"object_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	DurationMs  int64  `json:"duration_ms"`
}

// newSessionRecord builds the row for result.
func newSessionRecord(result *types.SessionResult, objectPath string, size int64) SessionRecord {
	return SessionRecord{
		RecordKind:  RecordKindSession,
		SessionID:   result.SessionID,
		Kind:        string(result.Kind),
		Day:         DeriveDay(result.StartedAt),
		Filename:    result.Filename,
		Outcome:     string(result.Outcome),
		Frames:      result.Frames,
		Message:     result.Message,
		ObjectPath:  objectPath,
		SizeBytes:   size,
		StartedAt:   result.StartedAt.UTC().Format(time.RFC3339Nano),
		CompletedAt: result.CompletedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:  result.Duration().Milliseconds(),
	}
}

// toMap converts the record to the map form written through the JSONL codec.
// Partition keys must appear as top-level fields for the Hive layout.
func (r SessionRecord) toMap() map[string]any {
	m := map[string]any{
		"record_kind":  r.RecordKind,
		"session_id":   r.SessionID,
		"kind":         r.Kind,
		"day":          r.Day,
		"filename":     r.Filename,
		"outcome":      r.Outcome,
		"frames":       r.Frames,
		"size_bytes":   r.SizeBytes,
		"started_at":   r.StartedAt,
		"completed_at": r.CompletedAt,
		"duration_ms":  r.DurationMs,
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.ObjectPath != "" {
		m["object_path"] = r.ObjectPath
	}
	return m
}

// sessionRecordFromMap decodes a row read back from the dataset.
// JSON numbers arrive as float64.
func sessionRecordFromMap(m map[string]any) (SessionRecord, bool) {
	if toString(m["record_kind"]) != RecordKindSession {
		return SessionRecord{}, false
	}
	return SessionRecord{
		RecordKind:  RecordKindSession,
		SessionID:   toString(m["session_id"]),
		Kind:        toString(m["kind"]),
		Day:         toString(m["day"]),
		Filename:    toString(m["filename"]),
		Outcome:     toString(m["outcome"]),
		Frames:      toInt64(m["frames"]),
		Message:     toString(m["message"]),
		ObjectPath:  toString(m["object_path"]),
		SizeBytes:   toInt64(m["size_bytes"]),
		StartedAt:   toString(m["started_at"]),
		CompletedAt: toString(m["completed_at"]),
		DurationMs:  toInt64(m["duration_ms"]),
	}, true
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// objectDir returns the store directory for a session's archived objects.
func objectDir(day, sessionID string) string {
	return fmt.Sprintf("recordings/day=%s/session_id=%s", day, sessionID)
}
