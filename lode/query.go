package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framelog/types"
)

// ErrNoSessionsFound is returned when no session rows match a query.
var ErrNoSessionsFound = errors.New("no session records found")

// SessionFilter narrows QuerySessions. Empty fields match everything.
type SessionFilter struct {
	SessionID string
	Kind      string
	Day       string
	Outcome   string
	// Limit caps the number of rows returned (newest first). Zero means no cap.
	Limit int
}

func (f SessionFilter) match(r SessionRecord) bool {
	return (f.SessionID == "" || r.SessionID == f.SessionID) &&
		(f.Kind == "" || r.Kind == f.Kind) &&
		(f.Day == "" || r.Day == f.Day) &&
		(f.Outcome == "" || r.Outcome == f.Outcome)
}

// QuerySessions reads session rows from ds, newest first.
// Returns ErrNoSessionsFound when nothing matches.
func QuerySessions(ctx context.Context, ds lode.Dataset, filter SessionFilter) ([]SessionRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		err = wrapError(err, "query", string(ds.ID()))
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSessionsFound
		}
		return nil, err
	}

	var out []SessionRecord
	for _, snap := range snapshots {
		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		if !snapshotMatchesFilter(snap, "day", filter.Day) || !snapshotMatchesFilter(snap, "kind", filter.Kind) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError(err, "query", fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rec, ok := sessionRecordFromMap(m)
			if !ok || !filter.match(rec) {
				continue
			}
			out = append(out, rec)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSessionsFound
	}

	// RFC3339 timestamps in UTC sort lexically.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt > out[j].CompletedAt
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so kind=recording never matches kind=recording-old.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// SessionStats tallies session rows by outcome.
type SessionStats struct {
	Total      int   `json:"total" yaml:"total"`
	Recordings int   `json:"recordings" yaml:"recordings"`
	Playbacks  int   `json:"playbacks" yaml:"playbacks"`
	Complete   int   `json:"complete" yaml:"complete"`
	Stopped    int   `json:"stopped" yaml:"stopped"`
	Incomplete int   `json:"incomplete" yaml:"incomplete"`
	Failed     int   `json:"failed" yaml:"failed"`
	Frames     int64 `json:"frames" yaml:"frames"`
	SizeBytes  int64 `json:"size_bytes" yaml:"size_bytes"`
}

// TallySessions summarises rows as returned by QuerySessions.
func TallySessions(rows []SessionRecord) SessionStats {
	var s SessionStats
	for _, r := range rows {
		s.Total++
		switch types.SessionKind(r.Kind) {
		case types.SessionRecording:
			s.Recordings++
		case types.SessionPlayback:
			s.Playbacks++
		}
		switch types.SessionOutcome(r.Outcome) {
		case types.OutcomeComplete:
			s.Complete++
		case types.OutcomeStopped:
			s.Stopped++
		case types.OutcomeIncomplete:
			s.Incomplete++
		case types.OutcomeFailed:
			s.Failed++
		}
		s.Frames += r.Frames
		s.SizeBytes += r.SizeBytes
	}
	return s
}
