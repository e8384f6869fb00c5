package lode

import (
	"testing"

	"github.com/justapithecus/lode/lode"
)

func TestSnapshotMatchesFilter(t *testing.T) {
	snap := &lode.DatasetSnapshot{
		Manifest: &lode.Manifest{
			Files: []lode.FileRef{
				{Path: "kind=recording/day=2026-10-19/part-0.jsonl"},
				{Path: "kind=recording-old/day=2026-10-18/part-0.jsonl"},
			},
		},
	}

	tests := []struct {
		name  string
		key   string
		value string
		want  bool
	}{
		{name: "empty value matches", key: "kind", value: "", want: true},
		{name: "exact segment", key: "kind", value: "recording", want: true},
		{name: "second file", key: "day", value: "2026-10-18", want: true},
		{name: "prefix is not a match", key: "kind", value: "record", want: false},
		{name: "absent value", key: "kind", value: "playback", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapshotMatchesFilter(snap, tt.key, tt.value); got != tt.want {
				t.Errorf("snapshotMatchesFilter(%s=%s) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}
