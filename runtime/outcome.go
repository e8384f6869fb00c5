package runtime

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

// PlaybackOutcome classifies the error that ended a playback read.
//
// Mapping:
//   - store.ErrEndOfStream: complete
//   - store.ErrTruncated: incomplete (file ended without its sentinel)
//   - store.ErrCorrupt, store.ErrIO, anything else: failed
func PlaybackOutcome(err error, frames int64) (types.SessionOutcome, string) {
	switch {
	case err == nil, errors.Is(err, store.ErrEndOfStream):
		return types.OutcomeComplete, fmt.Sprintf("played %d frames", frames)
	case errors.Is(err, store.ErrTruncated):
		return types.OutcomeIncomplete, fmt.Sprintf("recording truncated after %d frames: %v", frames, err)
	case errors.Is(err, store.ErrCorrupt):
		return types.OutcomeFailed, fmt.Sprintf("recording corrupt after %d frames: %v", frames, err)
	default:
		return types.OutcomeFailed, err.Error()
	}
}

// RecordingOutcome classifies how a recording was closed. closeErr is the
// error from Writer.Close (nil on a clean close); writeErr is the write
// failure that aborted the file, if any.
func RecordingOutcome(closeErr, writeErr error, frames int64) (types.SessionOutcome, string) {
	switch {
	case writeErr != nil:
		return types.OutcomeFailed, fmt.Sprintf("write failed after %d frames: %v", frames, writeErr)
	case closeErr != nil:
		return types.OutcomeFailed, fmt.Sprintf("close failed after %d frames: %v", frames, closeErr)
	default:
		return types.OutcomeComplete, fmt.Sprintf("recorded %d frames", frames)
	}
}
