//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// MessageKind discriminates wire messages.
type MessageKind uint32

const (
	// KindMetadata announces a new frame (id, timestamp, dimensions).
	KindMetadata MessageKind = 1
	// KindDepth carries one chunk of the depth stream.
	KindDepth MessageKind = 2
	// KindColor carries one chunk of the color stream.
	KindColor MessageKind = 3
	// KindControl carries a control command.
	KindControl MessageKind = 4
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	return k >= KindMetadata && k <= KindControl
}

func (k MessageKind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindDepth:
		return "depth"
	case KindColor:
		return "color"
	case KindControl:
		return "control"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// ControlCommand is a command carried by a Control message.
type ControlCommand uint32

const (
	// CommandStartRecord starts recording to the given filename.
	CommandStartRecord ControlCommand = 1
	// CommandStopRecord finishes the active recording.
	CommandStopRecord ControlCommand = 2
	// CommandStartPlayback replays the given file in place of live input.
	CommandStartPlayback ControlCommand = 3
	// CommandStopPlayback ends playback and resumes live forwarding.
	CommandStopPlayback ControlCommand = 4
)

// Valid reports whether c is a known control command.
func (c ControlCommand) Valid() bool {
	return c >= CommandStartRecord && c <= CommandStopPlayback
}

// NeedsFilename reports whether the command carries a filename.
func (c ControlCommand) NeedsFilename() bool {
	return c == CommandStartRecord || c == CommandStartPlayback
}

func (c ControlCommand) String() string {
	switch c {
	case CommandStartRecord:
		return "start_record"
	case CommandStopRecord:
		return "stop_record"
	case CommandStartPlayback:
		return "start_playback"
	case CommandStopPlayback:
		return "stop_playback"
	default:
		return fmt.Sprintf("command(%d)", uint32(c))
	}
}

// ParseControlCommand parses the CLI spelling of a control command.
// Accepts both snake_case and kebab-case names.
func ParseControlCommand(s string) (ControlCommand, error) {
	switch s {
	case "start_record", "start-record", "record":
		return CommandStartRecord, nil
	case "stop_record", "stop-record":
		return CommandStopRecord, nil
	case "start_playback", "start-playback", "play":
		return CommandStartPlayback, nil
	case "stop_playback", "stop-playback", "stop-play":
		return CommandStopPlayback, nil
	default:
		return 0, fmt.Errorf("unknown control command %q", s)
	}
}
