package inference

import "fmt"

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateAwaitingInput
	StateGenerating
	StateTurnComplete
	StateSessionComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateGenerating:
		return "generating"
	case StateTurnComplete:
		return "turn_complete"
	case StateSessionComplete:
		return "session_complete"
	default:
		return "unknown"
	}
}

// FinishReason says why a round's generation stopped.
type FinishReason int

const (
	// FinishEOS means the end-of-sequence token was sampled.
	FinishEOS FinishReason = iota + 1
	// FinishLength means the history or the per-round budget was exhausted.
	FinishLength
)

func (f FinishReason) String() string {
	switch f {
	case FinishEOS:
		return "eos"
	case FinishLength:
		return "length"
	default:
		return "none"
	}
}

// MarshalText renders f by name in JSON and logs.
func (f FinishReason) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FinishReason) UnmarshalText(b []byte) error {
	switch string(b) {
	case "eos":
		*f = FinishEOS
	case "length":
		*f = FinishLength
	case "none", "":
		*f = 0
	default:
		return fmt.Errorf("inference: unknown finish reason %q", b)
	}
	return nil
}

// Policy decides what happens when the history cannot hold another round.
type Policy string

const (
	// PolicyStop never rewrites history; input that does not fit is rejected.
	PolicyStop Policy = "stop"
	// PolicySlide evicts the oldest tokens to make room for the new round.
	PolicySlide Policy = "slide"
)
