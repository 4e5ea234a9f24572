package coordinator

import "fmt"

// State is the position of the single active attempt.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateBuilding
	StateAwaitingSignature
	StateBroadcasting
	StatePending
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateValidating:        "validating",
	StateBuilding:          "building",
	StateAwaitingSignature: "awaiting_signature",
	StateBroadcasting:      "broadcasting",
	StatePending:           "pending",
	StateSucceeded:         "succeeded",
	StateFailed:            "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolved reports whether a new intent could be accepted from s.
func (s State) Resolved() bool {
	return s == StateIdle || s == StateSucceeded || s == StateFailed
}
