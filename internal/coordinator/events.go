package coordinator

import (
	"github.com/ethereum/go-ethereum/common"
)

// EventType tells subscribers what changed.
type EventType int

const (
	// EventSessionEstablished follows every successful unlock.
	EventSessionEstablished EventType = iota + 1
	// EventStateChanged is sent exactly once per state transition.
	EventStateChanged
	// EventBalancesUpdated follows every stored snapshot.
	EventBalancesUpdated
	// EventAttemptReverted is sent when a transaction already reported as
	// submitted is mined with a failed status.
	EventAttemptReverted
)

func (t EventType) String() string {
	switch t {
	case EventSessionEstablished:
		return "session_established"
	case EventStateChanged:
		return "state_changed"
	case EventBalancesUpdated:
		return "balances_updated"
	case EventAttemptReverted:
		return "attempt_reverted"
	}
	return "unknown"
}

// Event is delivered to subscribers. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	AttemptID string
	From      State
	State     State
	Address   common.Address
	TxHash    common.Hash
	Result    *Result
	Snapshot  *Snapshot
}
