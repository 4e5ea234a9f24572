// Package outcome turns failures of a submission attempt into a fixed set of
// user-facing results.
package outcome

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of attempt outcomes.
type Kind int

const (
	KindUnknown Kind = iota
	KindSubmitted
	KindAlreadyKnown
	KindInvalidQuantity
	KindNoWallet
	KindConcurrentAttempt
	KindInsufficientFunds
	KindInsufficientInventory
	KindInsufficientBalance
	KindReadFailed
	KindBuildFailed
	KindSigningFailed
	KindInsufficientFundsAtBroadcast
	KindGasLimitExceeded
	KindNonceConflict
	KindFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                      "unknown",
	KindSubmitted:                    "submitted",
	KindAlreadyKnown:                 "already_known",
	KindInvalidQuantity:              "invalid_quantity",
	KindNoWallet:                     "no_wallet",
	KindConcurrentAttempt:            "concurrent_attempt",
	KindInsufficientFunds:            "insufficient_funds",
	KindInsufficientInventory:        "insufficient_inventory",
	KindInsufficientBalance:          "insufficient_balance",
	KindReadFailed:                   "read_failed",
	KindBuildFailed:                  "build_failed",
	KindSigningFailed:                "signing_failed",
	KindInsufficientFundsAtBroadcast: "insufficient_funds_at_broadcast",
	KindGasLimitExceeded:             "gas_limit_exceeded",
	KindNonceConflict:                "nonce_conflict",
	KindFailed:                       "failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText lets kinds appear by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Success reports whether the attempt reached the network.
func (k Kind) Success() bool {
	return k == KindSubmitted || k == KindAlreadyKnown
}

// node and contract messages, matched case-insensitively
var nodeSignals = []struct {
	substr string
	kind   Kind
}{
	{"already known", KindAlreadyKnown},
	{"known transaction", KindAlreadyKnown},
	{"already imported", KindAlreadyKnown},
	{"insufficient funds", KindInsufficientFundsAtBroadcast},
	{"gas required exceeds allowance", KindGasLimitExceeded},
	{"intrinsic gas too low", KindGasLimitExceeded},
	{"exceeds block gas limit", KindGasLimitExceeded},
	{"nonce too low", KindNonceConflict},
	{"replacement transaction underpriced", KindNonceConflict},
	{"not enough tickets available", KindInsufficientInventory},
	{"insufficient tickets", KindInsufficientBalance},
}

// ClassifyNodeError maps a raw node or contract failure onto a Kind.
// It is the only place in the module that inspects error prose.
func ClassifyNodeError(err error) Kind {
	if err == nil {
		return KindSubmitted
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range nodeSignals {
		if strings.Contains(msg, sig.substr) {
			return sig.kind
		}
	}
	return KindFailed
}

// BroadcastError is a classified failure returned by the broadcast collaborator.
type BroadcastError struct {
	Kind Kind
	Err  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed (%s): %v", e.Kind, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// NewBroadcastError classifies err. A nil err yields nil.
func NewBroadcastError(err error) *BroadcastError {
	if err == nil {
		return nil
	}
	return &BroadcastError{Kind: ClassifyNodeError(err), Err: err}
}

// Classified is implemented by errors that already know their Kind.
type Classified interface {
	error
	OutcomeKind() Kind
}

// OutcomeKind implements Classified.
func (e *BroadcastError) OutcomeKind() Kind { return e.Kind }

// ErrGeneric is used when a failure carries no error value.
var ErrGeneric = errors.New("transaction failed")
