package outcome

import (
	"errors"
)

// Outcome is what the user is told about an attempt.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Success reports whether the outcome counts as a successful submission.
func (o Outcome) Success() bool {
	return o.Kind.Success()
}

// Describer is implemented by errors that carry their own user-facing message.
type Describer interface {
	Describe() string
}

var fixedMessages = map[Kind]string{
	KindAlreadyKnown:                 "Your transaction was already submitted and is being processed.",
	KindNoWallet:                     "Please load your wallet first.",
	KindConcurrentAttempt:            "A transaction is already in progress. Please wait for it to complete.",
	KindInvalidQuantity:              "Please enter a valid number of tickets.",
	KindInsufficientFundsAtBroadcast: "You do not have enough ETH to cover this transaction and its gas.",
	KindGasLimitExceeded:             "Transaction would exceed gas limits. Try fewer tickets.",
	KindNonceConflict:                "Another transaction from this wallet is still pending. Please retry shortly.",
}

// From builds the outcome for err. Errors are resolved in this order: an
// explicit Classified kind, then a Describer message, then the generic kind.
func From(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindSubmitted, Message: "Transaction submitted."}
	}

	kind := KindFailed
	var c Classified
	if errors.As(err, &c) {
		kind = c.OutcomeKind()
	}

	if msg, ok := fixedMessages[kind]; ok {
		return Outcome{Kind: kind, Message: msg, Err: err}
	}

	var d Describer
	if errors.As(err, &d) {
		return Outcome{Kind: kind, Message: d.Describe(), Err: err}
	}
	return Outcome{Kind: kind, Message: "Transaction failed: " + err.Error(), Err: err}
}

// Submitted is the outcome for a transaction accepted by the network.
func Submitted(txHash string) Outcome {
	return Outcome{Kind: KindSubmitted, Message: "Transaction sent! Transaction hash: " + txHash}
}
