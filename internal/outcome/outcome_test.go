package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNodeError(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"already known", KindAlreadyKnown},
		{"ALREADY KNOWN", KindAlreadyKnown},
		{"known transaction: 0xabc", KindAlreadyKnown},
		{"insufficient funds for gas * price + value", KindInsufficientFundsAtBroadcast},
		{"gas required exceeds allowance (30000000)", KindGasLimitExceeded},
		{"intrinsic gas too low", KindGasLimitExceeded},
		{"nonce too low: next nonce 4, tx nonce 3", KindNonceConflict},
		{"replacement transaction underpriced", KindNonceConflict},
		{"execution reverted: Not enough tickets available", KindInsufficientInventory},
		{"execution reverted: Insufficient tickets", KindInsufficientBalance},
		{"connection reset by peer", KindFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyNodeError(errors.New(tt.msg)), tt.msg)
	}
	assert.Equal(t, KindSubmitted, ClassifyNodeError(nil))
}

func TestKindSuccess(t *testing.T) {
	for k := range kindNames {
		want := k == KindSubmitted || k == KindAlreadyKnown
		assert.Equal(t, want, k.Success(), k.String())
	}
}

func TestKindText(t *testing.T) {
	b, err := KindInsufficientFunds.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "insufficient_funds", string(b))
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestNewBroadcastError(t *testing.T) {
	assert.Nil(t, NewBroadcastError(nil))

	cause := errors.New("already known")
	err := NewBroadcastError(cause)
	assert.Equal(t, KindAlreadyKnown, err.OutcomeKind())
	assert.ErrorIs(t, err, cause)
}

type describedErr struct{}

func (describedErr) Error() string     { return "raw" }
func (describedErr) Describe() string  { return "Something readable." }
func (describedErr) OutcomeKind() Kind { return KindReadFailed }

func TestFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{
			name: "nil",
			kind: KindSubmitted,
			msg:  "Transaction submitted.",
		},
		{
			name: "already known is success",
			err:  NewBroadcastError(errors.New("already known")),
			kind: KindAlreadyKnown,
			msg:  "Your transaction was already submitted and is being processed.",
		},
		{
			name: "gas",
			err:  fmt.Errorf("send: %w", NewBroadcastError(errors.New("intrinsic gas too low"))),
			kind: KindGasLimitExceeded,
			msg:  "Transaction would exceed gas limits. Try fewer tickets.",
		},
		{
			name: "describer",
			err:  describedErr{},
			kind: KindReadFailed,
			msg:  "Something readable.",
		},
		{
			name: "unclassified broadcast keeps raw text",
			err:  NewBroadcastError(errors.New("boom")),
			kind: KindFailed,
			msg:  "Transaction failed: broadcast failed (failed): boom",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			kind: KindFailed,
			msg:  "Transaction failed: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := From(tt.err)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.msg, o.Message)
			assert.Equal(t, tt.kind.Success(), o.Success())
		})
	}
}

func TestSubmitted(t *testing.T) {
	o := Submitted("0x01")
	assert.True(t, o.Success())
	assert.Equal(t, "Transaction sent! Transaction hash: 0x01", o.Message)
}
