package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PriceQuote is the price read for one attempt. It is never reused.
type PriceQuote struct {
	UnitPrice *big.Int
	Total     *big.Int
}

// Envelope is an unsigned transaction for a single attempt.
// A stale nonce or gas estimate invalidates it, so it is never reused across retries.
type Envelope struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	Nonce    uint64

	// Legacy pricing.
	GasPrice *big.Int
	// EIP-1559 pricing, used when both are set.
	GasTipCap *big.Int
	GasFeeCap *big.Int

	Quote *PriceQuote
}

// DynamicFee reports whether the envelope uses EIP-1559 pricing.
func (e *Envelope) DynamicFee() bool {
	return e.GasTipCap != nil && e.GasFeeCap != nil
}

// Transaction converts the envelope into an unsigned transaction.
func (e *Envelope) Transaction(chainID *big.Int) *types.Transaction {
	to := e.To
	value := e.Value
	if value == nil {
		value = new(big.Int)
	}

	if e.DynamicFee() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     e.Nonce,
			GasTipCap: e.GasTipCap,
			GasFeeCap: e.GasFeeCap,
			Gas:       e.GasLimit,
			To:        &to,
			Value:     value,
			Data:      e.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    e.Nonce,
		GasPrice: e.GasPrice,
		Gas:      e.GasLimit,
		To:       &to,
		Value:    value,
		Data:     e.Data,
	})
}
