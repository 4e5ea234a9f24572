package signer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrAccountMismatch is returned when a signer is asked to sign for an address it does not hold.
var ErrAccountMismatch = errors.New("signer does not hold the key for the sender address")

// TxSigner signs transactions for exactly one account.
// Implementations are the external signing primitive: a decrypted key held in memory,
// or a remote service like Vault.
type TxSigner interface {
	// Address returns the account the signer signs for.
	Address() common.Address

	// SignTx signs tx with the signer's key. It requires the chain ID for EIP-155 replay protection.
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}
