// Package preflight decides whether an intent may proceed to transaction
// construction. Every check reads fresh chain state.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"github.com/xueqianLu/ticketdesk/internal/units"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
)

var (
	ErrNoWallet          = errors.New("wallet not loaded")
	ErrConcurrentAttempt = errors.New("a transaction is already in progress")
)

// ValidationError is a rejected intent with no network side effect.
type ValidationError struct {
	Kind outcome.Kind
	Err  error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// OutcomeKind implements outcome.Classified.
func (e *ValidationError) OutcomeKind() outcome.Kind { return e.Kind }

// NoWallet is returned when no session is active.
func NoWallet() error {
	return &ValidationError{Kind: outcome.KindNoWallet, Err: ErrNoWallet}
}

// ConcurrentAttempt is returned when another attempt is in flight.
func ConcurrentAttempt() error {
	return &ValidationError{Kind: outcome.KindConcurrentAttempt, Err: ErrConcurrentAttempt}
}

// InvalidQuantity wraps a quantity parse or range error.
func InvalidQuantity(err error) error {
	if !errors.Is(err, intent.ErrInvalidQuantity) {
		err = fmt.Errorf("%w: %v", intent.ErrInvalidQuantity, err)
	}
	return &ValidationError{Kind: outcome.KindInvalidQuantity, Err: err}
}

// InsufficientFundsError means the ETH balance cannot cover quantity × price.
type InsufficientFundsError struct {
	Required  *big.Int
	Available *big.Int
	Shortfall *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s ETH, have %s ETH",
		units.FormatEther(e.Required), units.FormatEther(e.Available))
}

func (e *InsufficientFundsError) OutcomeKind() outcome.Kind { return outcome.KindInsufficientFunds }

func (e *InsufficientFundsError) Describe() string {
	return fmt.Sprintf("You do not have enough ETH to complete this purchase. Please add %s ETH to your wallet.",
		units.FormatEther(e.Shortfall))
}

// InsufficientInventoryError means the vendor holds fewer tickets than requested.
type InsufficientInventoryError struct {
	Requested uint64
	Available *big.Int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: requested %d, available %s", e.Requested, e.Available)
}

func (e *InsufficientInventoryError) OutcomeKind() outcome.Kind {
	return outcome.KindInsufficientInventory
}

func (e *InsufficientInventoryError) Describe() string {
	return fmt.Sprintf("Not enough tickets available. Only %s tickets left.", e.Available)
}

// InsufficientBalanceError means the caller holds fewer tickets than it wants to redeem.
type InsufficientBalanceError struct {
	Requested uint64
	Balance   *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient ticket balance: requested %d, balance %s", e.Requested, e.Balance)
}

func (e *InsufficientBalanceError) OutcomeKind() outcome.Kind {
	return outcome.KindInsufficientBalance
}

func (e *InsufficientBalanceError) Describe() string {
	return fmt.Sprintf("You don't have enough tickets. Your current balance is %s tickets.", e.Balance)
}

// Reader is the contract read facade.
type Reader interface {
	UnitPrice(ctx context.Context) (*big.Int, error)
	InventoryBalance(ctx context.Context) (*big.Int, error)
	AccountBalance(ctx context.Context, account common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Input is what a Check sees.
type Input struct {
	Intent  intent.Intent
	Account common.Address
}

// Check is one chain-state precondition of an intent.
type Check func(ctx context.Context, r Reader, in Input) error

// SufficientFunds requires balance >= quantity × current unit price.
func SufficientFunds(ctx context.Context, r Reader, in Input) error {
	price, err := r.UnitPrice(ctx)
	if err != nil {
		return err
	}
	required := new(big.Int).Mul(price, new(big.Int).SetUint64(in.Intent.Quantity))

	balance, err := r.NativeBalance(ctx, in.Account)
	if err != nil {
		return err
	}
	if balance.Cmp(required) < 0 {
		return &InsufficientFundsError{
			Required:  required,
			Available: balance,
			Shortfall: new(big.Int).Sub(required, balance),
		}
	}
	return nil
}

// SufficientInventory requires the vendor to hold at least quantity tickets.
func SufficientInventory(ctx context.Context, r Reader, in Input) error {
	available, err := r.InventoryBalance(ctx)
	if err != nil {
		return err
	}
	if available.Cmp(new(big.Int).SetUint64(in.Intent.Quantity)) < 0 {
		return &InsufficientInventoryError{Requested: in.Intent.Quantity, Available: available}
	}
	return nil
}

// SufficientTickets requires the caller to hold at least quantity tickets.
func SufficientTickets(ctx context.Context, r Reader, in Input) error {
	balance, err := r.AccountBalance(ctx, in.Account)
	if err != nil {
		return err
	}
	if balance.Cmp(new(big.Int).SetUint64(in.Intent.Quantity)) < 0 {
		return &InsufficientBalanceError{Requested: in.Intent.Quantity, Balance: balance}
	}
	return nil
}

// Validator runs the static checks followed by an intent's chain checks.
type Validator struct {
	reader Reader
}

// NewValidator creates a Validator reading through r.
func NewValidator(r Reader) *Validator {
	return &Validator{reader: r}
}

// Validate returns nil when in may proceed. Checks short-circuit on the first failure.
// The quantity and wallet checks run before any read.
func (v *Validator) Validate(ctx context.Context, checks []Check, in intent.Intent, session *wallet.Session) error {
	if err := in.Valid(); err != nil {
		return InvalidQuantity(err)
	}
	if session == nil {
		return NoWallet()
	}

	input := Input{Intent: in, Account: session.Address}
	for _, check := range checks {
		if err := check(ctx, v.reader, input); err != nil {
			return err
		}
	}
	return nil
}
