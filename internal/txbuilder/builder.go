// Package txbuilder assembles the unsigned transaction for a buy or redeem attempt.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/xueqianLu/ticketdesk/internal/contract"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"go.uber.org/zap"
)

// DefaultGasMarginPercent is added on top of every gas estimate.
const DefaultGasMarginPercent = 20

// Build stages reported in BuildError.
const (
	StagePrice    = "price"
	StageEncode   = "encode"
	StageEstimate = "estimate_gas"
	StageNonce    = "nonce"
	StageFees     = "fees"
)

// BuildError aborts an attempt before signing. No funds are at risk.
type BuildError struct {
	Stage string
	Kind  outcome.Kind
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to prepare transaction (%s): %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// OutcomeKind implements outcome.Classified.
func (e *BuildError) OutcomeKind() outcome.Kind { return e.Kind }

// Describe implements outcome.Describer.
func (e *BuildError) Describe() string {
	return "Failed to prepare transaction: " + e.Err.Error()
}

func buildError(stage string, err error) *BuildError {
	kind := outcome.KindBuildFailed
	var c outcome.Classified
	if errors.As(err, &c) {
		kind = c.OutcomeKind()
	} else if stage == StageEstimate {
		// the node simulates the call, so a predicted revert carries the contract's reason
		if k := outcome.ClassifyNodeError(err); k != outcome.KindFailed {
			kind = k
		}
	}
	return &BuildError{Stage: stage, Kind: kind, Err: err}
}

// Call describes which contract entry point to invoke.
type Call struct {
	Method  string
	Payable bool
}

// PriceReader reads the unit price.
type PriceReader interface {
	UnitPrice(ctx context.Context) (*big.Int, error)
}

// Backend is the node surface the builder needs.
type Backend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Builder computes value, gas, nonce and fees for an intent.
type Builder struct {
	backend       Backend
	prices        PriceReader
	contract      common.Address
	marginPercent uint64
	logger        *zap.Logger
}

// NewBuilder creates a Builder. A zero marginPercent selects DefaultGasMarginPercent.
func NewBuilder(backend Backend, prices PriceReader, contractAddr common.Address, marginPercent uint64, logger *zap.Logger) *Builder {
	if marginPercent == 0 {
		marginPercent = DefaultGasMarginPercent
	}
	return &Builder{
		backend:       backend,
		prices:        prices,
		contract:      contractAddr,
		marginPercent: marginPercent,
		logger:        logger,
	}
}

// TotalCost returns unitPrice × quantity without loss of precision.
func TotalCost(unitPrice *big.Int, quantity uint64) *big.Int {
	return new(big.Int).Mul(unitPrice, new(big.Int).SetUint64(quantity))
}

// WithMargin returns floor(gas × (100+percent) / 100).
func WithMargin(gas, percent uint64) uint64 {
	v := new(big.Int).SetUint64(gas)
	v.Mul(v, new(big.Int).SetUint64(100+percent))
	v.Div(v, big.NewInt(100))
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// Build returns a fresh envelope. Estimation failures are not retried.
func (b *Builder) Build(ctx context.Context, call Call, in intent.Intent, from common.Address) (*Envelope, error) {
	env := &Envelope{
		From:  from,
		To:    b.contract,
		Value: new(big.Int),
	}

	if call.Payable {
		price, err := b.prices.UnitPrice(ctx)
		if err != nil {
			return nil, buildError(StagePrice, err)
		}
		total := TotalCost(price, in.Quantity)
		env.Quote = &PriceQuote{UnitPrice: price, Total: total}
		env.Value = total
	}

	data, err := contract.PackQuantityCall(call.Method, in.Quantity)
	if err != nil {
		return nil, buildError(StageEncode, err)
	}
	env.Data = data

	to := b.contract
	estimate, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: env.Value,
		Data:  data,
	})
	if err != nil {
		return nil, buildError(StageEstimate, err)
	}
	env.GasLimit = WithMargin(estimate, b.marginPercent)

	// pending, not latest: a transaction the user just sent must not be reused
	nonce, err := b.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, buildError(StageNonce, err)
	}
	env.Nonce = nonce

	if err := b.setFees(ctx, env); err != nil {
		return nil, buildError(StageFees, err)
	}

	b.logger.Debug("transaction built",
		zap.String("method", call.Method),
		zap.Uint64("quantity", in.Quantity),
		zap.Uint64("gas_estimate", estimate),
		zap.Uint64("gas_limit", env.GasLimit),
		zap.Uint64("nonce", nonce),
		zap.Stringer("value", env.Value),
	)
	return env, nil
}

func (b *Builder) setFees(ctx context.Context, env *Envelope) error {
	head, err := b.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}

	if head.BaseFee == nil {
		gasPrice, err := b.backend.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		env.GasPrice = gasPrice
		return nil
	}

	tip, err := b.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return err
	}
	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	env.GasTipCap = tip
	env.GasFeeCap = feeCap
	return nil
}
