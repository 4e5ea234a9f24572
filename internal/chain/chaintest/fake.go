// Package chaintest provides an in-memory chain backend that understands the
// ticketing contract, for use in tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/xueqianLu/ticketdesk/internal/contract"
)

// Fake is a chain.Backend backed by maps. All fields may be set directly
// before use; methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Contract     common.Address
	Vendor       common.Address
	Price        *big.Int
	Tickets      map[common.Address]*big.Int
	Native       map[common.Address]*big.Int
	Nonces       map[common.Address]uint64
	BaseFee      *big.Int
	TipCap       *big.Int
	GasPrice     *big.Int
	GasEstimate  uint64

	CallErr     error
	BalanceErr  error
	EstimateErr error
	NonceErr    error
	SendErr     error
	// ApplyOnSendErr executes the transaction even when SendErr is returned,
	// as a node does for "already known".
	ApplyOnSendErr bool
	// Revert marks sent transactions as failed in their receipts.
	Revert bool

	// BeforeCall runs before every read; tests use it to block or count.
	BeforeCall func(method string)
	// BeforeSend runs before a transaction is accepted.
	BeforeSend func(tx *types.Transaction)

	Calls     map[string]int
	Estimates []ethereum.CallMsg
	Sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
}

// New returns a fake with a vendor holding inventory tickets at price wei each.
func New(contractAddr, vendor common.Address, price int64, inventory int64) *Fake {
	return &Fake{
		ChainIDValue: big.NewInt(17000),
		Contract:     contractAddr,
		Vendor:       vendor,
		Price:        big.NewInt(price),
		Tickets:      map[common.Address]*big.Int{vendor: big.NewInt(inventory)},
		Native:       map[common.Address]*big.Int{},
		Nonces:       map[common.Address]uint64{},
		BaseFee:      big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
		GasPrice:     big.NewInt(2_000_000_000),
		GasEstimate:  100_000,
		Calls:        map[string]int{},
		receipts:     map[common.Hash]*types.Receipt{},
	}
}

// SetNative sets the ETH balance of addr.
func (f *Fake) SetNative(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Native[addr] = new(big.Int).Set(wei)
}

// SetTickets sets the ticket balance of addr.
func (f *Fake) SetTickets(addr common.Address, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tickets[addr] = big.NewInt(n)
}

// SetPrice changes the ticket price.
func (f *Fake) SetPrice(wei int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Price = big.NewInt(wei)
}

// TicketsOf returns the ticket balance of addr.
func (f *Fake) TicketsOf(addr common.Address) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOr0(f.Tickets[addr]).Int64()
}

// CallCount returns how many times method was read. "*" counts every read.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if method == "*" {
		n := 0
		for _, c := range f.Calls {
			n += c
		}
		return n
	}
	return f.Calls[method]
}

// SentCount returns how many transactions reached SendTransaction.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// EstimateCount returns how many gas estimations were requested.
func (f *Fake) EstimateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Estimates)
}

func valueOr0(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (f *Fake) count(method string) {
	f.mu.Lock()
	f.Calls[method]++
	hook := f.BeforeCall
	f.mu.Unlock()
	if hook != nil {
		hook(method)
	}
}

func (f *Fake) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || *call.To != f.Contract {
		return nil, fmt.Errorf("no contract at %v", call.To)
	}
	if len(call.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	m, err := contract.ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.count(m.Name)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CallErr != nil {
		return nil, f.CallErr
	}

	switch m.Name {
	case contract.MethodTicketPrice:
		return m.Outputs.Pack(new(big.Int).Set(f.Price))
	case contract.MethodVendor:
		return m.Outputs.Pack(f.Vendor)
	case contract.MethodBalanceOf:
		args, err := m.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		addr := args[0].(common.Address)
		return m.Outputs.Pack(new(big.Int).Set(valueOr0(f.Tickets[addr])))
	}
	return nil, fmt.Errorf("method %s is not a view", m.Name)
}

func (f *Fake) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.count("eth_getBalance")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	return new(big.Int).Set(valueOr0(f.Native[account])), nil
}

func (f *Fake) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Estimates = append(f.Estimates, call)
	if f.EstimateErr != nil {
		return 0, f.EstimateErr
	}
	return f.GasEstimate, nil
}

func (f *Fake) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NonceErr != nil {
		return 0, f.NonceErr
	}
	return f.Nonces[account], nil
}

func (f *Fake) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *Fake) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.TipCap), nil
}

func (f *Fake) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &types.Header{Number: big.NewInt(1)}
	if f.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(f.BaseFee)
	}
	return h, nil
}

func (f *Fake) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ChainIDValue), nil
}

func (f *Fake) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	hook := f.BeforeSend
	f.mu.Unlock()
	if hook != nil {
		hook(tx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	if f.SendErr != nil && !f.ApplyOnSendErr {
		return f.SendErr
	}
	if err := f.apply(tx); err != nil {
		return err
	}
	return f.SendErr
}

// apply executes a ticket transaction against the in-memory state.
func (f *Fake) apply(tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(f.ChainIDValue), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.To() == nil || *tx.To() != f.Contract || len(tx.Data()) < 4 {
		return errors.New("not a ticket transaction")
	}
	m, err := contract.ABI.MethodById(tx.Data()[:4])
	if err != nil {
		return err
	}
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}
	n := args[0].(*big.Int)

	status := types.ReceiptStatusSuccessful
	switch m.Name {
	case contract.MethodBuyTickets:
		native := valueOr0(f.Native[from])
		if native.Cmp(tx.Value()) < 0 {
			return errors.New("insufficient funds for gas * price + value")
		}
		vendor := valueOr0(f.Tickets[f.Vendor])
		if !f.Revert {
			f.Native[from] = new(big.Int).Sub(native, tx.Value())
			f.Tickets[f.Vendor] = new(big.Int).Sub(vendor, n)
			f.Tickets[from] = new(big.Int).Add(valueOr0(f.Tickets[from]), n)
		}
	case contract.MethodUseTicket:
		if !f.Revert {
			f.Tickets[from] = new(big.Int).Sub(valueOr0(f.Tickets[from]), n)
		}
	default:
		return fmt.Errorf("unexpected method %s", m.Name)
	}
	if f.Revert {
		status = types.ReceiptStatusFailed
	}
	f.Nonces[from] = tx.Nonce() + 1
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(2),
		GasUsed:     tx.Gas(),
	}
	return nil
}

func (f *Fake) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
