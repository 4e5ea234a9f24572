package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
)

// ReadError reports a failed read query. Err carries the transport message.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Caller is the read half of the chain backend.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader wraps the read-only queries of the ticketing contract.
// Nothing is cached: each value may be stale the moment it returns.
type Reader struct {
	caller  Caller
	address common.Address
}

// NewReader creates a Reader for the contract deployed at address.
func NewReader(caller Caller, address common.Address) *Reader {
	return &Reader{caller: caller, address: address}
}

// Address returns the contract address.
func (r *Reader) Address() common.Address {
	return r.address
}

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, &ReadError{Op: method, Err: err}
	}

	to := r.address
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, &ReadError{Op: method, Err: err}
	}

	values, err := ABI.Unpack(method, out)
	if err != nil {
		return nil, &ReadError{Op: method, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(values) != 1 {
		return nil, &ReadError{Op: method, Err: fmt.Errorf("malformed response: %d values", len(values))}
	}
	return values, nil
}

func (r *Reader) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, &ReadError{Op: method, Err: fmt.Errorf("malformed response: %T", values[0])}
	}
	return v, nil
}

// UnitPrice returns the current ticket price in wei.
func (r *Reader) UnitPrice(ctx context.Context) (*big.Int, error) {
	return r.callUint(ctx, MethodTicketPrice)
}

// Vendor returns the inventory-holder account.
func (r *Reader) Vendor(ctx context.Context) (common.Address, error) {
	values, err := r.call(ctx, MethodVendor)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, &ReadError{Op: MethodVendor, Err: fmt.Errorf("malformed response: %T", values[0])}
	}
	return addr, nil
}

// InventoryBalance returns how many tickets the vendor still holds.
func (r *Reader) InventoryBalance(ctx context.Context) (*big.Int, error) {
	vendor, err := r.Vendor(ctx)
	if err != nil {
		return nil, err
	}
	return r.AccountBalance(ctx, vendor)
}

// AccountBalance returns the ticket balance of account.
func (r *Reader) AccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.callUint(ctx, MethodBalanceOf, account)
}

// NativeBalance returns the ETH balance of account in wei.
func (r *Reader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := r.caller.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, &ReadError{Op: "balance", Err: err}
	}
	return bal, nil
}

// OutcomeKind implements outcome.Classified.
func (e *ReadError) OutcomeKind() outcome.Kind { return outcome.KindReadFailed }

// Describe implements outcome.Describer.
func (e *ReadError) Describe() string {
	return "Failed to fetch contract information: " + e.Err.Error()
}
