package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names on the ticketing contract.
const (
	MethodTicketPrice = "ticketPrice"
	MethodVendor      = "vendor"
	MethodBalanceOf   = "balanceOf"
	MethodBuyTickets  = "buyTickets"
	MethodUseTicket   = "useTicket"
)

const ticketABI = `[
  {"inputs":[],"name":"ticketPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"vendor","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"numberOfTickets","type":"uint256"}],"name":"buyTickets","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"numberOfTickets","type":"uint256"}],"name":"useTicket","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ABI is the parsed ticketing contract interface.
var ABI = mustParse(ticketABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ticket ABI: %v", err))
	}
	return parsed
}

// PackQuantityCall encodes a write call taking a single ticket count.
func PackQuantityCall(method string, quantity uint64) ([]byte, error) {
	m, ok := ABI.Methods[method]
	if !ok || m.IsConstant() {
		return nil, fmt.Errorf("%q is not a write method of the ticket contract", method)
	}
	return ABI.Pack(method, new(big.Int).SetUint64(quantity))
}

// IsPayable reports whether method accepts value.
func IsPayable(method string) bool {
	m, ok := ABI.Methods[method]
	return ok && m.IsPayable()
}
