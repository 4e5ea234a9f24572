package intent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuantity is returned for empty, non-integer, zero or negative quantities.
var ErrInvalidQuantity = errors.New("quantity must be a positive whole number")

// Kind identifies which contract entry point an intent targets.
type Kind int

const (
	Buy Kind = iota + 1
	Redeem
)

func (k Kind) String() string {
	switch k {
	case Buy:
		return "buy"
	case Redeem:
		return "redeem"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps "buy" and "redeem" to their Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "purchase":
		return Buy, nil
	case "redeem", "use":
		return Redeem, nil
	}
	return 0, fmt.Errorf("unknown intent kind %q", s)
}

// Intent is a single request to buy or redeem a number of tickets.
type Intent struct {
	Kind     Kind
	Quantity uint64
}

func (i Intent) String() string {
	return fmt.Sprintf("%s %d", i.Kind, i.Quantity)
}

// Valid reports whether the quantity is usable. Kind is checked by the coordinator.
func (i Intent) Valid() error {
	if i.Quantity == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ParseQuantity accepts only base-10 positive integers.
func ParseQuantity(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "+") {
		return 0, ErrInvalidQuantity
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, raw)
	}
	return n, nil
}

// New builds an intent from untrusted user input.
func New(kind Kind, raw string) (Intent, error) {
	q, err := ParseQuantity(raw)
	if err != nil {
		return Intent{Kind: kind}, err
	}
	return Intent{Kind: kind, Quantity: q}, nil
}
