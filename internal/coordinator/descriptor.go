package coordinator

import (
	"github.com/xueqianLu/ticketdesk/internal/contract"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/preflight"
	"github.com/xueqianLu/ticketdesk/internal/txbuilder"
)

// Descriptor configures the shared state machine for one intent kind.
type Descriptor struct {
	Kind    intent.Kind
	Method  string
	Payable bool
	Checks  []preflight.Check
}

func (d Descriptor) call() txbuilder.Call {
	return txbuilder.Call{Method: d.Method, Payable: d.Payable}
}

var (
	// Buy pays quantity × price and needs both funds and inventory.
	Buy = Descriptor{
		Kind:    intent.Buy,
		Method:  contract.MethodBuyTickets,
		Payable: true,
		Checks:  []preflight.Check{preflight.SufficientFunds, preflight.SufficientInventory},
	}

	// Redeem spends tickets the caller already holds.
	Redeem = Descriptor{
		Kind:    intent.Redeem,
		Method:  contract.MethodUseTicket,
		Payable: false,
		Checks:  []preflight.Check{preflight.SufficientTickets},
	}
)

var descriptors = map[intent.Kind]Descriptor{
	intent.Buy:    Buy,
	intent.Redeem: Redeem,
}

// DescriptorFor returns the descriptor registered for kind.
func DescriptorFor(kind intent.Kind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}
