package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/xueqianLu/ticketdesk/internal/coordinator"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"github.com/xueqianLu/ticketdesk/internal/txbuilder"
	"github.com/xueqianLu/ticketdesk/internal/units"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
)

// Desk is the part of the coordinator the HTTP surface drives.
type Desk interface {
	Unlock(fileContents []byte, passphrase string) (*wallet.Session, error)
	Session() *wallet.Session
	Snapshot() (coordinator.Snapshot, bool)
	Refresh(ctx context.Context) (coordinator.Snapshot, error)
	Quote(ctx context.Context, quantity uint64) (*txbuilder.PriceQuote, error)
	Submit(ctx context.Context, in intent.Intent) coordinator.Result
	Status() coordinator.Status
	Subscribe(ch chan<- coordinator.Event) event.Subscription
}

var _ Desk = (*coordinator.Coordinator)(nil)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps an outcome onto an HTTP status code.
func statusFor(kind outcome.Kind) int {
	switch kind {
	case outcome.KindSubmitted, outcome.KindAlreadyKnown:
		return http.StatusOK
	case outcome.KindInvalidQuantity:
		return http.StatusBadRequest
	case outcome.KindNoWallet, outcome.KindConcurrentAttempt:
		return http.StatusConflict
	case outcome.KindInsufficientFunds, outcome.KindInsufficientInventory, outcome.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func attemptResponse(res *coordinator.Result) *AttemptResponse {
	if res == nil {
		return nil
	}
	resp := &AttemptResponse{
		AttemptID:  res.AttemptID,
		Intent:     res.Intent.String(),
		Success:    res.Success(),
		Kind:       res.Outcome.Kind.String(),
		Message:    res.Outcome.Message,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.TxHash != nil {
		resp.TxHash = res.TxHash.Hex()
	}
	if res.Quote != nil {
		resp.TotalWei = res.Quote.Total.String()
	}
	return resp
}

func balancesResponse(s coordinator.Snapshot) BalancesResponse {
	return BalancesResponse{
		Address:       s.Account.Hex(),
		EthBalance:    units.FormatEther(s.NativeBalance),
		EthBalanceWei: s.NativeBalance.String(),
		Tickets:       s.Tickets.String(),
		Inventory:     s.Inventory.String(),
		RefreshedAt:   s.RefreshedAt,
	}
}

func eventResponse(ev coordinator.Event) EventResponse {
	resp := EventResponse{Type: ev.Type.String(), AttemptID: ev.AttemptID}
	switch ev.Type {
	case coordinator.EventStateChanged:
		resp.From = ev.From.String()
		resp.State = ev.State.String()
		resp.Result = attemptResponse(ev.Result)
	case coordinator.EventSessionEstablished:
		resp.Address = ev.Address.Hex()
	case coordinator.EventBalancesUpdated:
		resp.Address = ev.Address.Hex()
		if ev.Snapshot != nil {
			b := balancesResponse(*ev.Snapshot)
			resp.Balances = &b
		}
	}
	if ev.TxHash != (common.Hash{}) {
		resp.TxHash = ev.TxHash.Hex()
	}
	return resp
}
