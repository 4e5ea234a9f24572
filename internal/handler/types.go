package handler

import (
	"bytes"
	"encoding/json"
	"time"
)

// UnlockRequest carries a key-store file and its passphrase. Keystore may be
// the JSON object itself or a string containing it.
type UnlockRequest struct {
	Keystore   json.RawMessage `json:"keystore"`
	Passphrase string          `json:"passphrase"`
}

// InspectRequest carries a key-store file to describe.
type InspectRequest struct {
	Keystore json.RawMessage `json:"keystore"`
}

// keyFile returns the key-store bytes, unquoting a string form.
func keyFile(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

// TicketsRequest is the body of buy and redeem requests. Quantity is kept
// raw so that it is validated exactly like typed user input.
type TicketsRequest struct {
	Quantity json.RawMessage `json:"quantity"`
}

func (r TicketsRequest) rawQuantity() string {
	var s string
	if err := json.Unmarshal(r.Quantity, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(r.Quantity))
}

// WalletResponse describes the active session.
type WalletResponse struct {
	Address string `json:"address"`
}

// BalancesResponse is the last known balance snapshot.
type BalancesResponse struct {
	Address       string    `json:"address"`
	EthBalance    string    `json:"ethBalance"`
	EthBalanceWei string    `json:"ethBalanceWei"`
	Tickets       string    `json:"tickets"`
	Inventory     string    `json:"inventory"`
	RefreshedAt   time.Time `json:"refreshedAt"`
}

// QuoteResponse prices a quantity at the current unit price.
type QuoteResponse struct {
	Quantity     uint64 `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	UnitPriceWei string `json:"unitPriceWei"`
	Total        string `json:"total"`
	TotalWei     string `json:"totalWei"`
}

// AttemptResponse reports how an attempt resolved.
type AttemptResponse struct {
	AttemptID  string    `json:"attemptId"`
	Intent     string    `json:"intent"`
	Success    bool      `json:"success"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	TxHash     string    `json:"txHash,omitempty"`
	TotalWei   string    `json:"totalWei,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	WalletLoaded bool   `json:"walletLoaded"`
	State        string `json:"state"`
	InFlight     bool   `json:"inFlight"`
}

// StatusResponse is the state machine at a point in time.
type StatusResponse struct {
	State    string           `json:"state"`
	InFlight bool             `json:"inFlight"`
	Last     *AttemptResponse `json:"last,omitempty"`
}

// EventResponse is one notification on the event stream. Only the fields
// relevant to Type are set.
type EventResponse struct {
	Type      string            `json:"type"`
	AttemptID string            `json:"attemptId,omitempty"`
	From      string            `json:"from,omitempty"`
	State     string            `json:"state,omitempty"`
	Address   string            `json:"address,omitempty"`
	TxHash    string            `json:"txHash,omitempty"`
	Result    *AttemptResponse  `json:"result,omitempty"`
	Balances  *BalancesResponse `json:"balances,omitempty"`
}

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
