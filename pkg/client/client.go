package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WalletResponse describes the active wallet session.
type WalletResponse struct {
	Address string `json:"address"`
}

// KeyDetails describes a key-store file without its secrets.
type KeyDetails struct {
	Address   string            `json:"address"`
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Cipher    string            `json:"cipher"`
	KDF       string            `json:"kdf"`
	KDFParams map[string]string `json:"kdfparams"`
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

// QuoteResponse prices a quantity of tickets.
type QuoteResponse struct {
	Quantity     uint64 `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	UnitPriceWei string `json:"unitPriceWei"`
	Total        string `json:"total"`
	TotalWei     string `json:"totalWei"`
}

// AttemptResponse reports how a buy or redeem attempt resolved.
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

// StatusResponse is the coordinator state.
type StatusResponse struct {
	State    string           `json:"state"`
	InFlight bool             `json:"inFlight"`
	Last     *AttemptResponse `json:"last,omitempty"`
}

// Event is one notification from the event stream.
type Event struct {
	Type      string            `json:"type"`
	AttemptID string            `json:"attemptId,omitempty"`
	From      string            `json:"from,omitempty"`
	State     string            `json:"state,omitempty"`
	Address   string            `json:"address,omitempty"`
	TxHash    string            `json:"txHash,omitempty"`
	Result    *AttemptResponse  `json:"result,omitempty"`
	Balances  *BalancesResponse `json:"balances,omitempty"`
}

type unlockRequest struct {
	Keystore   json.RawMessage `json:"keystore"`
	Passphrase string          `json:"passphrase"`
}

type ticketsRequest struct {
	Quantity uint64 `json:"quantity"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, string(e.Body))
}

const (
	apiKeyHeader    = "X-API-Key"
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
)

// Client is a client for the ticketdesk service.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new ticketdesk client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			// buy and redeem wait for signing and broadcast
			Timeout: 60 * time.Second,
		},
	}
}

// Health checks the health of the service.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("service returned non-OK status: %s, body: %s", resp.Status, string(body))
	}

	return string(body), nil
}

// Unlock uploads a key-store file and its passphrase.
func (c *Client) Unlock(ctx context.Context, keystoreJSON []byte, passphrase string) (*WalletResponse, error) {
	var resp WalletResponse
	err := c.doRequest(ctx, http.MethodPost, "/wallet/unlock", unlockRequest{Keystore: keystoreJSON, Passphrase: passphrase}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Wallet returns the active wallet address.
func (c *Client) Wallet(ctx context.Context) (*WalletResponse, error) {
	var resp WalletResponse
	if err := c.doRequest(ctx, http.MethodGet, "/wallet", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Inspect describes a key-store file.
func (c *Client) Inspect(ctx context.Context, keystoreJSON []byte) (*KeyDetails, error) {
	var resp KeyDetails
	err := c.doRequest(ctx, http.MethodPost, "/wallet/inspect", map[string]json.RawMessage{"keystore": keystoreJSON}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balances returns the balance snapshot, re-reading the chain when refresh is set.
func (c *Client) Balances(ctx context.Context, refresh bool) (*BalancesResponse, error) {
	path := "/balances"
	if refresh {
		path += "?refresh=true"
	}
	var resp BalancesResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quote prices quantity tickets at the current unit price.
func (c *Client) Quote(ctx context.Context, quantity uint64) (*QuoteResponse, error) {
	q := url.Values{"quantity": {strconv.FormatUint(quantity, 10)}}
	var resp QuoteResponse
	if err := c.doRequest(ctx, http.MethodGet, "/quote?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BuyTickets submits a purchase. A rejected attempt is not an error: inspect
// AttemptResponse.Success.
func (c *Client) BuyTickets(ctx context.Context, quantity uint64) (*AttemptResponse, error) {
	return c.submit(ctx, "/tickets/buy", quantity)
}

// RedeemTickets submits a redemption. A rejected attempt is not an error.
func (c *Client) RedeemTickets(ctx context.Context, quantity uint64) (*AttemptResponse, error) {
	return c.submit(ctx, "/tickets/redeem", quantity)
}

// Attempt returns the coordinator state and the last resolved attempt.
func (c *Client) Attempt(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doRequest(ctx, http.MethodGet, "/attempt", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) submit(ctx context.Context, path string, quantity uint64) (*AttemptResponse, error) {
	var resp AttemptResponse
	err := c.doRequest(ctx, http.MethodPost, path, ticketsRequest{Quantity: quantity}, &resp)
	if err == nil {
		return &resp, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && json.Unmarshal(apiErr.Body, &resp) == nil && resp.Kind != "" {
		return &resp, nil
	}
	return nil, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, data, result interface{}) error {
	var reqBody []byte
	var err error

	if data != nil {
		reqBody, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// newRequest builds a request carrying the API key, timestamp and HMAC headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(timestampHeader, timestamp)
	req.Header.Set(signatureHeader, c.calculateSignature(timestamp, body))
	return req, nil
}

// Events streams coordinator notifications to fn until ctx is done, the server
// ends the stream or fn returns an error. It returns ctx.Err() on cancellation.
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the stream is long-lived, so it does not share the request timeout
	stream := &http.Client{Transport: c.httpClient.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return sc.Err()
}

func (c *Client) calculateSignature(timestamp string, body []byte) string {
	payload := timestamp + string(body)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
