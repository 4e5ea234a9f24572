package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/ticketdesk/internal/middleware"
	"go.uber.org/zap"
)

// testServer checks authentication with the real middleware and records the
// last request body per path.
func testServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	auth := middleware.NewAuthMiddleware("key", "secret", zap.NewNop())
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.Handle(path, auth.Wrap(h))
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSignsRequests(t *testing.T) {
	var got unlockRequest
	srv := testServer(t, map[string]http.HandlerFunc{
		"/wallet/unlock": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &got))
			w.Write([]byte(`{"address":"0x00000000000000000000000000000000000000bb"}`))
		},
	})

	c := NewClient(srv.URL, "key", "secret")
	resp, err := c.Unlock(context.Background(), []byte(`{"version":3}`), "pw")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", resp.Address)
	assert.JSONEq(t, `{"version":3}`, string(got.Keystore))
	assert.Equal(t, "pw", got.Passphrase)

	bad := NewClient(srv.URL, "key", "wrong")
	_, err = bad.Unlock(context.Background(), []byte(`{}`), "pw")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientSubmit(t *testing.T) {
	srv := testServer(t, map[string]http.HandlerFunc{
		"/tickets/buy": func(w http.ResponseWriter, r *http.Request) {
			var req ticketsRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, uint64(3), req.Quantity)
			w.Write([]byte(`{"attemptId":"a1","intent":"buy 3","success":true,"kind":"submitted","txHash":"0x01"}`))
		},
		"/tickets/redeem": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"intent":"redeem 9","success":false,"kind":"insufficient_balance","message":"You don't have enough tickets."}`))
		},
		"/quote": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "4", r.URL.Query().Get("quantity"))
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"node down"}`))
		},
	})
	c := NewClient(srv.URL, "key", "secret")

	bought, err := c.BuyTickets(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, bought.Success)
	assert.Equal(t, "0x01", bought.TxHash)

	redeemed, err := c.RedeemTickets(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, redeemed.Success)
	assert.Equal(t, "insufficient_balance", redeemed.Kind)

	_, err = c.Quote(context.Background(), 4)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestSignatureMatchesMiddleware(t *testing.T) {
	c := NewClient("", "key", "secret")
	body := []byte(`{"quantity":1}`)
	assert.Equal(t, middleware.Signature("secret", "1700000000", body), c.calculateSignature("1700000000", body))
}

func TestClientEvents(t *testing.T) {
	srv := testServer(t, map[string]http.HandlerFunc{
		"/events": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, ": subscribed\n\n")
			io.WriteString(w, "event: state_changed\ndata: {\"type\":\"state_changed\",\"attemptId\":\"a1\",\"from\":\"idle\",\"state\":\"validating\"}\n\n")
			io.WriteString(w, "event: state_changed\ndata: {\"type\":\"state_changed\",\"attemptId\":\"a1\",\"from\":\"pending\",\"state\":\"succeeded\",\"txHash\":\"0x01\",\"result\":{\"success\":true,\"kind\":\"submitted\"}}\n\n")
		},
	})

	c := NewClient(srv.URL, "key", "secret")
	var got []Event
	err := c.Events(context.Background(), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "validating", got[0].State)
	assert.Equal(t, "0x01", got[1].TxHash)
	require.NotNil(t, got[1].Result)
	assert.True(t, got[1].Result.Success)

	stop := errors.New("stop")
	calls := 0
	err = c.Events(context.Background(), func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	bad := NewClient(srv.URL, "key", "wrong")
	err = bad.Events(context.Background(), func(Event) error { return nil })
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
