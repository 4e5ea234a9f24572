package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/ticketdesk/internal/chain/chaintest"
	"github.com/xueqianLu/ticketdesk/internal/coordinator"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/units"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
	"go.uber.org/zap"
)

var (
	contractAddr = common.HexToAddress("0x77481B4bd23Ef04Fbd649133E5955b723863C52D")
	vendorAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fixture struct {
	fake    *chaintest.Fake
	desk    *coordinator.Coordinator
	address common.Address
	keyJSON []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := chaintest.New(contractAddr, vendorAddr, 1_000_000_000_000_000, 50)
	desk := coordinator.New(fake, contractAddr, fake.ChainIDValue, coordinator.Config{RefreshDelay: time.Hour}, zap.NewNop(), nil)
	t.Cleanup(desk.Close)

	addr, keyJSON, err := wallet.Create("secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	oneEther, err := units.ParseEther("1")
	require.NoError(t, err)
	fake.SetNative(addr, oneEther)

	return &fixture{fake: fake, desk: desk, address: addr, keyJSON: keyJSON}
}

func (f *fixture) unlock(t *testing.T) {
	t.Helper()
	_, err := f.desk.Unlock(f.keyJSON, "secret")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := f.desk.Snapshot()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := serve(NewHealthHandler(f.desk), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","walletLoaded":false,"state":"idle","inFlight":false}`, rec.Body.String())
}

func TestUnlockAndWallet(t *testing.T) {
	f := newFixture(t)
	unlock := NewUnlockHandler(f.desk)
	current := NewWalletHandler(f.desk)

	rec := serve(current, http.MethodGet, "/wallet", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(unlock, http.MethodGet, "/wallet/unlock", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(unlock, http.MethodPost, "/wallet/unlock", `{"passphrase":"secret"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, err := json.Marshal(map[string]interface{}{
		"keystore":   json.RawMessage(f.keyJSON),
		"passphrase": "wrong",
	})
	require.NoError(t, err)
	rec = serve(unlock, http.MethodPost, "/wallet/unlock", string(body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the key file may also arrive as a string
	body, err = json.Marshal(map[string]string{
		"keystore":   string(f.keyJSON),
		"passphrase": "secret",
	})
	require.NoError(t, err)
	rec = serve(unlock, http.MethodPost, "/wallet/unlock", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp WalletResponse
	decode(t, rec, &resp)
	assert.Equal(t, f.address.Hex(), resp.Address)

	rec = serve(current, http.MethodGet, "/wallet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, f.address.Hex(), resp.Address)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	body, err := json.Marshal(map[string]json.RawMessage{"keystore": f.keyJSON})
	require.NoError(t, err)

	rec := serve(NewInspectHandler(), http.MethodPost, "/wallet/inspect", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var details wallet.Details
	decode(t, rec, &details)
	assert.Equal(t, f.address.Hex(), details.Address)
	assert.Equal(t, "scrypt", details.KDF)

	rec = serve(NewInspectHandler(), http.MethodPost, "/wallet/inspect", `{"keystore":"not json"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalances(t *testing.T) {
	f := newFixture(t)
	h := NewBalancesHandler(f.desk)

	rec := serve(h, http.MethodGet, "/balances", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.unlock(t)
	f.fake.SetTickets(f.address, 2)

	// cached snapshot predates the ticket change
	rec = serve(h, http.MethodGet, "/balances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp BalancesResponse
	decode(t, rec, &resp)
	assert.Equal(t, "0", resp.Tickets)
	assert.Equal(t, "1", resp.EthBalance)
	assert.Equal(t, "50", resp.Inventory)

	rec = serve(h, http.MethodGet, "/balances?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "2", resp.Tickets)
	assert.Equal(t, f.address.Hex(), resp.Address)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	h := NewQuoteHandler(f.desk)

	for _, q := range []string{"", "0", "-2", "1.5", "two"} {
		rec := serve(h, http.MethodGet, "/quote?quantity="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Zero(t, f.fake.CallCount("*"))

	rec := serve(h, http.MethodGet, "/quote?quantity=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp QuoteResponse
	decode(t, rec, &resp)
	assert.Equal(t, "0.001", resp.UnitPrice)
	assert.Equal(t, "0.003", resp.Total)
	assert.Equal(t, "3000000000000000", resp.TotalWei)
}

func TestTickets(t *testing.T) {
	f := newFixture(t)
	buy := NewTicketsHandler(f.desk, intent.Buy)
	redeem := NewTicketsHandler(f.desk, intent.Redeem)

	rec := serve(buy, http.MethodPost, "/tickets/buy", `{"quantity":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.unlock(t)
	reads := f.fake.CallCount("*")

	for _, body := range []string{`{"quantity":0}`, `{"quantity":-1}`, `{"quantity":"abc"}`, `{"quantity":1.5}`, `{}`} {
		rec = serve(buy, http.MethodPost, "/tickets/buy", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, reads, f.fake.CallCount("*"))

	rec = serve(buy, http.MethodPost, "/tickets/buy", `{"quantity":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AttemptResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "submitted", resp.Kind)
	assert.Equal(t, "buy 2", resp.Intent)
	assert.Equal(t, "2000000000000000", resp.TotalWei)
	assert.NotEmpty(t, resp.TxHash)

	rec = serve(redeem, http.MethodPost, "/tickets/redeem", `{"quantity":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "insufficient_balance", resp.Kind)
	assert.Equal(t, "You don't have enough tickets. Your current balance is 2 tickets.", resp.Message)

	rec = serve(NewAttemptHandler(f.desk), http.MethodGet, "/attempt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st StatusResponse
	decode(t, rec, &st)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.InFlight)
	require.NotNil(t, st.Last)
	assert.Equal(t, "redeem 3", st.Last.Intent)
}

func TestTicketsBroadcastRejectedHasNoTxHash(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	f.fake.SendErr = errors.New("insufficient funds for gas * price + value")

	rec := serve(NewTicketsHandler(f.desk, intent.Buy), http.MethodPost, "/tickets/buy", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp AttemptResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.TxHash)
	assert.NotContains(t, rec.Body.String(), "txHash")
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(NewEventsHandler(f.desk))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	next := func() string {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed")
			return l
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	// subscribed before anything is emitted
	require.Equal(t, ": subscribed", next())
	require.Equal(t, "", next())

	_, err = f.desk.Unlock(f.keyJSON, "secret")
	require.NoError(t, err)

	seen := map[string]EventResponse{}
	for len(seen) < 2 {
		l := next()
		if !strings.HasPrefix(l, "data: ") {
			continue
		}
		var ev EventResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(l, "data: ")), &ev))
		seen[ev.Type] = ev
	}

	assert.Equal(t, f.address.Hex(), seen["session_established"].Address)
	bal := seen["balances_updated"]
	require.NotNil(t, bal.Balances)
	assert.Equal(t, "50", bal.Balances.Inventory)
	assert.Equal(t, "1", bal.Balances.EthBalance)
}

func TestEventsRejectsPost(t *testing.T) {
	f := newFixture(t)
	rec := serve(NewEventsHandler(f.desk), http.MethodPost, "/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
