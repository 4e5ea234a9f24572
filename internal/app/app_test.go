package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/ticketdesk/internal/chain/chaintest"
	"github.com/xueqianLu/ticketdesk/internal/config"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/middleware"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
	"go.uber.org/zap"
)

const contractHex = "0x77481B4bd23Ef04Fbd649133E5955b723863C52D"

func testConfig() config.Config {
	return config.Config{
		Contract: config.ContractConfig{Address: contractHex},
		Signer:   config.SignerConfig{Type: config.SignerLocal},
	}
}

func TestNewWithBackendRejectsBadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Contract.Address = "not-an-address"
	fake := chaintest.New(common.HexToAddress(contractHex), common.HexToAddress("0xaa"), 1, 1)

	_, err := NewWithBackend(cfg, zap.NewNop(), fake, fake.ChainIDValue)
	assert.Error(t, err)
}

func TestUnlockFileAndRedeem(t *testing.T) {
	fake := chaintest.New(common.HexToAddress(contractHex), common.HexToAddress("0xaa"), 1_000, 10)
	a, err := NewWithBackend(testConfig(), zap.NewNop(), fake, fake.ChainIDValue)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	addr, keyJSON, err := wallet.Create("pw", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0600))
	fake.SetTickets(addr, 1)

	_, err = a.UnlockFile(filepath.Join(t.TempDir(), "missing.json"), "pw")
	assert.Error(t, err)

	session, err := a.UnlockFile(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, addr, session.Address)

	res := a.Desk.Submit(context.Background(), intent.Intent{Kind: intent.Redeem, Quantity: 1})
	assert.True(t, res.Success(), res.Outcome.Message)
	assert.Zero(t, fake.TicketsOf(addr))
}

func TestHandlerServesMetrics(t *testing.T) {
	fake := chaintest.New(common.HexToAddress(contractHex), common.HexToAddress("0xaa"), 1, 1)
	a, err := NewWithBackend(testConfig(), zap.NewNop(), fake, fake.ChainIDValue)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandlerWithoutCredentialsRefusesSubmissions(t *testing.T) {
	fake := chaintest.New(common.HexToAddress(contractHex), common.HexToAddress("0xaa"), 1_000, 10)
	a, err := NewWithBackend(testConfig(), zap.NewNop(), fake, fake.ChainIDValue)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	addr, keyJSON, err := wallet.Create("pw", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	fake.SetTickets(addr, 1)
	_, err = a.Desk.Unlock(keyJSON, "pw")
	require.NoError(t, err)

	body := `{"quantity":1}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	for _, path := range []string{"/tickets/buy", "/tickets/redeem", "/wallet/unlock"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", middleware.Signature("", ts, []byte(body)))
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Zero(t, fake.SentCount())
	assert.Equal(t, int64(1), fake.TicketsOf(addr))
}
