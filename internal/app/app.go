// Package app assembles the coordinator and its HTTP surface from configuration.
package app

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/vault/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xueqianLu/ticketdesk/internal/chain"
	"github.com/xueqianLu/ticketdesk/internal/config"
	"github.com/xueqianLu/ticketdesk/internal/coordinator"
	"github.com/xueqianLu/ticketdesk/internal/metrics"
	"github.com/xueqianLu/ticketdesk/internal/middleware"
	"github.com/xueqianLu/ticketdesk/internal/server"
	"github.com/xueqianLu/ticketdesk/internal/signer"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
	"go.uber.org/zap"
)

// App owns the long-lived components of a ticketdesk process.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Desk     *coordinator.Coordinator

	closeBackend func()
}

// New dials the node, verifies the chain id and wires the coordinator.
// With signer.type "vault" the Vault key becomes the active session immediately.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	client, chainID, err := chain.Dial(ctx, cfg.Node.RPCURL, cfg.Node.ChainID)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to node", zap.String("rpc", cfg.Node.RPCURL), zap.Stringer("chain_id", chainID))

	a, err := NewWithBackend(cfg, logger, client, chainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	a.closeBackend = client.Close

	if cfg.Signer.Type == config.SignerVault {
		s, err := newVaultSigner(ctx, cfg.Signer.Vault, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Desk.Establish(wallet.NewSession(s)); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// NewWithBackend wires the coordinator over an existing backend.
func NewWithBackend(cfg config.Config, logger *zap.Logger, backend chain.Backend, chainID *big.Int) (*App, error) {
	if !common.IsHexAddress(cfg.Contract.Address) {
		return nil, fmt.Errorf("invalid contract.address %q", cfg.Contract.Address)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	desk := coordinator.New(backend, common.HexToAddress(cfg.Contract.Address), chainID, coordinator.Config{
		GasMarginPercent:    cfg.Coordinator.GasMarginPercent,
		RefreshDelay:        cfg.Coordinator.RefreshDelay,
		WatchReceipts:       cfg.Coordinator.WatchReceipts,
		ReceiptTimeout:      cfg.Coordinator.ReceiptTimeout,
		ReceiptPollInterval: cfg.Coordinator.ReceiptPollInterval,
	}, logger, metrics.New(reg))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Desk:     desk,
	}, nil
}

// UnlockFile decrypts the key-store file at path and makes it the active session.
func (a *App) UnlockFile(path, passphrase string) (*wallet.Session, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return a.Desk.Unlock(contents, passphrase)
}

// Handler returns the HTTP API. Without API credentials every authenticated
// route answers 401.
func (a *App) Handler() http.Handler {
	auth := middleware.NewAuthMiddleware(a.Config.Auth.APIKey, a.Config.Auth.APISecret, a.Logger)
	if !auth.Configured() {
		a.Logger.Warn("API credentials not configured, authenticated routes are disabled")
	}
	return server.NewRouter(a.Desk, auth, a.Registry)
}

// Close stops background work and disconnects from the node.
func (a *App) Close() {
	a.Desk.Close()
	if a.closeBackend != nil {
		a.closeBackend()
	}
}

func newVaultSigner(ctx context.Context, cfg config.VaultConfig, logger *zap.Logger) (*signer.VaultSigner, error) {
	vaultConfig := api.DefaultConfig()
	if err := vaultConfig.ReadEnvironment(); err != nil {
		logger.Warn("could not read Vault environment variables", zap.Error(err))
	}
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}
	vaultClient, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		vaultClient.SetToken(cfg.Token)
	}

	s, err := signer.NewVaultSigner(ctx, vaultClient, cfg.TransitPath, cfg.KeyName)
	if err != nil {
		return nil, err
	}
	logger.Info("using vault signer", zap.String("key", cfg.KeyName), zap.String("address", s.Address().Hex()))
	return s, nil
}
