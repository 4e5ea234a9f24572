package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/ticketdesk/internal/app"
	"github.com/xueqianLu/ticketdesk/internal/config"
	"github.com/xueqianLu/ticketdesk/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	configPath    string
	keystorePath  string
	passphraseEnv string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "ticketdesk",
	Short: "Buy and redeem tickets on the ticketing contract",
	Long: `ticketdesk unlocks a key-store wallet and submits ticket purchases and
redemptions to the ticketing contract, one transaction at a time.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&keystorePath, "keystore", "", "key-store file, overrides wallet.keystore_path")
	rootCmd.PersistentFlags().StringVar(&passphraseEnv, "passphrase-env", "", "read the wallet passphrase from this environment variable instead of prompting")
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.Log.Env)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

// openApp connects to the node and, for the local signer, unlocks the key file.
// checks run against the loaded configuration before anything is dialled.
func openApp(ctx context.Context, unlock bool, checks ...func(config.Config) error) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, err
		}
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if !unlock || cfg.Signer.Type != config.SignerLocal {
		return a, nil
	}

	path := keystorePath
	if path == "" {
		path = cfg.Wallet.KeystorePath
	}
	if path == "" {
		a.Close()
		return nil, errors.New("no key-store file: set --keystore or wallet.keystore_path")
	}
	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.UnlockFile(path, pass); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func readPassphrase(prompt string) (string, error) {
	if passphraseEnv != "" {
		v, ok := os.LookupEnv(passphraseEnv)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", passphraseEnv)
		}
		return v, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal: use --passphrase-env")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
