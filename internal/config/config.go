package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Node        NodeConfig        `mapstructure:"node"`
	Contract    ContractConfig    `mapstructure:"contract"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Signer      SignerConfig      `mapstructure:"signer"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

// AuthConfig holds the HMAC credentials required by the API.
type AuthConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// NodeConfig points at the JSON-RPC node.
type NodeConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
	// ChainID is checked against the node when non-zero.
	ChainID int64 `mapstructure:"chain_id"`
}

// ContractConfig holds the ticketing contract address.
type ContractConfig struct {
	Address string `mapstructure:"address"`
}

// WalletConfig locates the key-store file used by the CLI.
type WalletConfig struct {
	KeystorePath string `mapstructure:"keystore_path"`
}

// SignerConfig selects where signing keys live.
type SignerConfig struct {
	Type  string      `mapstructure:"type"` // "local" or "vault"
	Vault VaultConfig `mapstructure:"vault"`
}

// VaultConfig holds the Vault configuration.
type VaultConfig struct {
	Address     string `mapstructure:"address"`
	Token       string `mapstructure:"token"`
	TransitPath string `mapstructure:"transit_path"`
	KeyName     string `mapstructure:"key_name"`
}

// CoordinatorConfig tunes the submission coordinator.
type CoordinatorConfig struct {
	GasMarginPercent    uint64        `mapstructure:"gas_margin_percent"`
	RefreshDelay        time.Duration `mapstructure:"refresh_delay"`
	WatchReceipts       bool          `mapstructure:"watch_receipts"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env string `mapstructure:"env"` // "production" or "development"
}

const (
	SignerLocal = "local"
	SignerVault = "vault"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.address", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_secret", "")
	v.SetDefault("node.rpc_url", "https://holesky.drpc.org")
	v.SetDefault("node.chain_id", 17000)
	v.SetDefault("contract.address", "0x77481B4bd23Ef04Fbd649133E5955b723863C52D")
	v.SetDefault("wallet.keystore_path", "")
	v.SetDefault("signer.type", SignerLocal)
	v.SetDefault("signer.vault.address", "http://127.0.0.1:8200")
	v.SetDefault("signer.vault.token", "")
	v.SetDefault("signer.vault.transit_path", "transit")
	v.SetDefault("signer.vault.key_name", "")
	v.SetDefault("coordinator.gas_margin_percent", 20)
	v.SetDefault("coordinator.refresh_delay", time.Second)
	v.SetDefault("coordinator.watch_receipts", false)
	v.SetDefault("coordinator.receipt_timeout", 2*time.Minute)
	v.SetDefault("coordinator.receipt_poll_interval", 4*time.Second)
	v.SetDefault("log.env", "development")
}

// LoadConfig reads configuration from file or environment variables.
// An explicit path must exist; otherwise config.yaml is looked up in . and ./config.
// Environment variables such as TICKETDESK_NODE_RPC_URL override the file.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("TICKETDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	return config, config.Validate()
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.Signer.Type {
	case SignerLocal:
	case SignerVault:
		if c.Signer.Vault.KeyName == "" {
			return errors.New("signer.vault.key_name is required for the vault signer")
		}
	default:
		return fmt.Errorf("unknown signer.type %q", c.Signer.Type)
	}
	if c.Node.RPCURL == "" {
		return errors.New("node.rpc_url is required")
	}
	if c.Coordinator.GasMarginPercent == 0 || c.Coordinator.GasMarginPercent > 100 {
		return fmt.Errorf("coordinator.gas_margin_percent must be between 1 and 100, got %d", c.Coordinator.GasMarginPercent)
	}
	return nil
}

// ValidateServe additionally requires the API credentials. The HTTP API can
// unlock the wallet and spend from it, so it never runs without them.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.APIKey == "" || c.Auth.APISecret == "" {
		return errors.New("auth.api_key and auth.api_secret are required to serve the API")
	}
	return nil
}
