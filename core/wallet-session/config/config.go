package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Wallet modes
const (
	WalletModeRPC   = "rpc"
	WalletModeKeyed = "keyed"
	WalletModeNone  = "none"
)

// NetworkConfig holds the target network settings
type NetworkConfig struct {
	Name        string `yaml:"name" json:"name"`
	ChainID     uint64 `yaml:"chain_id" json:"chain_id"`
	RPCURL      string `yaml:"rpc_url" json:"rpc_url"`
	Currency    string `yaml:"currency" json:"currency"`
	ExplorerURL string `yaml:"explorer_url" json:"explorer_url"`
}

// ContractConfig identifies the deployed FundMe contract
type ContractConfig struct {
	Address    string `yaml:"address" json:"address"`
	FundMethod string `yaml:"fund_method" json:"fund_method"` // "fund" or "getFunds"
}

// WalletConfig describes how the wallet provider is reached
type WalletConfig struct {
	Mode         string `yaml:"mode" json:"mode"`
	URL          string `yaml:"url" json:"url"`
	PrivateKey   string `yaml:"-" json:"-"`
	DappURL      string `yaml:"dapp_url" json:"dapp_url"`
	DeepLinkBase string `yaml:"deep_link_base" json:"deep_link_base"`
	Mobile       bool   `yaml:"mobile" json:"mobile"`
}

// SessionConfig tunes the controller
type SessionConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval"`
	Confirmations uint64        `yaml:"confirmations" json:"confirmations"`
	TxTimeout     time.Duration `yaml:"tx_timeout" json:"tx_timeout"`
	Preflight     bool          `yaml:"preflight" json:"preflight"`
}

// DashboardConfig configures the HTTP surface
type DashboardConfig struct {
	ListenAddr string  `yaml:"listen_addr" json:"listen_addr"`
	RateLimit  float64 `yaml:"rate_limit" json:"rate_limit"` // write requests per second per client
	RateBurst  int     `yaml:"rate_burst" json:"rate_burst"`
}

// LogConfig configures logging
type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Colored     bool   `yaml:"colored" json:"colored"`
	JournalPath string `yaml:"journal_path" json:"journal_path"`
}

// Config is the complete, immutable application configuration. It is passed
// by value; nothing holds a reference into it.
type Config struct {
	Network   NetworkConfig   `yaml:"network" json:"network"`
	Contract  ContractConfig  `yaml:"contract" json:"contract"`
	Wallet    WalletConfig    `yaml:"wallet" json:"wallet"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// Network presets
var presets = map[string]NetworkConfig{
	"sepolia": {
		Name:        "sepolia",
		ChainID:     11155111,
		RPCURL:      "https://ethereum-sepolia-rpc.publicnode.com",
		Currency:    "SepoliaETH",
		ExplorerURL: "https://sepolia.etherscan.io",
	},
	"holesky": {
		Name:        "holesky",
		ChainID:     17000,
		RPCURL:      "https://ethereum-holesky-rpc.publicnode.com",
		Currency:    "ETH",
		ExplorerURL: "https://holesky.etherscan.io",
	},
	"localhost": {
		Name:     "localhost",
		ChainID:  31337,
		RPCURL:   "http://127.0.0.1:8545",
		Currency: "ETH",
	},
}

// Preset returns the named network preset
func Preset(name string) (NetworkConfig, error) {
	network, ok := presets[strings.ToLower(name)]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", name)
	}
	return network, nil
}

// Default returns the Sepolia configuration without a contract address
func Default() Config {
	return Config{
		Network: presets["sepolia"],
		Contract: ContractConfig{
			FundMethod: "fund",
		},
		Wallet: WalletConfig{
			Mode:         WalletModeRPC,
			URL:          "http://127.0.0.1:1248",
			DeepLinkBase: "https://metamask.app.link/dapp/",
		},
		Session: SessionConfig{
			PollInterval:  15 * time.Second,
			Confirmations: 1,
			TxTimeout:     5 * time.Minute,
			Preflight:     true,
		},
		Dashboard: DashboardConfig{
			ListenAddr: ":8088",
			RateLimit:  1,
			RateBurst:  3,
		},
		Log: LogConfig{
			Level:   "info",
			Colored: true,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if name := os.Getenv("FUNDME_NETWORK"); name != "" {
		network, err := Preset(name)
		if err != nil {
			return Config{}, err
		}
		cfg.Network = network
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		var named struct {
			Network struct {
				Name string `yaml:"name"`
			} `yaml:"network"`
		}
		if err := yaml.Unmarshal(data, &named); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		// a preset name fills in the fields the file leaves out
		if network, err := Preset(named.Network.Name); err == nil {
			cfg.Network = network
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Network.RPCURL = getEnv("FUNDME_RPC_URL", cfg.Network.RPCURL)
	cfg.Network.ChainID = getEnvUint("FUNDME_CHAIN_ID", cfg.Network.ChainID)
	cfg.Contract.Address = getEnv("FUNDME_CONTRACT_ADDRESS", cfg.Contract.Address)
	cfg.Contract.FundMethod = getEnv("FUNDME_FUND_METHOD", cfg.Contract.FundMethod)
	cfg.Wallet.Mode = getEnv("FUNDME_WALLET_MODE", cfg.Wallet.Mode)
	cfg.Wallet.URL = getEnv("FUNDME_WALLET_URL", cfg.Wallet.URL)
	cfg.Wallet.PrivateKey = getEnv("FUNDME_PRIVATE_KEY", cfg.Wallet.PrivateKey)
	cfg.Wallet.DappURL = getEnv("FUNDME_DAPP_URL", cfg.Wallet.DappURL)
	cfg.Wallet.Mobile = getEnvBool("FUNDME_MOBILE", cfg.Wallet.Mobile)
	cfg.Session.PollInterval = getEnvDuration("FUNDME_POLL_INTERVAL", cfg.Session.PollInterval)
	cfg.Session.Confirmations = getEnvUint("FUNDME_CONFIRMATIONS", cfg.Session.Confirmations)
	cfg.Session.TxTimeout = getEnvDuration("FUNDME_TX_TIMEOUT", cfg.Session.TxTimeout)
	cfg.Session.Preflight = getEnvBool("FUNDME_PREFLIGHT", cfg.Session.Preflight)
	cfg.Dashboard.ListenAddr = getEnv("FUNDME_LISTEN_ADDR", cfg.Dashboard.ListenAddr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Colored = getEnvBool("ENABLE_COLORED_LOGS", cfg.Log.Colored)
	cfg.Log.JournalPath = getEnv("FUNDME_JOURNAL_PATH", cfg.Log.JournalPath)
}

// Validate checks the configuration for values the controller cannot run with
func (c Config) Validate() error {
	var errs []error

	if c.Network.RPCURL == "" {
		errs = append(errs, errors.New("network RPC URL is required"))
	}
	if c.Network.ChainID == 0 {
		errs = append(errs, errors.New("network chain id is required"))
	} else if preset, err := Preset(c.Network.Name); err == nil && preset.ChainID != c.Network.ChainID {
		errs = append(errs, fmt.Errorf("network %s has chain id %d, not %d", c.Network.Name, preset.ChainID, c.Network.ChainID))
	}
	if !common.IsHexAddress(c.Contract.Address) {
		errs = append(errs, fmt.Errorf("invalid contract address %q", c.Contract.Address))
	}
	switch c.Contract.FundMethod {
	case "fund", "getFunds":
	default:
		errs = append(errs, fmt.Errorf("unknown fund method %q", c.Contract.FundMethod))
	}
	switch c.Wallet.Mode {
	case WalletModeRPC:
		if c.Wallet.URL == "" {
			errs = append(errs, errors.New("wallet URL is required in rpc mode"))
		}
	case WalletModeKeyed:
		if c.Wallet.PrivateKey == "" {
			errs = append(errs, errors.New("wallet private key is required in keyed mode"))
		}
	case WalletModeNone:
	default:
		errs = append(errs, fmt.Errorf("unknown wallet mode %q", c.Wallet.Mode))
	}
	if c.Session.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Session.TxTimeout <= 0 {
		errs = append(errs, errors.New("transaction timeout must be positive"))
	}
	if c.Session.Confirmations == 0 {
		errs = append(errs, errors.New("confirmations must be at least 1"))
	}

	return errors.Join(errs...)
}

// ContractAddress returns the parsed contract address
func (c Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract.Address)
}

// ChainID returns the required chain id as a big integer
func (c Config) ChainID() *big.Int {
	return new(big.Int).SetUint64(c.Network.ChainID)
}
