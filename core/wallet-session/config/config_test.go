package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestDefaultRequiresContractAddress(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint64(11155111), cfg.Network.ChainID)
	assert.Error(t, cfg.Validate())

	cfg.Contract.Address = testContract
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fundme.yaml")
	err := os.WriteFile(path, []byte(`
network:
  name: localhost
  chain_id: 31337
  rpc_url: http://127.0.0.1:8545
contract:
  address: `+testContract+`
  fund_method: getFunds
session:
  poll_interval: 3s
  confirmations: 2
`), 0644)
	require.NoError(t, err)

	t.Setenv("FUNDME_WALLET_MODE", "none")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FUNDME_TX_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(31337), cfg.Network.ChainID)
	assert.Equal(t, "getFunds", cfg.Contract.FundMethod)
	assert.Equal(t, 3*time.Second, cfg.Session.PollInterval)
	assert.Equal(t, uint64(2), cfg.Session.Confirmations)
	assert.Equal(t, 90*time.Second, cfg.Session.TxTimeout)
	assert.Equal(t, WalletModeNone, cfg.Wallet.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, common.HexToAddress(testContract), cfg.ContractAddress())
	assert.Equal(t, int64(31337), cfg.ChainID().Int64())
}

func TestLoadNetworkPreset(t *testing.T) {
	t.Setenv("FUNDME_NETWORK", "holesky")
	t.Setenv("FUNDME_CONTRACT_ADDRESS", testContract)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "holesky", cfg.Network.Name)
	assert.Equal(t, uint64(17000), cfg.Network.ChainID)

	t.Setenv("FUNDME_NETWORK", "moonbase")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadResolvesPresetFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fundme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  name: holesky
contract:
  address: `+testContract+`
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(17000), cfg.Network.ChainID)
	assert.Equal(t, "https://ethereum-holesky-rpc.publicnode.com", cfg.Network.RPCURL)

	require.NoError(t, os.WriteFile(path, []byte(`
network:
  name: holesky
  chain_id: 11155111
contract:
  address: `+testContract+`
`), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "network holesky has chain id 17000, not 11155111")

	require.NoError(t, os.WriteFile(path, []byte(`
network:
  name: devnet
  chain_id: 1337
  rpc_url: http://127.0.0.1:9545
contract:
  address: `+testContract+`
`), 0644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "devnet", cfg.Network.Name)
	assert.Equal(t, uint64(1337), cfg.Network.ChainID)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Contract.Address = testContract

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.Network.RPCURL = "" }},
		{"zero chain", func(c *Config) { c.Network.ChainID = 0 }},
		{"preset chain mismatch", func(c *Config) { c.Network.ChainID = 17000 }},
		{"bad address", func(c *Config) { c.Contract.Address = "0x1234" }},
		{"unknown method", func(c *Config) { c.Contract.FundMethod = "donate" }},
		{"unknown wallet mode", func(c *Config) { c.Wallet.Mode = "ledger" }},
		{"keyed without key", func(c *Config) { c.Wallet.Mode = WalletModeKeyed }},
		{"zero poll interval", func(c *Config) { c.Session.PollInterval = 0 }},
		{"zero confirmations", func(c *Config) { c.Session.Confirmations = 0 }},
		{"zero timeout", func(c *Config) { c.Session.TxTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
