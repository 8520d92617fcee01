package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaintrace/asset-indexer/internal/config"
	"github.com/chaintrace/asset-indexer/internal/domain"
)

func TestLoadIndexerConfig_Defaults(t *testing.T) {
	t.Setenv("ASSET_INDEXER_LEDGER_RPC_URL", "https://rpc.example.com")

	cfg, err := config.LoadIndexerConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.Ledger.RPCURL)
	assert.Equal(t, domain.ChainEthereumMainnet, cfg.Ledger.ChainID)
	assert.Equal(t, uint64(12), cfg.Ledger.Confirmations)
	assert.Equal(t, 15*time.Second, cfg.Ledger.PollInterval)
	assert.Equal(t, uint64(1000), cfg.Ledger.BatchBlocks)
	assert.Equal(t, 12*time.Second, cfg.Ledger.HeadTTL)
	assert.Equal(t, 60*time.Second, cfg.Ledger.HeadStaleWindow)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "ASSET_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "asset-indexer", cfg.NATS.ConnectionName)
	assert.False(t, cfg.Debug)
}

func TestLoadIndexerConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ASSET_INDEXER_DEBUG", "true")
	t.Setenv("ASSET_INDEXER_LEDGER_RPC_URL", "wss://node.internal:8546")
	t.Setenv("ASSET_INDEXER_LEDGER_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000ff")
	t.Setenv("ASSET_INDEXER_LEDGER_GENESIS_BLOCK", "18000000")
	t.Setenv("ASSET_INDEXER_LEDGER_CONFIRMATIONS", "6")
	t.Setenv("ASSET_INDEXER_LEDGER_POLL_INTERVAL", "30s")
	t.Setenv("ASSET_INDEXER_LEDGER_BATCH_BLOCKS", "250")
	t.Setenv("ASSET_INDEXER_DATABASE_HOST", "db.internal")
	t.Setenv("ASSET_INDEXER_DATABASE_PASSWORD", "secret")
	t.Setenv("ASSET_INDEXER_NATS_URL", "nats://queue.internal:4222")

	cfg, err := config.LoadIndexerConfig("", "")
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "wss://node.internal:8546", cfg.Ledger.RPCURL)
	assert.Equal(t, "0x00000000000000000000000000000000000000ff", cfg.Ledger.ContractAddress)
	assert.Equal(t, uint64(18000000), cfg.Ledger.GenesisBlock)
	assert.Equal(t, uint64(6), cfg.Ledger.Confirmations)
	assert.Equal(t, 30*time.Second, cfg.Ledger.PollInterval)
	assert.Equal(t, uint64(250), cfg.Ledger.BatchBlocks)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "nats://queue.internal:4222", cfg.NATS.URL)
}

func TestLoadIndexerConfig_RequiresRPCURL(t *testing.T) {
	t.Setenv("ASSET_INDEXER_LEDGER_RPC_URL", "")

	_, err := config.LoadIndexerConfig("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.rpc_url")
}

func TestLoadIndexerConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
ledger:
  rpc_url: https://rpc.from-file.example
  confirmations: 3
database:
  host: localhost
  user: indexer
  dbname: assets
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))

	cfg, err := config.LoadIndexerConfig(configFile, dir)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.from-file.example", cfg.Ledger.RPCURL)
	assert.Equal(t, uint64(3), cfg.Ledger.Confirmations)
	assert.Equal(t, "localhost", cfg.Database.Host)
	// Unset keys still get defaults
	assert.Equal(t, 15*time.Second, cfg.Ledger.PollInterval)
}

func TestLoadIndexerConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	env := "ASSET_INDEXER_LEDGER_RPC_URL=https://rpc.from-env-file.example\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	// Overload in loadEnv mutates the process environment; make sure the
	// test restores it afterwards.
	t.Setenv("ASSET_INDEXER_LEDGER_RPC_URL", "placeholder")

	cfg, err := config.LoadIndexerConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.from-env-file.example", cfg.Ledger.RPCURL)
}

func TestLoadAPIConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadAPIConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.ReadTimeout)
	assert.Equal(t, 10, cfg.Server.WriteTimeout)
	assert.Equal(t, 120, cfg.Server.IdleTimeout)
	assert.Equal(t, domain.ChainEthereumMainnet, cfg.Ledger.ChainID)
}

func TestLoadAPIConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ASSET_INDEXER_SERVER_PORT", "9090")
	t.Setenv("ASSET_INDEXER_DATABASE_DBNAME", "assets_ro")

	cfg, err := config.LoadAPIConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "assets_ro", cfg.Database.DBName)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "indexer",
		Password: "secret",
		DBName:   "assets",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=indexer password=secret dbname=assets sslmode=disable",
		cfg.DSN())
}
