package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "23:30", cfg.Settlement.RunAt)
	assert.Equal(t, "default", cfg.Ledger.DefaultRoute)
	assert.False(t, cfg.Ledger.AllowOverpayment)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Settlement.FenceTTL)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("storage:\n  driver: postgres\n  dsn: postgres://ledger@localhost/ledger\nledger:\n  default_route: north\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("LEDGER_SETTLEMENT_RUN_AT", "22:15")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "north", cfg.Ledger.DefaultRoute)
	assert.Equal(t, "22:15", cfg.Settlement.RunAt)
}

func TestValidate(t *testing.T) {
	base, err := Load(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }},
		{"bad run_at", func(c *Config) { c.Settlement.RunAt = "25:99" }},
		{"bad timezone", func(c *Config) { c.Settlement.Timezone = "Mars/Olympus" }},
		{"zero fence ttl", func(c *Config) { c.Settlement.FenceTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireSharedStorage(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, cfg.RequireSharedStorage(), "volatile memory store")

	cfg.Storage.SnapshotPath = filepath.Join(t.TempDir(), "ledger.snap")
	assert.Error(t, cfg.RequireSharedStorage(), "snapshot file written by the server")

	cfg.Storage.Driver = "postgres"
	cfg.Storage.DSN = "postgres://ledger@localhost/ledger"
	assert.NoError(t, cfg.RequireSharedStorage())
}
