package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/config"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := config.Defaults()
	cfg.Network = config.NetworkSignet
	cfg.Chain.Esplora[config.NetworkSignet] = "https://esplora.example/signet/api"
	cfg.Fees.RateSatVB = 3.5
	cfg.Wallet.GapLimit = 50
	cfg.Output.Verbose = true

	require.NoError(t, config.Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, config.NetworkSignet, loaded.Network)
	assert.Equal(t, "https://esplora.example/signet/api", loaded.EsploraURL(config.NetworkSignet))
	assert.Empty(t, loaded.EsploraURL(config.NetworkMainnet))
	assert.InDelta(t, 3.5, loaded.GetFees().RateSatVB, 0.0001)
	assert.Equal(t, uint32(50), loaded.GetWallet().GapLimit)
	assert.True(t, loaded.IsVerbose())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: mainnet\nfees:\n  rate_sat_vb: 7\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.NetworkMainnet, cfg.Network)
	assert.InDelta(t, 7.0, cfg.Fees.RateSatVB, 0.0001)
	assert.Equal(t, uint32(20), cfg.Wallet.GapLimit)
	assert.Equal(t, uint32(20), cfg.Chain.Breaker.MinRequests)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.satchel", cfg.Home)
	assert.Equal(t, config.NetworkTestnet, cfg.Network)
	assert.InDelta(t, 2.0, cfg.Fees.RateSatVB, 0.0001)
	assert.Equal(t, uint32(20), cfg.Wallet.GapLimit)
	assert.Equal(t, int64(0), cfg.Wallet.DustThreshold)
	assert.False(t, cfg.Wallet.IncludeUnconfirmed)
	assert.InDelta(t, 0.7, cfg.Chain.Breaker.FailureRatio, 0.0001)
	assert.Equal(t, "error", cfg.GetLoggingLevel())
	assert.Equal(t, "~/.satchel/satchel.log", cfg.GetLoggingFile())
	assert.Equal(t, "auto", cfg.GetOutputFormat())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"unknown network", func(c *config.Config) { c.Network = "dogenet" }, "network"},
		{"zero fee rate", func(c *config.Config) { c.Fees.RateSatVB = 0 }, "fees.rate_sat_vb"},
		{"rate above max", func(c *config.Config) { c.Fees.RateSatVB = 600 }, "fees.rate_sat_vb"},
		{"zero gap", func(c *config.Config) { c.Wallet.GapLimit = 0 }, "wallet.gap_limit"},
		{"negative dust", func(c *config.Config) { c.Wallet.DustThreshold = -1 }, "wallet.dust_threshold"},
		{"bad ratio", func(c *config.Config) { c.Chain.Breaker.FailureRatio = 1.5 }, "chain.breaker.failure_ratio"},
		{"yaml output", func(c *config.Config) { c.Output.DefaultFormat = "yaml" }, "output.default_format"},
		{"color mode", func(c *config.Config) { c.Output.Color = "rainbow" }, "output.color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, walleterr.ErrConfigInvalid)
			var we *walleterr.WalletError
			require.ErrorAs(t, err, &we)
			assert.Equal(t, tt.field, we.Details["field"])
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/path/config.yaml")
	require.ErrorIs(t, err, walleterr.ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o600))

	_, err := config.Load(path)
	require.ErrorIs(t, err, walleterr.ErrConfigInvalid)
}

func TestSave_CreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

	require.NoError(t, config.Save(config.Defaults(), path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/home/test/.satchel", "config.yaml"), config.Path("/home/test/.satchel"))

	cfg := config.Defaults()
	cfg.Home = "/srv/satchel"
	assert.Equal(t, "/srv/satchel/db", cfg.StorageDir())
	assert.Equal(t, "/srv/satchel/wallets", cfg.WalletsDir())

	cfg.Storage.Dir = "/var/lib/satchel"
	assert.Equal(t, "/var/lib/satchel", cfg.StorageDir())
	assert.Equal(t, "relative/path", config.ExpandPath("relative/path"))
}

func TestDefaultHome(t *testing.T) {
	t.Parallel()
	assert.Contains(t, config.DefaultHome(), ".satchel")
}
