// Package config provides configuration management for satchel.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/satchel/internal/fileutil"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version int           `yaml:"version"`
	Home    string        `yaml:"home"`
	Network string        `yaml:"network"`
	Chain   ChainConfig   `yaml:"chain"`
	Fees    FeesConfig    `yaml:"fees"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Warnings collects non-fatal problems found while applying overrides.
	Warnings []string `yaml:"-"`
}

// ChainConfig defines the Esplora chain source settings.
type ChainConfig struct {
	// Esplora maps a network name to its API base URL. Networks without
	// an entry use the public default.
	Esplora        map[string]string `yaml:"esplora"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	MaxRetries     int               `yaml:"max_retries"`
	RateLimit      float64           `yaml:"rate_limit"`
	Burst          int               `yaml:"burst"`
	Concurrency    int               `yaml:"concurrency"`
	Breaker        BreakerConfig     `yaml:"breaker"`
}

// BreakerConfig defines circuit breaker thresholds.
type BreakerConfig struct {
	MinRequests        uint32  `yaml:"min_requests"`
	FailureRatio       float64 `yaml:"failure_ratio"`
	OpenTimeoutSeconds int     `yaml:"open_timeout_seconds"`
}

// FeesConfig defines fee settings in sat/vB.
type FeesConfig struct {
	RateSatVB    float64 `yaml:"rate_sat_vb"`
	MaxRateSatVB float64 `yaml:"max_rate_sat_vb"`
}

// WalletConfig defines wallet behavior.
type WalletConfig struct {
	Account  uint32 `yaml:"account"`
	GapLimit uint32 `yaml:"gap_limit"`
	// DustThreshold of 0 means the relay-policy P2WPKH threshold.
	DustThreshold      int64 `yaml:"dust_threshold"`
	IncludeUnconfirmed bool  `yaml:"include_unconfirmed"`
}

// StorageConfig defines where wallet state lives.
type StorageConfig struct {
	// Dir is the Badger directory. Empty means <home>/db.
	Dir string `yaml:"dir"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeKB int64  `yaml:"max_size_kb"`
	MaxFiles  int    `yaml:"max_files"`
}

// MetricsConfig defines metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives a Prometheus text dump after each command.
	Textfile string `yaml:"textfile"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, walleterr.WithDetails(walleterr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, walleterr.WithDetails(walleterr.WithCause(walleterr.ErrConfigInvalid, err),
			map[string]string{"path": path})
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := fileutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	return fileutil.WriteAtomicFunc(path, 0o600, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	})
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return walleterr.WithDetails(walleterr.ErrConfigInvalid, map[string]string{
			"field":  field,
			"reason": reason,
		})
	}

	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkSignet, NetworkRegtest:
	default:
		return invalid("network", fmt.Sprintf("unknown network %q", c.Network))
	}
	if c.Fees.RateSatVB <= 0 {
		return invalid("fees.rate_sat_vb", "must be positive")
	}
	if c.Fees.MaxRateSatVB > 0 && c.Fees.RateSatVB > c.Fees.MaxRateSatVB {
		return invalid("fees.rate_sat_vb", "exceeds fees.max_rate_sat_vb")
	}
	if c.Wallet.GapLimit == 0 {
		return invalid("wallet.gap_limit", "must be at least 1")
	}
	if c.Wallet.DustThreshold < 0 {
		return invalid("wallet.dust_threshold", "must not be negative")
	}
	switch c.Output.DefaultFormat {
	case "", "auto", "text", "json":
	default:
		return invalid("output.default_format", "must be text, json or auto")
	}
	switch c.Output.Color {
	case "", "auto", "always", "never":
	default:
		return invalid("output.color", "must be auto, always or never")
	}
	if r := c.Chain.Breaker.FailureRatio; r <= 0 || r > 1 {
		return invalid("chain.breaker.failure_ratio", "must be in (0, 1]")
	}
	return nil
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// GetHome returns the satchel home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// EsploraURL returns the configured Esplora URL for network, or "".
func (c *Config) EsploraURL(network string) string {
	return c.Chain.Esplora[network]
}

// StorageDir returns the Badger directory.
func (c *Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return ExpandPath(c.Storage.Dir)
	}
	return filepath.Join(ExpandPath(c.Home), "db")
}

// WalletsDir returns the directory holding encrypted wallet files.
func (c *Config) WalletsDir() string {
	return filepath.Join(ExpandPath(c.Home), "wallets")
}

// GetWallet returns the wallet configuration.
func (c *Config) GetWallet() WalletConfig {
	return c.Wallet
}

// GetFees returns the fee configuration.
func (c *Config) GetFees() FeesConfig {
	return c.Fees
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default satchel home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".satchel"
	}
	return filepath.Join(home, ".satchel")
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
