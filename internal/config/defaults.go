package config

// Network names accepted in configuration.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.satchel",
		Network: NetworkTestnet,
		Chain: ChainConfig{
			Esplora:        map[string]string{},
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RateLimit:      10,
			Burst:          5,
			Concurrency:    4,
			Breaker: BreakerConfig{
				MinRequests:        20,
				FailureRatio:       0.7,
				OpenTimeoutSeconds: 30,
			},
		},
		Fees: FeesConfig{
			RateSatVB:    2,
			MaxRateSatVB: 500,
		},
		Wallet: WalletConfig{
			Account:            0,
			GapLimit:           20,
			DustThreshold:      0,
			IncludeUnconfirmed: false,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level:     "error",
			File:      "~/.satchel/satchel.log",
			MaxSizeKB: 10 * 1024,
			MaxFiles:  3,
		},
	}
}
