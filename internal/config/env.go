package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome            = "SATCHEL_HOME"
	EnvNetwork         = "SATCHEL_NETWORK"
	EnvEsploraURL      = "SATCHEL_ESPLORA_URL"
	EnvFeeRate         = "SATCHEL_FEE_RATE"
	EnvGapLimit        = "SATCHEL_GAP_LIMIT"
	EnvOutputFormat    = "SATCHEL_OUTPUT_FORMAT"
	EnvVerbose         = "SATCHEL_VERBOSE"
	EnvLogLevel        = "SATCHEL_LOG_LEVEL"
	EnvMetricsTextfile = "SATCHEL_METRICS_TEXTFILE"
	EnvNoColor         = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = strings.ToLower(strings.TrimSpace(v))
	}

	// SATCHEL_ESPLORA_URL applies to the network in effect after SATCHEL_NETWORK.
	if v := os.Getenv(EnvEsploraURL); v != "" {
		clean := SanitizeURL(v)
		if warning := ValidateEsploraURL(clean); warning != "" {
			cfg.Warnings = append(cfg.Warnings, warning)
		}
		if cfg.Chain.Esplora == nil {
			cfg.Chain.Esplora = map[string]string{}
		}
		cfg.Chain.Esplora[cfg.Network] = clean
	}

	if v := os.Getenv(EnvFeeRate); v != "" {
		if rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && rate > 0 {
			cfg.Fees.RateSatVB = rate
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring %s=%q: not a positive number", EnvFeeRate, v))
		}
	}

	if v := os.Getenv(EnvGapLimit); v != "" {
		if gap, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32); err == nil && gap > 0 {
			cfg.Wallet.GapLimit = uint32(gap)
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring %s=%q: not a positive integer", EnvGapLimit, v))
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvMetricsTextfile); v != "" {
		cfg.Metrics.Textfile = strings.TrimSpace(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// This is useful for cleaning user-provided URLs that may contain copy-paste artifacts.
func SanitizeURL(rawURL string) string {
	return sanitize.URL(strings.TrimSpace(rawURL))
}

// ValidateEsploraURL returns a warning for URLs that are unusable or
// unencrypted, or "" when the URL looks fine. Plain http is expected for a
// local regtest node.
func ValidateEsploraURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("esplora URL %q is not an absolute URL", rawURL)
	}
	switch u.Scheme {
	case "https":
		return ""
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return ""
		}
		return fmt.Sprintf("esplora URL %q is not encrypted", rawURL)
	default:
		return fmt.Sprintf("esplora URL %q has unsupported scheme %q", rawURL, u.Scheme)
	}
}
