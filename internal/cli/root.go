// Package cli wires the satchel commands. Flag values and the per-run
// config, logger and formatter live in package state set up by the root
// command's PersistentPreRunE.
//
//nolint:gochecknoglobals // cobra flag and run state
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

var (
	homeDir      string
	outputFormat string
	networkName  string
	verbose      bool

	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "satchel",
	Short: "A command-line Bitcoin wallet",
	Long: `Satchel is a terminal Bitcoin wallet built on BIP39 seeds and BIP84
(native segwit) descriptors.

It derives receive and change addresses, tracks the wallet's outputs by
syncing with an Esplora server, and builds, signs and broadcasts
transactions.

Example:
  satchel wallet create main
  satchel sync --wallet main
  satchel balance --wallet main
  satchel send --wallet main --to tb1q... --amount 0.001`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(); err != nil {
			return err
		}
		SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter))
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the command line and reports a failure on stderr in the
// active output format.
func Execute() error {
	prepareHelp(rootCmd)
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
	if logger != nil {
		logger.Error("%s failed: %v", walleterr.Code(err), err)
	}
	cleanup()
	return err
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	return walleterr.ExitCode(err)
}

// resolveHome picks the data directory: --home, then SATCHEL_HOME, then
// ~/.satchel.
func resolveHome() string {
	for _, h := range []string{homeDir, os.Getenv(config.EnvHome)} {
		if h != "" {
			return h
		}
	}
	return config.DefaultHome()
}

// initGlobals loads the config and layers environment and flags over it.
func initGlobals() error {
	home := resolveHome()

	var err error
	cfg, err = config.Load(config.Path(config.ExpandPath(home)))
	switch {
	case err == nil:
	case walleterr.Is(err, walleterr.ErrConfigNotFound):
		cfg = config.Defaults()
		cfg.Home = home
	default:
		return err
	}

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if networkName != "" {
		cfg.Network = networkName
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewRotatingLogger(
		config.ParseLogLevel(cfg.Logging.Level),
		cfg.Logging.File,
		config.RotateOptions{MaxSizeKB: cfg.Logging.MaxSizeKB, MaxFiles: cfg.Logging.MaxFiles},
	)
	if err != nil {
		logger = config.NullLogger()
	}

	format, err := output.ParseFormat(cfg.Output.DefaultFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, os.Stdout)

	for _, w := range cfg.Warnings {
		logger.Info("config: %s", w)
		if !formatter.IsJSON() {
			messenger().Warnf("%s", w)
		}
	}
	return nil
}

// messenger returns the status printer for the current settings.
func messenger() *output.Messenger {
	plain := cfg != nil && cfg.Output.Color == "never"
	return &output.Messenger{Out: os.Stderr, Err: os.Stderr, Plain: plain}
}

// cleanup releases resources and dumps metrics when configured.
func cleanup() {
	if cfg != nil && cfg.Metrics.Textfile != "" {
		if err := metrics.Global.WriteTextfile(config.ExpandPath(cfg.Metrics.Textfile)); err != nil && logger != nil {
			logger.Error("writing metrics textfile: %v", err)
		}
	}
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "satchel data directory (default: ~/.satchel)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "", "network: mainnet, testnet, signet, regtest")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}
