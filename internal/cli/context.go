package cli

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/esplora"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/fileutil"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	walletsvc "github.com/mrz1836/satchel/internal/service/wallet"
	"github.com/mrz1836/satchel/internal/storage"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Log       *config.Logger
	Fmt       *output.Formatter
	Metrics   *metrics.Metrics
	OpenStore StoreOpener
	NewSource SourceFactory
}

// StoreOpener opens the wallet state store.
type StoreOpener func(cfg *config.Config) (storage.KeyValueStore, error)

// SourceFactory creates the chain source for a network.
type SourceFactory func(cc *CommandContext, net *chaincfg.Params) (chain.Source, error)

type cmdContextKey struct{}

// NewCommandContext creates a context wired to Badger and Esplora.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	return &CommandContext{
		Cfg:       cfg,
		Log:       logger,
		Fmt:       formatter,
		Metrics:   metrics.Global,
		OpenStore: openBadger,
		NewSource: newEsplora,
	}
}

// SetCmdContext attaches cc to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached by SetCmdContext.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	return NewCommandContext(cfg, logger, formatter)
}

func openBadger(cfg *config.Config) (storage.KeyValueStore, error) {
	dir := cfg.StorageDir()
	if err := fileutil.EnsurePrivateDir(dir); err != nil {
		return nil, walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return storage.NewBadger(dir)
}

func newEsplora(cc *CommandContext, net *chaincfg.Params) (chain.Source, error) {
	c := cc.Cfg.Chain
	url := cc.Cfg.EsploraURL(wallet.NetworkName(net))
	if url == "" {
		url = esplora.DefaultURL(net)
	}
	backoff := chain.DefaultBackoff()
	if c.MaxRetries > 0 {
		backoff.Attempts = c.MaxRetries + 1
	}
	client, err := esplora.New(esplora.Options{
		BaseURL:     url,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
		Backoff:     backoff,
		RateLimit:   c.RateLimit,
		Burst:       c.Burst,
		Concurrency: c.Concurrency,
		Breaker: chain.BreakerConfig{
			MinRequests:  c.Breaker.MinRequests,
			FailureRatio: c.Breaker.FailureRatio,
			OpenTimeout:  time.Duration(c.Breaker.OpenTimeoutSeconds) * time.Second,
		},
		Logger:  cc.Log.Component("esplora"),
		Metrics: cc.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// session is an open wallet service plus the store behind it.
type session struct {
	svc   *walletsvc.Service
	store storage.KeyValueStore
}

// openSession opens the store and builds the wallet service.
func openSession(cc *CommandContext) (*session, error) {
	store, err := cc.OpenStore(cc.Cfg)
	if err != nil {
		return nil, err
	}
	svc := walletsvc.NewService(&walletsvc.Config{
		Storage: wallet.NewFileStorage(cc.Cfg.WalletsDir()),
		Store:   store,
		Config:  cc.Cfg,
		Logger:  cc.Log.Component("wallet"),
		Metrics: cc.Metrics,
	})
	return &session{svc: svc, store: store}, nil
}

func (s *session) Close() {
	_ = s.store.Close()
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

// networkTimeout bounds one command's chain traffic.
func networkTimeout(cc *CommandContext) time.Duration {
	per := time.Duration(cc.Cfg.Chain.TimeoutSeconds) * time.Second
	if per <= 0 {
		per = 30 * time.Second
	}
	return 4 * per
}
