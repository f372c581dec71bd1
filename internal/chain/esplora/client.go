// Package esplora implements chain.Source against an Esplora REST API
// (blockstream.info, mempool.space, or a self-hosted electrs).
package esplora

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	// defaultTimeout bounds a single HTTP request.
	defaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of a response is read.
	maxResponseBody int64 = 10 << 20

	// defaultConcurrency is the number of scripts queried in parallel.
	defaultConcurrency = 4
)

// Default endpoints per network.
const (
	MainnetURL = "https://blockstream.info/api"
	TestnetURL = "https://blockstream.info/testnet/api"
	SignetURL  = "https://mempool.space/signet/api"
	RegtestURL = "http://127.0.0.1:3002"
)

// DefaultURL returns the public Esplora endpoint for net.
func DefaultURL(net *chaincfg.Params) string {
	switch net.Net {
	case chaincfg.MainNetParams.Net:
		return MainnetURL
	case chaincfg.SigNetParams.Net:
		return SignetURL
	case chaincfg.RegressionNetParams.Net:
		return RegtestURL
	default:
		return TestnetURL
	}
}

// Logger is the subset of the application logger used here.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Backoff     chain.Backoff
	RateLimit   float64
	Burst       int
	Breaker     chain.BreakerConfig
	Concurrency int
	HTTPClient  *http.Client
	Logger      Logger
	Metrics     *metrics.Metrics
}

// Client talks to one Esplora instance.
type Client struct {
	baseURL     string
	host        string
	httpClient  *http.Client
	backoff     chain.Backoff
	throttle    *chain.Throttle
	breaker     *chain.Breaker
	concurrency int
	logger      Logger
	metrics     *metrics.Metrics
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = TestnetURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"url":    opts.BaseURL,
			"reason": "esplora URL must be absolute",
		})
	}

	c := &Client{
		baseURL:     base,
		host:        u.Host,
		httpClient:  opts.HTTPClient,
		backoff:     opts.Backoff,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.backoff.Attempts <= 0 {
		c.backoff = chain.DefaultBackoff()
	}
	if c.concurrency <= 0 {
		c.concurrency = defaultConcurrency
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.metrics == nil {
		c.metrics = metrics.Global
	}
	if opts.RateLimit == 0 && opts.Burst == 0 {
		c.throttle = chain.DefaultThrottle()
	} else {
		c.throttle = chain.NewThrottle(opts.RateLimit, opts.Burst)
	}
	breakerCfg := opts.Breaker
	if breakerCfg.MinRequests == 0 && breakerCfg.FailureRatio == 0 {
		breakerCfg = chain.DefaultBreakerConfig()
	}
	c.breaker = chain.NewBreaker("esplora:"+u.Host, breakerCfg, func(name string, open bool) {
		c.metrics.SetBreakerOpen(name, open)
		if open {
			c.logger.Error("chain source %s seems down, circuit opened", name)
		} else {
			c.logger.Debug("chain source %s probing or recovered", name)
		}
	})
	return c, nil
}

// response is a completed HTTP exchange. Client errors (4xx other than
// 429) are returned as responses so they do not count against the breaker.
type response struct {
	status int
	body   []byte
}

// do performs one request through the throttle and breaker. Transport
// failures, 429 and 5xx are retryable CHAIN_UNAVAILABLE errors.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, endpoint string) (*response, error) {
	if err := c.throttle.Acquire(ctx, c.host); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := chain.Execute(c.breaker, func() (*response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, walleterr.WithCause(walleterr.ErrChainUnavailable, ctx.Err())
			}
			return nil, chain.MarkTransient(walleterr.WithCause(walleterr.ErrChainUnavailable, err))
		}
		defer func() { _ = httpResp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
		if err != nil {
			return nil, chain.MarkTransient(walleterr.WithCause(walleterr.ErrChainUnavailable, err))
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			c.honorRetryAfter(ctx, httpResp.Header.Get("Retry-After"))
			return nil, walleterr.WithDetails(chain.ErrRateLimited, map[string]string{"endpoint": endpoint})
		case httpResp.StatusCode >= http.StatusInternalServerError:
			return nil, chain.MarkTransient(walleterr.WithDetails(walleterr.ErrChainUnavailable, map[string]string{
				"endpoint": endpoint,
				"status":   fmt.Sprint(httpResp.StatusCode),
			}))
		}
		return &response{status: httpResp.StatusCode, body: data}, nil
	})
	c.metrics.RecordRPCCall(endpoint, time.Since(start), err)
	if err != nil {
		c.logger.Debug("esplora %s %s failed: %v", method, path, err)
	}
	return resp, err
}

// honorRetryAfter sleeps for a server-provided Retry-After when it fits
// within the retry budget.
func (c *Client) honorRetryAfter(ctx context.Context, header string) {
	wait := chain.RetryAfter(header)
	if wait <= 0 || wait > c.backoff.Ceiling {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// get performs a GET with retries and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, path, endpoint string) ([]byte, error) {
	body, err := chain.Do(ctx, c.backoff, func(int) ([]byte, error) {
		resp, err := c.do(ctx, http.MethodGet, path, "", nil, endpoint)
		if err != nil {
			return nil, err
		}
		if resp.status != http.StatusOK {
			return nil, walleterr.WithDetails(walleterr.ErrChainUnavailable, map[string]string{
				"endpoint": endpoint,
				"status":   fmt.Sprint(resp.status),
				"body":     truncate(string(resp.body), 200),
			})
		}
		return resp.body, nil
	})
	if err != nil {
		return nil, asChainUnavailable(ctx, err)
	}
	return body, nil
}

// asChainUnavailable makes sure every failure leaving the client carries
// the CHAIN_UNAVAILABLE code.
func asChainUnavailable(ctx context.Context, err error) error {
	if walleterr.Is(err, walleterr.ErrChainUnavailable) {
		return err
	}
	if ctx.Err() != nil {
		return walleterr.WithCause(walleterr.ErrChainUnavailable, ctx.Err())
	}
	return walleterr.WithCause(walleterr.ErrChainUnavailable, err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
