package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Release lookup defaults.
const (
	DefaultBaseURL = "https://api.github.com"
	DefaultOwner   = "mrz1836"
	DefaultRepo    = "satchel"
	DefaultTimeout = 10 * time.Second

	maxErrorBodySize    = 1024
	maxResponseBodySize = 64 * 1024
)

// ErrReleaseCheck reports that the release API could not be reached or
// answered with an error.
var ErrReleaseCheck = walleterr.New("RELEASE_CHECK_FAILED", "release check failed")

var validOwnerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Release is the subset of a GitHub release used for update checks.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Check is the outcome of comparing the running build with the latest release.
type Check struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	URL     string `json:"url,omitempty"`
	Newer   bool   `json:"update_available"`
}

// Client fetches release metadata.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRepository points the client at another repository.
func WithRepository(owner, repo string) Option {
	return func(c *Client) { c.owner, c.repo = owner, repo }
}

// NewClient returns a client for the satchel repository.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		owner:      DefaultOwner,
		repo:       DefaultRepo,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest fetches the latest published release.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	if !validOwnerRepoPattern.MatchString(c.owner) || !validOwnerRepoPattern.MatchString(c.repo) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput,
			map[string]string{"owner": c.owner, "repo": c.repo})
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL built from validated owner/repo
	if err != nil {
		return nil, walleterr.Wrap(walleterr.WithCause(ErrReleaseCheck, err), "fetching release")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, walleterr.WithDetails(ErrReleaseCheck, map[string]string{
			"status": fmt.Sprintf("%d", resp.StatusCode),
			"body":   strings.TrimSpace(string(body)),
		})
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&rel); err != nil {
		return nil, walleterr.Wrap(walleterr.WithCause(walleterr.ErrGeneral, err), "decoding release")
	}
	return &rel, nil
}

// CheckLatest compares current against the latest release.
func (c *Client) CheckLatest(ctx context.Context, current string) (*Check, error) {
	rel, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return &Check{
		Current: current,
		Latest:  rel.TagName,
		URL:     rel.HTMLURL,
		Newer:   IsNewerVersion(current, rel.TagName),
	}, nil
}
