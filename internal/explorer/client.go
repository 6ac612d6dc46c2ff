package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"lecca.io/oasys-watchtower/internal/logger"
)

// ErrUnavailable wraps every transport, status and decode failure.
var ErrUnavailable = errors.New("explorer unavailable")

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

type ClientConfig struct {
	// BaseURL is the API root, e.g. https://explorer.oasys.games/api
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RateLimitPerSec is the request budget. The limiter waits, it never drops.
	RateLimitPerSec int

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://explorer.oasys.games/api",
		Timeout:         15 * time.Second,
		RateLimitPerSec: 5,
	}
}

// Block is one entry of the blocks-validated listing.
type Block struct {
	Height    uint64
	Timestamp time.Time
}

// HasTimestamp reports whether the explorer supplied a timestamp.
func (b Block) HasTimestamp() bool {
	return !b.Timestamp.IsZero()
}

type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(config ClientConfig) (*Client, error) {
	defaults := ClientConfigDefaults()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RateLimitPerSec <= 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid explorer url: %w", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
	}, nil
}

// Items is a pointer so a body without an items array can be told apart
// from an empty page.
type blocksResponse struct {
	Items *[]blockItem `json:"items"`
}

type blockItem struct {
	Height    json.Number `json:"height"`
	Timestamp string      `json:"timestamp"`
}

// BlocksValidated returns the first page of blocks attributed to address.
// An empty list is a valid answer, not an error.
func (c *Client) BlocksValidated(ctx context.Context, address string) ([]Block, error) {
	endpoint := fmt.Sprintf("%s/v2/addresses/%s/blocks-validated", c.config.BaseURL, url.PathEscape(address))

	var resp blocksResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	if resp.Items == nil {
		return nil, fmt.Errorf("%w: response has no items array", ErrUnavailable)
	}

	items := *resp.Items
	blocks := make([]Block, 0, len(items))
	for i, item := range items {
		b, err := item.parse()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrUnavailable, i, err)
		}
		blocks = append(blocks, b)
	}

	logger.Debug("EXPLORER", "%s: %d blocks-validated items", address, len(blocks))
	return blocks, nil
}

func (it blockItem) parse() (Block, error) {
	var b Block
	if it.Height != "" {
		h, err := strconv.ParseUint(it.Height.String(), 10, 64)
		if err != nil {
			return b, fmt.Errorf("height %q: %w", it.Height, err)
		}
		b.Height = h
	}
	if it.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, it.Timestamp)
		if err != nil {
			return b, fmt.Errorf("timestamp %q: %w", it.Timestamp, err)
		}
		b.Timestamp = ts.UTC()
	}
	return b, nil
}

func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("EXPLORER", "failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrUnavailable, err)
	}
	return nil
}
