package onlinelookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/ratelimit"

	"beatline/internal/beatmap"
	"beatline/internal/logging"
)

// ErrNotFound is returned when the remote service does not know a beatmap hash.
var ErrNotFound = errors.New("beatmap not found online")

// Result is the online identity of one beatmap.
type Result struct {
	BeatmapID int64
	SetID     int64
	Status    beatmap.OnlineStatus
}

// Lookuper resolves a beatmap MD5 hash to its online identity.
type Lookuper interface {
	LookupBeatmap(ctx context.Context, md5 string) (Result, error)
}

type apiBeatmap struct {
	BeatmapID    int64 `json:"beatmap_id,string"`
	BeatmapSetID int64 `json:"beatmapset_id,string"`
	Approved     int   `json:"approved,string"`
}

// Client calls the get_beatmaps endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

var _ Lookuper = (*Client)(nil)

type clientOptions struct {
	userAgent      string
	timeout        time.Duration
	requestsPerSec int
	retryMax       int
	logger         *slog.Logger
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) { o.userAgent = strings.TrimSpace(ua) }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second, retries included.
func WithRateLimit(perSecond int) Option {
	return func(o *clientOptions) {
		if perSecond > 0 {
			o.requestsPerSec = perSecond
		}
	}
}

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) Option {
	return func(o *clientOptions) {
		if n >= 0 {
			o.retryMax = n
		}
	}
}

// WithLogger routes retry diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithHTTPClient bypasses the retrying client entirely.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// New creates a lookup client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("online api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("online base url required")
	}

	options := clientOptions{
		timeout:        15 * time.Second,
		requestsPerSec: 1,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = newRetryableHTTPClient(options)
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  options.userAgent,
		httpClient: httpClient,
	}, nil
}

func newRetryableHTTPClient(options clientOptions) *http.Client {
	limiter := ratelimit.New(options.requestsPerSec, ratelimit.WithoutSlack)

	rc := retryablehttp.NewClient()
	rc.RetryMax = options.retryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = options.timeout
	rc.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, _ int) {
		limiter.Take()
	}
	if options.logger != nil {
		rc.Logger = logging.NewComponentLogger(options.logger, "online_http")
	} else {
		rc.Logger = nil
	}
	return rc.StandardClient()
}

// LookupBeatmap resolves md5 to its online beatmap and set IDs.
func (c *Client) LookupBeatmap(ctx context.Context, md5 string) (Result, error) {
	md5 = strings.ToLower(strings.TrimSpace(md5))
	if md5 == "" {
		return Result{}, errors.New("beatmap hash must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/get_beatmaps")
	if err != nil {
		return Result{}, fmt.Errorf("parse online url: %w", err)
	}
	params := url.Values{}
	params.Set("k", c.apiKey)
	params.Set("h", md5)
	params.Set("limit", "1")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return Result{}, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("get_beatmaps returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload []apiBeatmap
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode get_beatmaps response: %w", err)
	}
	if len(payload) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, md5)
	}
	return Result{
		BeatmapID: payload[0].BeatmapID,
		SetID:     payload[0].BeatmapSetID,
		Status:    beatmap.StatusFromAPI(payload[0].Approved),
	}, nil
}
