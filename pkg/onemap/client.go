// Package onemap resolves Singapore addresses to coordinates through the OneMap API.
package onemap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/resale-estimator/internal/resilience"
)

// DefaultBaseURL is the OneMap API host.
const DefaultBaseURL = "https://developers.onemap.sg"

const searchPath = "/commonapi/elastic/omsearch"

var (
	// ErrNoResults is returned when a search matches nothing.
	ErrNoResults = eris.New("onemap: no results")
	// ErrUpstreamUnavailable is returned when OneMap cannot be reached or fails.
	ErrUpstreamUnavailable = eris.New("onemap: upstream unavailable")
)

// Location is the first search match for an address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Building  string  `json:"building,omitempty"`
	Postal    string  `json:"postal,omitempty"`
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit for OneMap calls.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy overrides the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBreaker sheds calls while OneMap is failing.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithTokenSource authenticates requests with a cached access token.
func WithTokenSource(ts *TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// Client calls the OneMap search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     resilience.Policy
	breaker    *resilience.Breaker
	tokens     *TokenSource
}

// NewClient creates a OneMap client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(4, 4),
		policy:     resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = resilience.LogRetries("onemap", "search")
	}
	return c
}

type searchResponse struct {
	Found   int            `json:"found"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	SearchVal string `json:"SEARCHVAL"`
	Building  string `json:"BUILDING"`
	Address   string `json:"ADDRESS"`
	Postal    string `json:"POSTAL"`
	Latitude  string `json:"LATITUDE"`
	Longitude string `json:"LONGITUDE"`
}

// Search geocodes address and returns the first match.
func (c *Client) Search(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, eris.Wrap(ErrNoResults, "onemap: empty address")
	}

	call := func(ctx context.Context) (*searchResponse, error) {
		return resilience.DoVal(ctx, c.policy, func(ctx context.Context) (*searchResponse, error) {
			return c.search(ctx, address)
		})
	}

	var resp *searchResponse
	var err error
	if c.breaker != nil {
		resp, err = resilience.Call(ctx, c.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		zap.L().Warn("onemap: search failed", zap.String("address", address), zap.Error(err))
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "search %q: %v", address, err)
	}

	if len(resp.Results) == 0 {
		return nil, eris.Wrapf(ErrNoResults, "onemap: %q", address)
	}

	first := resp.Results[0]
	lat, err := strconv.ParseFloat(strings.TrimSpace(first.Latitude), 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse LATITUDE %q", first.Latitude)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(first.Longitude), 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse LONGITUDE %q", first.Longitude)
	}

	return &Location{
		Latitude:  lat,
		Longitude: lon,
		Address:   first.Address,
		Building:  first.Building,
		Postal:    first.Postal,
	}, nil
}

func (c *Client) search(ctx context.Context, address string) (*searchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "onemap: rate limit")
	}

	params := url.Values{
		"searchVal":      {address},
		"returnGeom":     {"Y"},
		"getAddrDetails": {"Y"},
		"pageNum":        {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: build request")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", tok.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &resilience.StatusError{Service: "onemap", Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "onemap: parse search response")
	}
	return &out, nil
}
