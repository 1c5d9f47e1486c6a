// Package fortnox implements the voucher endpoints of the Fortnox REST API
// used by the reconciliation engine.
//
// Only an already issued access token is supported; obtaining and refreshing
// tokens is left to the surrounding application.
//
// API limitations honoured by the client:
//   - Requests are rate limited with a token bucket (Fortnox allows roughly
//     25 requests per 5 seconds per token)
//   - Voucher lists are paginated; MetaInformation.@TotalPages reports the page count
//   - 4xx responses are returned as *ClientError and never trip the breaker
//   - 5xx responses and transport failures count towards the circuit breaker
package fortnox

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"ledgermatch/internal/logger"
	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.fortnox.se/3"

// Config holds configuration for the Fortnox client.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// AccessToken is sent as bearer token.
	AccessToken string

	// Timeout bounds a single HTTP request.
	// Default: 30 seconds.
	Timeout time.Duration

	// RateLimit is the sustained request rate per second.
	// Default: 4.
	RateLimit float64

	// RateBurst is the token bucket size.
	// Default: 4.
	RateBurst int

	// BreakerFailures is the number of consecutive server-side failures that
	// open the circuit.
	// Default: 5.
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open before probing again.
	// Default: 30 seconds.
	BreakerTimeout time.Duration

	// HTTPClient overrides the default HTTP client (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         30 * time.Second,
		RateLimit:       4,
		RateBurst:       4,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Client implements services.VoucherService over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

var _ services.VoucherService = (*Client)(nil)

// NewClient creates a Fortnox client. Zero-valued config fields fall back to
// DefaultConfig.
func NewClient(cfg Config) (*Client, error) {
	const op = "NewClient"

	defaults := DefaultConfig()
	if cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%s: invalid base URL: %w", op, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = max(1, int(cfg.RateLimit))
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log := logger.WithComponent("fortnox-client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fortnox",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var clientErr *ClientError
			return err == nil || errors.As(err, &clientErr) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Fortnox circuit breaker changed state")
		},
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.AccessToken,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker:    breaker,
		log:        log,
	}, nil
}

// GetVouchers lists vouchers, optionally scoped to a financial year and a
// voucher series. With AllPages every page is fetched and concatenated.
func (c *Client) GetVouchers(ctx context.Context, query services.VoucherQuery) (*models.VoucherListResponse, error) {
	const op = "GetVouchers"

	path := "/vouchers"
	if query.VoucherSeries != "" {
		path = "/vouchers/sublist/" + url.PathEscape(query.VoucherSeries)
	}

	page := max(query.Page, 1)
	var combined models.VoucherListResponse
	for {
		params := url.Values{}
		if query.FinancialYear != nil {
			params.Set("financialyear", strconv.Itoa(*query.FinancialYear))
		}
		if query.Limit > 0 {
			params.Set("limit", strconv.Itoa(query.Limit))
		}
		if query.Search != "" {
			params.Set("search", query.Search)
		}
		params.Set("page", strconv.Itoa(page))

		var resp models.VoucherListResponse
		if err := c.get(ctx, op, path, params, &resp); err != nil {
			return nil, err
		}

		if !query.AllPages {
			return &resp, nil
		}

		combined.Vouchers = append(combined.Vouchers, resp.Vouchers...)
		combined.MetaInformation = resp.MetaInformation
		if len(resp.Vouchers) == 0 || page >= resp.TotalPages() {
			return &combined, nil
		}
		page++
	}
}

// GetVoucher fetches one voucher including its rows.
func (c *Client) GetVoucher(ctx context.Context, series string, number int, financialYear *int) (*models.VoucherResponse, error) {
	const op = "GetVoucher"

	params := url.Values{}
	if financialYear != nil {
		params.Set("financialyear", strconv.Itoa(*financialYear))
	}

	path := fmt.Sprintf("/vouchers/%s/%d", url.PathEscape(series), number)
	var resp models.VoucherResponse
	if err := c.get(ctx, op, path, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a rate limited, circuit protected GET and decodes the JSON body.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, endpoint, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	return err
}

func (c *Client) do(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Fortnox request completed")

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return newClientError(op, resp.StatusCode, body)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s: HTTP %d: %w", op, resp.StatusCode, ErrUnexpectedResponse)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnexpectedResponse, err)
	}
	return nil
}

func newClientError(op string, status int, body []byte) *ClientError {
	clientErr := &ClientError{Op: op, Status: status, Message: http.StatusText(status)}

	var info errorInformation
	if err := json.Unmarshal(body, &info); err == nil && info.ErrorInformation.Message != "" {
		clientErr.Code = info.ErrorInformation.Code
		clientErr.Message = info.ErrorInformation.Message
	}
	return clientErr
}
