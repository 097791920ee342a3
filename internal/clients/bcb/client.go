// Package bcb is a client for the Banco Central do Brasil SGS time-series API.
package bcb

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

	"github.com/aristath/graham/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the SGS API root
	DefaultBaseURL = "https://api.bcb.gov.br/dados/serie"
	// SeriesSelic is the annualised SELIC rate series
	SeriesSelic = "4189"

	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2.0 // Requests per second

	maxAttempts = 3
	sgsDate     = "02/01/2006"
)

// Client fetches SGS series
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	minBackoff time.Duration
	maxBackoff time.Duration
	log        zerolog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the request rate; values <= 0 disable limiting.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithBackoff sets the delay before the second attempt and its cap.
func WithBackoff(min, max time.Duration) ClientOption {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// NewClient creates an SGS client
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		minBackoff: time.Second,
		maxBackoff: 3 * time.Second,
		log:        log.With().Str("client", "bcb").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-200 response from SGS.
type APIError struct {
	StatusCode int
	Message    string
	Series     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bcb API error: %s (status %d, series %s)", e.Message, e.StatusCode, e.Series)
}

// retryable reports whether another attempt may succeed
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type observation struct {
	Date  string `json:"data"`
	Value string `json:"valor"`
}

// FetchSeries returns the observations of series in [from, to], oldest first.
// Zero bounds are omitted from the query. Transient failures are retried up to
// three attempts in total.
func (c *Client) FetchSeries(ctx context.Context, series string, from, to time.Time) ([]domain.RatePoint, error) {
	params := url.Values{}
	params.Set("formato", "json")
	if !from.IsZero() {
		params.Set("dataInicial", from.Format(sgsDate))
	}
	if !to.IsZero() {
		params.Set("dataFinal", to.Format(sgsDate))
	}
	reqURL := fmt.Sprintf("%s/bcdata.sgs.%s/dados?%s", c.baseURL, url.PathEscape(series), params.Encode())

	var lastErr error
	backoff := c.minBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rates, err := c.fetch(ctx, series, reqURL)
		if err == nil {
			c.log.Debug().Str("series", series).Int("observations", len(rates)).Int("attempt", attempt).Msg("Fetched rate series")
			return rates, nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}

		c.log.Warn().Err(err).Str("series", series).Int("attempt", attempt).Dur("backoff", backoff).Msg("Rate fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}

	return nil, fmt.Errorf("failed to fetch series %s: %w", series, lastErr)
}

func (c *Client) fetch(ctx context.Context, series, reqURL string) ([]domain.RatePoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Series: series}
	}

	return parseObservations(body)
}

// parseObservations decodes an SGS JSON body. An empty body is an empty series.
func parseObservations(body []byte) ([]domain.RatePoint, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return []domain.RatePoint{}, nil
	}

	var raw []observation
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	rates := make([]domain.RatePoint, 0, len(raw))
	for _, o := range raw {
		date, err := time.Parse(sgsDate, strings.TrimSpace(o.Date))
		if err != nil {
			return nil, fmt.Errorf("invalid observation date %q: %w", o.Date, err)
		}
		value, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(o.Value), ",", ".", 1), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid observation value %q: %w", o.Value, err)
		}
		rates = append(rates, domain.RatePoint{Date: date, Value: value})
	}

	return rates, nil
}
