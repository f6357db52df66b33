// Package omega provides a client for the omega market-data service.
package omega

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/models"
)

const (
	DefaultBaseURL   = "http://localhost:3180/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 20 // requests per second
)

// Client is the HTTP market feed. Every call is rate limited and bounded by
// the per-call timeout; a timeout surfaces as a FEED_TIMEOUT trade error
// with the account state untouched.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	timeout    time.Duration
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a new omega feed client
func NewClient(apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		timeout:    DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// errNotFound marks a 404 from the feed; callers map it per endpoint.
var errNotFound = errors.New("feed: not found")

// get performs a rate-limited, timeout-bounded GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.InfraErr(models.CodeFeedTimeout, "rate limit wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.InfraErr(models.CodeFeedDataMissing, "build request: %v", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Feed request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return models.InfraErr(models.CodeFeedTimeout, "feed call %s timed out after %s", path, c.timeout)
		}
		return models.InfraErr(models.CodeFeedDataMissing, "feed call %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.InfraErr(models.CodeFeedDataMissing,
			"feed call %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return models.InfraErr(models.CodeFeedDataMissing, "decode %s response: %v", path, err)
	}

	return nil
}

type barResponse struct {
	Frame  string  `json:"frame"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func toBars(rows []barResponse, layout string) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		frame, err := time.Parse(layout, r.Frame)
		if err != nil {
			return nil, models.InfraErr(models.CodeFeedDataMissing, "bad frame %q: %v", r.Frame, err)
		}
		bars = append(bars, models.Bar{
			Frame:  frame.UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// MinuteBars returns the minute bars of symbol from `from` through the end
// of that trading day. An empty slice means the symbol did not trade.
func (c *Client) MinuteBars(ctx context.Context, symbol string, from time.Time) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("frame", "1m")
	params.Set("start", from.Format(models.MinuteLayout))

	var rows []barResponse
	if err := c.get(ctx, "/bars", params, &rows); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBars(rows, models.MinuteLayout)
}

// DayBars returns the daily bars of symbol in [start, end]. Suspended days
// are absent.
func (c *Client) DayBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("frame", "1d")
	params.Set("start", start.Format(models.DateLayout))
	params.Set("end", end.Format(models.DateLayout))

	var rows []barResponse
	if err := c.get(ctx, "/bars", params, &rows); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBars(rows, models.DateLayout)
}

// PriceLimits returns the daily price band of symbol on date.
func (c *Client) PriceLimits(ctx context.Context, symbol string, date time.Time) (models.PriceLimit, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("date", date.Format(models.DateLayout))

	var row struct {
		Upper float64 `json:"upper"`
		Lower float64 `json:"lower"`
	}
	if err := c.get(ctx, "/price_limits", params, &row); err != nil {
		if errors.Is(err, errNotFound) {
			return models.PriceLimit{}, models.InfraErr(models.CodeFeedDataMissing,
				"no price limits for %s on %s", symbol, date.Format(models.DateLayout))
		}
		return models.PriceLimit{}, err
	}
	return models.PriceLimit{
		Symbol: symbol,
		Date:   models.DateOf(date),
		Upper:  row.Upper,
		Lower:  row.Lower,
	}, nil
}

// ClosePrice returns the close of symbol on date, or the closest preceding
// close within lookback trading days.
func (c *Client) ClosePrice(ctx context.Context, symbol string, date time.Time, lookback int) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("date", date.Format(models.DateLayout))
	params.Set("lookback", fmt.Sprintf("%d", lookback))

	var row struct {
		Close float64 `json:"close"`
	}
	if err := c.get(ctx, "/close", params, &row); err != nil {
		if errors.Is(err, errNotFound) {
			return 0, models.ErrPriceUnavailable
		}
		return 0, err
	}
	return row.Close, nil
}

// Dividends returns the XDXR events of symbol in [start, end].
func (c *Client) Dividends(ctx context.Context, symbol string, start, end time.Time) ([]models.DividendEvent, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("start", start.Format(models.DateLayout))
	params.Set("end", end.Format(models.DateLayout))

	var rows []struct {
		Date          string  `json:"date"`
		CashPerShare  float64 `json:"cash_per_share"`
		ShareRatio    float64 `json:"share_ratio"`
		NewShareRatio float64 `json:"new_share_ratio"`
	}
	if err := c.get(ctx, "/dividends", params, &rows); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	events := make([]models.DividendEvent, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse(models.DateLayout, r.Date)
		if err != nil {
			return nil, models.InfraErr(models.CodeFeedDataMissing, "bad dividend date %q: %v", r.Date, err)
		}
		events = append(events, models.DividendEvent{
			Symbol:        symbol,
			Date:          date.UTC(),
			CashPerShare:  r.CashPerShare,
			ShareRatio:    r.ShareRatio,
			NewShareRatio: r.NewShareRatio,
		})
	}
	return events, nil
}

// AdjustFactor returns the cumulative adjustment factor of symbol on date.
func (c *Client) AdjustFactor(ctx context.Context, symbol string, date time.Time) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("date", date.Format(models.DateLayout))

	var row struct {
		Factor float64 `json:"factor"`
	}
	if err := c.get(ctx, "/factors", params, &row); err != nil {
		if errors.Is(err, errNotFound) {
			return 0, models.InfraErr(models.CodeFeedDataMissing,
				"no adjust factor for %s on %s", symbol, date.Format(models.DateLayout))
		}
		return 0, err
	}
	return row.Factor, nil
}

// TradingCalendar returns the trading days in [start, end], ascending.
func (c *Client) TradingCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	params := url.Values{}
	params.Set("start", start.Format(models.DateLayout))
	params.Set("end", end.Format(models.DateLayout))

	var rows []string
	if err := c.get(ctx, "/calendar", params, &rows); err != nil {
		return nil, err
	}

	days := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(models.DateLayout, r)
		if err != nil {
			return nil, models.InfraErr(models.CodeFeedDataMissing, "bad calendar date %q: %v", r, err)
		}
		days = append(days, d.UTC())
	}
	return days, nil
}
