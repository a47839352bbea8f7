package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"emis/internal/config"
	apperrors "emis/internal/errors"
)

// Source fetches daily closing prices for one instrument.
type Source interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) (*Series, error)
}

// ChartClient fetches daily history from the chart API. Requests are
// rate limited and retried with exponential backoff; a response with no
// usable closes is an error, not an empty series.
type ChartClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// chartResponse mirrors the chart API envelope
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote    []chartQuote    `json:"quote"`
		AdjClose []chartAdjClose `json:"adjclose"`
	} `json:"indicators"`
}

type chartQuote struct {
	Close []*float64 `json:"close"`
}

type chartAdjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// NewChartClient creates a chart API client from source configuration
func NewChartClient(cfg config.SourceConfig, logger *slog.Logger) *ChartClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChartClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With(slog.String("component", "chart_client")),
	}
}

// FetchDaily fetches the adjusted daily closes for symbol in [start, end).
func (c *ChartClient) FetchDaily(ctx context.Context, symbol string, start, end time.Time) (*Series, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		series, err := c.fetchOnce(ctx, symbol, start, end)
		if err == nil {
			return series, nil
		}
		lastErr = err

		c.logger.WarnContext(ctx, "chart fetch failed",
			slog.String("symbol", symbol),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxRetries),
			slog.String("error", err.Error()))

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, apperrors.NewDataUnavailable(symbol, lastErr)
}

// fetchOnce performs a single chart API request
func (c *ChartClient) fetchOnce(ctx context.Context, symbol string, start, end time.Time) (*Series, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "div,split")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "emis-entropy-study/1.2")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("chart request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apperrors.NewNetworkError("read chart response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API status %d for %s", resp.StatusCode, symbol)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.NewParsingError("decode chart response", err)
	}

	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s (%s)",
			symbol, parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart API returned no result for %s", symbol)
	}

	result := parsed.Chart.Result[0]
	closes := pickCloses(result)
	if closes == nil {
		return nil, fmt.Errorf("chart API returned no close data for %s", symbol)
	}
	if len(result.Timestamp) != len(closes) {
		return nil, fmt.Errorf("chart API timestamp/close length mismatch for %s: %d vs %d",
			symbol, len(result.Timestamp), len(closes))
	}

	series := &Series{Symbol: symbol}
	for i, ts := range result.Timestamp {
		if closes[i] == nil || math.IsNaN(*closes[i]) || *closes[i] <= 0 {
			continue
		}
		series.Dates = append(series.Dates, Day(time.Unix(ts, 0)))
		series.Closes = append(series.Closes, *closes[i])
	}

	if series.Len() == 0 {
		return nil, fmt.Errorf("chart API returned only empty closes for %s", symbol)
	}

	c.logger.DebugContext(ctx, "chart fetch succeeded",
		slog.String("symbol", symbol),
		slog.Int("observations", series.Len()),
		slog.String("first", series.First().Format("2006-01-02")),
		slog.String("last", series.Last().Format("2006-01-02")))

	return series, nil
}

// pickCloses prefers the adjusted close block and falls back to the raw
// quote closes when the source omits it.
func pickCloses(result chartResult) []*float64 {
	if adj := result.Indicators.AdjClose; len(adj) > 0 && len(adj[0].AdjClose) > 0 {
		return adj[0].AdjClose
	}
	if quote := result.Indicators.Quote; len(quote) > 0 && len(quote[0].Close) > 0 {
		return quote[0].Close
	}
	return nil
}
