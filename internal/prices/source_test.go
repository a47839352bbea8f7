package prices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/internal/config"
	apperrors "emis/internal/errors"
)

func testSourceConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		RateLimit:   1000,
		RateBurst:   100,
		Concurrency: 1,
	}
}

// chartBody renders the chart API envelope for a run of consecutive
// daily closes starting at start.
func chartBody(start time.Time, closes []string) string {
	var stamps []string
	for i := range closes {
		stamps = append(stamps, fmt.Sprintf("%d", start.AddDate(0, 0, i).Unix()))
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{"close":[%s]}],"adjclose":[{"adjclose":[%s]}]}}],"error":null}}`,
		strings.Join(stamps, ","), strings.Join(closes, ","), strings.Join(closes, ","))
}

func TestChartClientRetriesServerErrors(t *testing.T) {
	// Two 500s followed by a 200: the client must back off, retry, and
	// come back with the series as if nothing happened.
	start := day(2020, 1, 2)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))

		if calls.Add(1) < 3 {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartBody(start, []string{"100.5", "101.25", "99.75"}))
	}))
	defer srv.Close()

	client := NewChartClient(testSourceConfig(srv.URL), nil)

	series, err := client.FetchDaily(context.Background(), "AAPL", start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	require.Equal(t, 3, series.Len())
	assert.Equal(t, "AAPL", series.Symbol)
	assert.Equal(t, []float64{100.5, 101.25, 99.75}, series.Closes)
	assert.Equal(t, day(2020, 1, 2), series.First())
}

func TestChartClientExhaustedRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewChartClient(testSourceConfig(srv.URL), nil)

	_, err := client.FetchDaily(context.Background(), "MSFT", day(2020, 1, 2), day(2020, 2, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDataUnavailable))
	assert.Equal(t, int32(3), calls.Load(), "must stop after max retries")

	var unavailable *apperrors.DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "MSFT", unavailable.Symbol)
}

func TestChartClientAPIErrorEnvelope(t *testing.T) {
	// A well-formed envelope carrying an error block is a hard failure
	// for the attempt, surfaced as data-unavailable after retries.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	client := NewChartClient(testSourceConfig(srv.URL), nil)

	_, err := client.FetchDaily(context.Background(), "GONE", day(2020, 1, 2), day(2020, 2, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDataUnavailable))
	assert.Contains(t, err.Error(), "delisted")
}

func TestChartClientSkipsUnusableCloses(t *testing.T) {
	// Nulls, zeros, and negatives in the close array are dropped rather
	// than poisoning the series.
	start := day(2020, 1, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(start, []string{"100", "null", "0", "-3", "104"}))
	}))
	defer srv.Close()

	client := NewChartClient(testSourceConfig(srv.URL), nil)

	series, err := client.FetchDaily(context.Background(), "AAPL", start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, []float64{100, 104}, series.Closes)
	assert.Equal(t, day(2020, 1, 6), series.Last())
}

func TestChartClientPrefersAdjustedCloses(t *testing.T) {
	start := day(2020, 1, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d],"indicators":{"quote":[{"close":[50,51]}],"adjclose":[{"adjclose":[25,25.5]}]}}],"error":null}}`,
			start.Unix(), start.AddDate(0, 0, 1).Unix())
	}))
	defer srv.Close()

	client := NewChartClient(testSourceConfig(srv.URL), nil)

	series, err := client.FetchDaily(context.Background(), "SPLT", start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, []float64{25, 25.5}, series.Closes)
}

func TestChartClientHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testSourceConfig(srv.URL)
	cfg.RetryDelay = time.Hour

	client := NewChartClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchDaily(ctx, "AAPL", day(2020, 1, 2), day(2020, 2, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
