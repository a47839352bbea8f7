package study

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/pkg/contracts/domain"

	"emis/internal/config"
	apperrors "emis/internal/errors"
	"emis/internal/prices"
)

// fakeSource serves canned series and counts fetches per symbol.
type fakeSource struct {
	mu    sync.Mutex
	data  map[string]*prices.Series
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		data:  make(map[string]*prices.Series),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) add(s *prices.Series) {
	f.data[s.Symbol] = s
}

func (f *fakeSource) FetchDaily(ctx context.Context, symbol string, start, end time.Time) (*prices.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++

	s, ok := f.data[symbol]
	if !ok {
		return nil, apperrors.NewDataUnavailable(symbol, nil)
	}
	return &prices.Series{
		Symbol: s.Symbol,
		Dates:  append([]time.Time(nil), s.Dates...),
		Closes: append([]float64(nil), s.Closes...),
	}, nil
}

// randomWalk builds a daily price series as a geometric random walk
// with a deterministic seed.
func randomWalk(symbol string, start time.Time, days int, seed int64) *prices.Series {
	rng := rand.New(rand.NewSource(seed))
	s := &prices.Series{Symbol: symbol}

	price := 100.0
	for i := 0; i < days; i++ {
		price *= math.Exp(0.01 * rng.NormFloat64())
		s.Dates = append(s.Dates, start.AddDate(0, 0, i))
		s.Closes = append(s.Closes, price)
	}
	return s
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Study.Window = 10
	cfg.Study.ThresholdPercentile = 90
	cfg.Study.HoldingPeriod = 5
	cfg.Study.StartDate = "2020-01-01"
	cfg.Study.TrainEndDate = "2020-10-01"
	cfg.Study.TradeMode = string(domain.TradeModeOverlapping)
	cfg.Study.MinUniverse = 3
	cfg.Study.MinHistoryRows = 100
	cfg.Study.StartSlackDays = 30
	cfg.Source.Concurrency = 2
	return cfg
}

func testMarket(id, benchmark string, tickers ...string) config.Market {
	return config.Market{ID: id, Name: id, Benchmark: benchmark, Tickers: tickers}
}

// testPipeline wires a pipeline over a memory store and fake source
// seeded with the given markets plus the volatility index.
func testPipeline(t *testing.T, cfg *config.Config, markets []config.Market) (*Pipeline, *fakeSource) {
	t.Helper()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	source := newFakeSource()

	seed := int64(1)
	for _, m := range markets {
		for _, sym := range m.Tickers {
			source.add(randomWalk(sym, start, 400, seed))
			seed++
		}
		source.add(randomWalk(m.Benchmark, start, 400, seed))
		seed++
	}
	source.add(randomWalk(config.VolatilitySymbol, start, 400, seed))

	paths := config.PathsFrom(t.TempDir())
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	cache := prices.NewCache(prices.NewMemoryStore(), source, paths, cfg, logger)

	return NewPipeline(cache, paths, logger), source
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRunProducesCompleteResult(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{
		testMarket("beta", "^BETA", "B1", "B2", "B3", "B4"),
		testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4"),
	}
	pipeline, _ := testPipeline(t, cfg, markets)

	result, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 10, result.Window)
	assert.Equal(t, "2020-10-01", result.TrainEnd)
	assert.Empty(t, result.Failures)

	require.Len(t, result.Markets, 2)
	assert.Equal(t, "alpha", result.Markets[0].Market, "markets sorted by identifier")
	assert.Equal(t, "beta", result.Markets[1].Market)

	for _, mr := range result.Markets {
		require.Len(t, mr.Rows, 2)
		assert.Equal(t, domain.StrategyEntropy, mr.Rows[0].Strategy)
		assert.Equal(t, domain.StrategyVolatility, mr.Rows[1].Strategy)
		assert.Equal(t, mr.Threshold, mr.Rows[0].Threshold)

		require.Len(t, mr.Sensitivity, len(SensitivityPercentiles))
		for i, pct := range SensitivityPercentiles {
			assert.Equal(t, pct, mr.Sensitivity[i].Percentile)
		}
		// Higher calibration percentiles give higher thresholds.
		for i := 1; i < len(mr.Sensitivity); i++ {
			assert.GreaterOrEqual(t, mr.Sensitivity[i].Threshold, mr.Sensitivity[i-1].Threshold)
		}

		require.Len(t, mr.Quantiles, 3)
		assert.Len(t, mr.Instruments, 4)
		assert.False(t, mr.EntropyFrom.IsZero())
		assert.True(t, mr.EntropyTo.After(mr.EntropyFrom))
	}
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4")}
	pipeline, _ := testPipeline(t, cfg, markets)

	first, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)

	// The second run hits the price and entropy caches instead of
	// recomputing, and must land on the same numbers.
	second, err := pipeline.Run(context.Background(), "run-2", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)

	require.Len(t, second.Markets, 1)
	assert.Equal(t, first.Markets[0].Threshold, second.Markets[0].Threshold)
	assert.Equal(t, first.Markets[0].Rows, second.Markets[0].Rows)
	assert.Equal(t, first.Markets[0].Sensitivity, second.Markets[0].Sensitivity)
}

func TestRunEntropyCacheHit(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4")}
	pipeline, source := testPipeline(t, cfg, markets)

	_, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls["A1"])

	_, err = pipeline.Run(context.Background(), "run-2", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls["A1"], "cached prices served without refetch")
}

func TestRunRecordsMarketFailure(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{
		testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4"),
		testMarket("ghost", "^GHOST", "G1", "G2", "G3"),
	}
	pipeline, source := testPipeline(t, cfg, markets)

	// The ghost market's instruments vanish from the source, so its
	// universe collapses while the benchmark still resolves.
	delete(source.data, "G1")
	delete(source.data, "G2")
	delete(source.data, "G3")

	result, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)

	require.Len(t, result.Markets, 1)
	assert.Equal(t, "alpha", result.Markets[0].Market)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ghost", result.Failures[0].Market)
	assert.Contains(t, result.Failures[0].Error, "universe")
}

func TestRunDropsMarketWithoutTrainingHistory(t *testing.T) {
	cfg := testConfig()
	// The boundary predates the first entropy stamp (window rows into
	// the data), so calibration has nothing to train on. The market
	// must land in the failure rows instead of failing the run.
	cfg.Study.TrainEndDate = "2020-01-05"
	markets := []config.Market{testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4")}
	pipeline, _ := testPipeline(t, cfg, markets)

	result, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.NoError(t, err)

	assert.Empty(t, result.Markets)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "alpha", result.Failures[0].Market)
	assert.Contains(t, result.Failures[0].Error, "calibrate")
}

func TestRunVolatilityFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4")}
	pipeline, source := testPipeline(t, cfg, markets)

	delete(source.data, config.VolatilitySymbol)

	_, err := pipeline.Run(context.Background(), "run-1", markets, ParamsFromConfig(cfg))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}

func TestRunZeroTrainBoundaryRejected(t *testing.T) {
	cfg := testConfig()
	markets := []config.Market{testMarket("alpha", "^ALPHA", "A1", "A2", "A3", "A4")}
	pipeline, _ := testPipeline(t, cfg, markets)

	params := ParamsFromConfig(cfg)
	params.TrainEnd = time.Time{}

	_, err := pipeline.Run(context.Background(), "run-1", markets, params)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLookaheadViolation)
}

func TestLevelSource(t *testing.T) {
	series := &prices.Series{
		Symbol: "^VIX",
		Dates: []time.Time{
			time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC),
		},
		Closes: []float64{14.2, 28.9},
	}

	src := LevelSource{Series: series}
	require.Equal(t, 2, src.Len())

	date, value, valid := src.At(1)
	assert.True(t, date.Equal(series.Dates[1]))
	assert.Equal(t, 28.9, value)
	assert.True(t, valid)
}
