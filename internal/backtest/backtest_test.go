package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/pkg/contracts/domain"

	"emis/internal/entropy"
	"emis/internal/prices"
	"emis/internal/signal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// benchmarkOf builds a benchmark series with one row per calendar day
func benchmarkOf(start time.Time, closes ...float64) *prices.Series {
	s := &prices.Series{Symbol: "^GSPC"}
	for i, c := range closes {
		s.Dates = append(s.Dates, start.AddDate(0, 0, i))
		s.Closes = append(s.Closes, c)
	}
	return s
}

func enterAt(dates ...time.Time) []signal.Signal {
	var out []signal.Signal
	for _, d := range dates {
		out = append(out, signal.Signal{Date: d, Direction: signal.Enter})
	}
	return out
}

func TestBuildTradesOverlapping(t *testing.T) {
	start := day(2021, 3, 1)
	bench := benchmarkOf(start, 100, 101, 102, 103, 104, 105, 106)

	signals := enterAt(start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2))
	trades, err := BuildTrades(signals, bench, Options{HoldingPeriod: 3, Mode: domain.TradeModeOverlapping})
	require.NoError(t, err)

	// Every signal trades, holding periods overlap freely.
	require.Len(t, trades, 3)
	assert.Equal(t, start.AddDate(0, 0, 3), trades[0].ExitDate)
	assert.InDelta(t, 103.0/100.0-1, trades[0].Return, 1e-12)
	assert.InDelta(t, 104.0/101.0-1, trades[1].Return, 1e-12)
	assert.InDelta(t, 105.0/102.0-1, trades[2].Return, 1e-12)
}

func TestBuildTradesDiscardsIncompleteExit(t *testing.T) {
	start := day(2021, 3, 1)
	bench := benchmarkOf(start, 100, 101, 102, 103)

	// Exit row would be index 5 with only 4 rows of data: discarded.
	signals := enterAt(start.AddDate(0, 0, 2))
	trades, err := BuildTrades(signals, bench, Options{HoldingPeriod: 3, Mode: domain.TradeModeOverlapping})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestBuildTradesSkipsUnmatchedDates(t *testing.T) {
	start := day(2021, 3, 1)
	bench := benchmarkOf(start, 100, 101, 102, 103, 104)

	// A signal date missing from the benchmark calendar cannot execute.
	signals := enterAt(start.AddDate(0, 0, 1).Add(12 * time.Hour))
	trades, err := BuildTrades(signals, bench, Options{HoldingPeriod: 1, Mode: domain.TradeModeOverlapping})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestBuildTradesNonOverlapping(t *testing.T) {
	start := day(2021, 3, 1)
	bench := benchmarkOf(start, 100, 101, 102, 103, 104, 105, 106, 107)

	signals := enterAt(
		start,                  // trades, exits at +3
		start.AddDate(0, 0, 1), // inside the open position: skipped
		start.AddDate(0, 0, 3), // on the exit date: still skipped
		start.AddDate(0, 0, 4), // after the exit: trades
	)
	trades, err := BuildTrades(signals, bench, Options{HoldingPeriod: 3, Mode: domain.TradeModeNonOverlapping})
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.Equal(t, start, trades[0].EntryDate)
	assert.Equal(t, start.AddDate(0, 0, 4), trades[1].EntryDate)
}

func TestBuildTradesWeekly(t *testing.T) {
	start := day(2021, 3, 1) // a Monday
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bench := benchmarkOf(start, closes...)

	// Signals every day for two weeks; only Mondays outside an open
	// position may enter.
	var dates []time.Time
	for i := 0; i < 14; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	trades, err := BuildTrades(enterAt(dates...), bench, Options{
		HoldingPeriod: 3,
		Mode:          domain.TradeModeWeekly,
		EntryWeekday:  time.Monday,
	})
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.Equal(t, time.Monday, trades[0].EntryDate.Weekday())
	assert.Equal(t, time.Monday, trades[1].EntryDate.Weekday())
	assert.Equal(t, start, trades[0].EntryDate)
	assert.Equal(t, start.AddDate(0, 0, 7), trades[1].EntryDate)
}

func TestBuildTradesDeterministic(t *testing.T) {
	start := day(2021, 3, 1)
	bench := benchmarkOf(start, 100, 99, 98, 103, 104, 105)
	signals := enterAt(start.AddDate(0, 0, 1))

	opts := Options{HoldingPeriod: 2, Mode: domain.TradeModeOverlapping}
	first, err := BuildTrades(signals, bench, opts)
	require.NoError(t, err)
	second, err := BuildTrades(signals, bench, opts)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.InDelta(t, 103.0/99.0-1, first[0].Return, 1e-12)
}

func TestBuildTradesRejectsBadOptions(t *testing.T) {
	bench := benchmarkOf(day(2021, 3, 1), 100, 101)

	_, err := BuildTrades(nil, bench, Options{HoldingPeriod: 0, Mode: domain.TradeModeOverlapping})
	assert.Error(t, err)

	_, err = BuildTrades(nil, bench, Options{HoldingPeriod: 1, Mode: domain.TradeMode("daily")})
	assert.Error(t, err)
}

func tradesWithReturns(rets ...float64) []Trade {
	var out []Trade
	for _, r := range rets {
		out = append(out, Trade{Return: r})
	}
	return out
}

func TestComputeStats(t *testing.T) {
	stats := Compute(tradesWithReturns(0.10, 0.05, -0.02, 0.08, 0.02, -0.01, 0.04, 0.06))

	assert.Equal(t, 8, stats.Trades)
	assert.Equal(t, 6, stats.Wins)
	assert.InDelta(t, 0.75, stats.WinRate, 1e-12)
	assert.InDelta(t, 0.04, stats.MeanReturn, 1e-12)
	assert.InDelta(t, -0.02, stats.MinReturn, 1e-12)
	assert.InDelta(t, 0.10, stats.MaxReturn, 1e-12)

	// P[X >= 6] for X ~ Binomial(8, 0.5) = (28+8+1)/256
	assert.InDelta(t, 37.0/256.0, stats.PValueBinomial, 1e-9)

	assert.Greater(t, stats.TStat, 0.0)
	assert.Less(t, stats.PValueT, 0.05)
	assert.Less(t, stats.CILow, stats.MeanReturn)
	assert.Greater(t, stats.CIHigh, stats.MeanReturn)
	assert.Equal(t, "", stats.Significance)
}

func TestComputeStatsAllWins(t *testing.T) {
	rets := make([]float64, 12)
	for i := range rets {
		rets[i] = 0.01 + float64(i)*0.001
	}
	stats := Compute(tradesWithReturns(rets...))

	assert.Equal(t, 12, stats.Wins)
	assert.InDelta(t, 1.0, stats.WinRate, 1e-12)
	// P[X >= 12] = 2^-12
	assert.InDelta(t, 1.0/4096.0, stats.PValueBinomial, 1e-12)
	assert.Equal(t, "***", stats.Significance)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := Compute(nil)

	assert.Zero(t, stats.Trades)
	assert.Zero(t, stats.WinRate)
	assert.Equal(t, 1.0, stats.PValueBinomial)
	assert.Equal(t, 1.0, stats.PValueT)
	assert.Equal(t, "", stats.Significance)
}

func TestComputeStatsSingleTrade(t *testing.T) {
	stats := Compute(tradesWithReturns(0.05))

	assert.Equal(t, 1, stats.Trades)
	assert.InDelta(t, 0.5, stats.PValueBinomial, 1e-12)
	assert.Equal(t, 1.0, stats.PValueT)
	assert.Zero(t, stats.StdReturn)
}

func TestSignificanceStars(t *testing.T) {
	assert.Equal(t, "***", SignificanceStars(0.0005))
	assert.Equal(t, "**", SignificanceStars(0.005))
	assert.Equal(t, "*", SignificanceStars(0.03))
	assert.Equal(t, "", SignificanceStars(0.2))
}

func TestQuantileBuckets(t *testing.T) {
	start := day(2021, 3, 1)
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bench := benchmarkOf(start, closes...)

	series := &entropy.Series{Market: "us"}
	for i := 0; i < 10; i++ {
		series.Points = append(series.Points, entropy.Point{
			Date:  start.AddDate(0, 0, i),
			Value: float64(i + 1),
		})
	}
	series.Points = append(series.Points, entropy.Point{Date: start.AddDate(0, 0, 10), Invalid: true})

	buckets := QuantileBuckets("us", series, bench, 5)
	require.Len(t, buckets, 3)

	assert.Equal(t, "low", buckets[0].Band)
	assert.Equal(t, "middle", buckets[1].Band)
	assert.Equal(t, "high", buckets[2].Band)

	// 10 valid points split 20/60/20 around the 2.8 and 8.2 edges.
	assert.Equal(t, 10, buckets[0].Samples+buckets[1].Samples+buckets[2].Samples)
	assert.Equal(t, 2, buckets[0].Samples)
	assert.Equal(t, 6, buckets[1].Samples)
	assert.Equal(t, 2, buckets[2].Samples)

	// Rising benchmark: every forward return is positive.
	for _, b := range buckets {
		assert.Greater(t, b.MeanReturn, 0.0)
	}
	assert.Equal(t, "us", buckets[0].Market)
}
