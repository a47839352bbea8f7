package entropy

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "emis/internal/errors"
	"emis/internal/returns"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// syntheticMatrix builds a return matrix of n instruments over rows
// days, each return sqrt(rho)*common + sqrt(1-rho)*idiosyncratic, so
// the population pairwise correlation is rho.
func syntheticMatrix(rng *rand.Rand, rows, n int, rho float64) *returns.Matrix {
	m := &returns.Matrix{Market: "synthetic"}
	for j := 0; j < n; j++ {
		m.Symbols = append(m.Symbols, string(rune('A'+j%26))+string(rune('A'+j/26)))
	}

	base := day(2020, 1, 1)
	for i := 0; i < rows; i++ {
		common := rng.NormFloat64()
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = math.Sqrt(rho)*common + math.Sqrt(1-rho)*rng.NormFloat64()
		}
		m.Dates = append(m.Dates, base.AddDate(0, 0, i))
		m.Values = append(m.Values, row)
	}
	return m
}

func meanEntropy(points []Point) float64 {
	sum, n := 0.0, 0
	for _, p := range points {
		if !p.Invalid {
			sum += p.Value
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func TestNewEngineRejectsTinyWindow(t *testing.T) {
	_, err := NewEngine(1, nil)
	assert.Error(t, err)
}

func TestComputeInsufficientRows(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := syntheticMatrix(rng, 60, 5, 0)

	engine, err := NewEngine(60, nil)
	require.NoError(t, err)

	_, err = engine.Compute(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientHistory))
}

func TestUncorrelatedInstrumentsNearZeroEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := syntheticMatrix(rng, 600, 5, 0)

	engine, err := NewEngine(500, nil)
	require.NoError(t, err)

	series, err := engine.Compute(context.Background(), m)
	require.NoError(t, err)
	require.NotEmpty(t, series.Points)

	// Long window, few instruments: sample correlation is near the
	// identity, so the entropy sits near zero.
	for _, p := range series.Valid() {
		assert.Greater(t, p.Value, 0.0)
		assert.Less(t, p.Value, 0.05)
	}
	assert.Zero(t, series.Gaps())
}

func TestIdenticalInstrumentsMarkInvalid(t *testing.T) {
	// Every instrument carries the same return series, so each window's
	// correlation matrix is singular. The points must be explicit gaps,
	// not zeros, infinities, or a panic.
	m := &returns.Matrix{Market: "degenerate", Symbols: []string{"A", "B", "C"}}
	rng := rand.New(rand.NewSource(3))
	base := day(2021, 6, 1)
	for i := 0; i < 40; i++ {
		v := rng.NormFloat64()
		m.Dates = append(m.Dates, base.AddDate(0, 0, i))
		m.Values = append(m.Values, []float64{v, v, v})
	}

	engine, err := NewEngine(20, nil)
	require.NoError(t, err)

	series, err := engine.Compute(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 20, series.Len())

	for _, p := range series.Points {
		assert.True(t, p.Invalid)
		assert.False(t, math.IsInf(p.Value, 0))
	}
	assert.Empty(t, series.Values())
}

func TestDuplicatedInstrumentMarksInvalid(t *testing.T) {
	// Four independent instruments plus one exact duplicate: the
	// correlation matrix is rank deficient without being the all-ones
	// matrix. Floating-point LU happily reports a positive-sign finite
	// log-determinant here, so the positive-definiteness gate is what
	// keeps these windows out of the series.
	m := &returns.Matrix{Market: "degenerate", Symbols: []string{"A", "B", "C", "D", "E"}}
	rng := rand.New(rand.NewSource(9))
	base := day(2021, 6, 1)
	for i := 0; i < 40; i++ {
		row := make([]float64, 5)
		for j := 0; j < 4; j++ {
			row[j] = rng.NormFloat64()
		}
		row[4] = row[0]
		m.Dates = append(m.Dates, base.AddDate(0, 0, i))
		m.Values = append(m.Values, row)
	}

	engine, err := NewEngine(20, nil)
	require.NoError(t, err)

	series, err := engine.Compute(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 20, series.Len())

	for _, p := range series.Points {
		assert.True(t, p.Invalid, "rank-deficient window at %s must be a gap", p.Date.Format("2006-01-02"))
	}
	assert.Equal(t, 20, series.Gaps())
}

func TestEntropyMonotoneInCorrelation(t *testing.T) {
	// Holding N fixed, entropy must not decrease as pairwise
	// correlation rises from 0 toward 1.
	window := 200
	var last float64 = -1

	for _, rho := range []float64{0, 0.25, 0.5, 0.75, 0.95} {
		rng := rand.New(rand.NewSource(11))
		m := syntheticMatrix(rng, window+1, 5, rho)

		engine, err := NewEngine(window, nil)
		require.NoError(t, err)

		series, err := engine.Compute(context.Background(), m)
		require.NoError(t, err)
		require.Equal(t, 1, series.Len())
		require.False(t, series.Points[0].Invalid)

		assert.Greater(t, series.Points[0].Value, last,
			"entropy must increase with pairwise correlation (rho=%v)", rho)
		last = series.Points[0].Value
	}
}

func TestCorrelationSpikeProducesPeak(t *testing.T) {
	// 50 instruments, 500 days of i.i.d. returns, with perfect pairwise
	// correlation spliced into days 300-330. Windows overlapping the
	// splice must read far above baseline or be flagged degenerate;
	// everything else stays near the i.i.d. baseline.
	const (
		n          = 50
		days       = 500
		window     = 60
		spikeFrom  = 300
		spikeUntil = 330
	)

	rng := rand.New(rand.NewSource(42))
	m := syntheticMatrix(rng, days, n, 0)
	for i := spikeFrom; i < spikeUntil; i++ {
		v := rng.NormFloat64()
		for j := 0; j < n; j++ {
			m.Values[i][j] = v
		}
	}

	engine, err := NewEngine(window, nil)
	require.NoError(t, err)

	series, err := engine.Compute(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, days-window, series.Len())

	// A point stamped at row t covers rows [t-window, t), so the splice
	// touches stamps in (spikeFrom, spikeUntil+window].
	var inside, outside []Point
	for _, p := range series.Points {
		row := spikeRow(m, p.Date)
		if row > spikeFrom && row <= spikeUntil+window {
			inside = append(inside, p)
		} else {
			outside = append(outside, p)
		}
	}
	require.NotEmpty(t, inside)
	require.NotEmpty(t, outside)

	// Baseline windows are plain i.i.d. data: always valid.
	for _, p := range outside {
		assert.False(t, p.Invalid, "baseline point %s must be valid", p.Date.Format("2006-01-02"))
	}

	// The peak lives strictly inside the affected stamps.
	var peakDate time.Time
	peak := math.Inf(-1)
	for _, p := range series.Valid() {
		if p.Value > peak {
			peak = p.Value
			peakDate = p.Date
		}
	}
	peakRow := spikeRow(m, peakDate)
	assert.Greater(t, peakRow, spikeFrom)
	assert.LessOrEqual(t, peakRow, spikeUntil+window)

	assert.Greater(t, meanEntropy(inside), meanEntropy(outside),
		"entropy inside the correlated episode must exceed baseline")
}

func spikeRow(m *returns.Matrix, date time.Time) int {
	for i, d := range m.Dates {
		if d.Equal(date) {
			return i
		}
	}
	return -1
}

func TestComputeHonorsCancellation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := syntheticMatrix(rng, 200, 10, 0)

	engine, err := NewEngine(60, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Compute(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
}
