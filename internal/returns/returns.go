package returns

import (
	"context"
	"log/slog"
	"math"
	"time"

	apperrors "emis/internal/errors"
	"emis/internal/prices"
)

// Matrix is a date-indexed table of daily log returns, one column per
// instrument, rows in ascending trading-date order. Every cell is
// defined; dates with any missing observation never enter the matrix.
type Matrix struct {
	Market  string
	Symbols []string
	Dates   []time.Time
	// Values[i][j] is the log return of Symbols[j] on Dates[i]
	Values [][]float64
}

// NumRows returns the number of return dates
func (m *Matrix) NumRows() int {
	return len(m.Dates)
}

// NumCols returns the number of instruments
func (m *Matrix) NumCols() int {
	return len(m.Symbols)
}

// Window returns the rows [end-w, end) as a flat row-major slice
// suitable for a w×NumCols dense matrix. It panics when the bounds are
// out of range; callers own the window arithmetic.
func (m *Matrix) Window(end, w int) []float64 {
	n := m.NumCols()
	flat := make([]float64, 0, w*n)
	for i := end - w; i < end; i++ {
		flat = append(flat, m.Values[i]...)
	}
	return flat
}

// Compute aligns the price table on its common trading dates and takes
// daily log returns, r(t) = ln(price(t)/price(t-1)). The matrix spans
// one row fewer than the common dates. It fails with
// InsufficientHistory when fewer than window+1 common dates exist.
func Compute(ctx context.Context, market string, table *prices.Table, window int, logger *slog.Logger) (*Matrix, error) {
	if logger == nil {
		logger = slog.Default()
	}

	common := commonRows(table)
	if len(common) < window+1 {
		return nil, apperrors.NewInsufficientHistory(market, window+1, len(common))
	}

	logger.DebugContext(ctx, "aligned price table",
		slog.String("market", market),
		slog.Int("instruments", table.NumCols()),
		slog.Int("total_dates", table.NumRows()),
		slog.Int("common_dates", len(common)))

	n := table.NumCols()
	m := &Matrix{
		Market:  market,
		Symbols: append([]string(nil), table.Symbols...),
		Dates:   make([]time.Time, 0, len(common)-1),
		Values:  make([][]float64, 0, len(common)-1),
	}

	for k := 1; k < len(common); k++ {
		prev := table.Values[common[k-1]]
		curr := table.Values[common[k]]
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = math.Log(curr[j] / prev[j])
		}
		m.Dates = append(m.Dates, table.Dates[common[k]])
		m.Values = append(m.Values, row)
	}

	return m, nil
}

// commonRows returns the table row indices where every instrument has
// an observation.
func commonRows(table *prices.Table) []int {
	var rows []int
	for i, row := range table.Values {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, i)
		}
	}
	return rows
}
