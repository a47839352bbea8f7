package entropy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "emis/internal/errors"
	"emis/internal/returns"
)

// Engine computes the rolling entropy series of a return matrix.
type Engine struct {
	window int
	logger *slog.Logger
}

// NewEngine creates an engine for the given window length
func NewEngine(window int, logger *slog.Logger) (*Engine, error) {
	if window < 2 {
		return nil, fmt.Errorf("entropy window must be at least 2, got %d", window)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		window: window,
		logger: logger.With(slog.String("component", "entropy_engine")),
	}, nil
}

// Window returns the configured window length
func (e *Engine) Window() int {
	return e.window
}

// Compute stamps one entropy point per return date t >= window, each
// from the window rows strictly before t. A degenerate window becomes
// an invalid point and the series continues; too few return rows for a
// single window fails with InsufficientHistory.
func (e *Engine) Compute(ctx context.Context, m *returns.Matrix) (*Series, error) {
	start := time.Now()
	w := e.window
	n := m.NumCols()

	if m.NumRows() <= w {
		return nil, apperrors.NewInsufficientHistory(m.Market, w+1, m.NumRows())
	}

	series := &Series{Market: m.Market}
	corr := mat.NewSymDense(n, nil)

	for t := w; t < m.NumRows(); t++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("entropy computation cancelled: %w", ctx.Err())
		default:
		}

		slice := mat.NewDense(w, n, m.Window(t, w))
		stat.CorrelationMatrix(corr, slice, nil)

		point := Point{Date: m.Dates[t]}

		// Cholesky succeeds exactly when C is positive definite; a
		// rank-deficient window fails to factorize instead of leaking a
		// huge finite log-determinant through an LU sign check.
		var chol mat.Cholesky
		if chol.Factorize(corr) {
			point.Value = -chol.LogDet() / float64(n)
		} else {
			degenerate := apperrors.NewDegenerateCorrelation(m.Dates[t])
			e.logger.WarnContext(ctx, "entropy gap",
				slog.String("market", m.Market),
				slog.String("date", m.Dates[t].Format("2006-01-02")),
				slog.String("reason", degenerate.Error()))
			point.Invalid = true
		}

		series.Points = append(series.Points, point)
	}

	e.logger.InfoContext(ctx, "entropy series computed",
		slog.String("market", m.Market),
		slog.Int("window", w),
		slog.Int("instruments", n),
		slog.Int("points", series.Len()),
		slog.Int("gaps", series.Gaps()),
		slog.Duration("duration", time.Since(start)))

	return series, nil
}
