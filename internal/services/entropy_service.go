package services

import (
	"context"
	"log/slog"
	"time"

	"emis/internal/config"
	"emis/internal/entropy"
	"emis/internal/infrastructure"
	api "emis/pkg/contracts/api/v1"
)

// EntropyService serves computed entropy series from the cache
type EntropyService struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewEntropyService creates an entropy series reader over the cache
func NewEntropyService(paths *config.Paths, logger *slog.Logger) *EntropyService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &EntropyService{
		paths:  paths,
		logger: logger.With(slog.String("component", "entropy_service")),
	}
}

// GetSeries loads a market's cached entropy series, optionally clipped
// to [from, to]. Zero times leave the corresponding bound open.
func (s *EntropyService) GetSeries(ctx context.Context, market string, from, to time.Time) (*api.EntropySeriesResponse, error) {
	if _, err := config.GetMarket(market); err != nil {
		return nil, ErrInvalidMarket
	}

	path := s.paths.EntropyCSVPath(market)
	if !config.FileExists(path) {
		return nil, ErrSeriesNotFound
	}

	series, err := entropy.LoadCSV(path, market)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load entropy series",
			slog.String("market", market),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, err
	}

	if !from.IsZero() {
		series = series.From(from)
	}
	if !to.IsZero() {
		// Before is exclusive; include the end date itself.
		series = series.Before(to.AddDate(0, 0, 1))
	}

	resp := &api.EntropySeriesResponse{
		Market: market,
		Count:  series.Len(),
		Gaps:   series.Gaps(),
		Points: make([]api.EntropyPoint, 0, series.Len()),
	}
	for _, p := range series.Points {
		point := api.EntropyPoint{
			Date:  p.Date.Format("2006-01-02"),
			Valid: !p.Invalid,
		}
		if !p.Invalid {
			v := p.Value
			point.Value = &v
		}
		resp.Points = append(resp.Points, point)
	}
	return resp, nil
}
