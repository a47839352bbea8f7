package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/internal/config"
	"emis/internal/entropy"
)

func entropyFixture(t *testing.T) (*EntropyService, *config.Paths) {
	t.Helper()
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	return NewEntropyService(paths, slog.Default()), paths
}

func seedSeries(t *testing.T, paths *config.Paths, market string) {
	t.Helper()
	series := &entropy.Series{
		Market: market,
		Points: []entropy.Point{
			{Date: time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), Value: 0.72},
			{Date: time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), Invalid: true},
			{Date: time.Date(2021, 1, 6, 0, 0, 0, 0, time.UTC), Value: 0.81},
			{Date: time.Date(2021, 1, 7, 0, 0, 0, 0, time.UTC), Value: 0.64},
		},
	}
	require.NoError(t, entropy.SaveCSV(paths.EntropyCSVPath(market), series))
}

func TestGetSeries(t *testing.T) {
	svc, paths := entropyFixture(t)
	seedSeries(t, paths, "us")

	resp, err := svc.GetSeries(context.Background(), "us", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "us", resp.Market)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, 1, resp.Gaps)
	require.Len(t, resp.Points, 4)

	assert.Equal(t, "2021-01-04", resp.Points[0].Date)
	require.NotNil(t, resp.Points[0].Value)
	assert.InDelta(t, 0.72, *resp.Points[0].Value, 1e-12)

	assert.False(t, resp.Points[1].Valid)
	assert.Nil(t, resp.Points[1].Value)
}

func TestGetSeriesDateRange(t *testing.T) {
	svc, paths := entropyFixture(t)
	seedSeries(t, paths, "us")

	from := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 6, 0, 0, 0, 0, time.UTC)
	resp, err := svc.GetSeries(context.Background(), "us", from, to)
	require.NoError(t, err)

	require.Len(t, resp.Points, 2)
	assert.Equal(t, "2021-01-05", resp.Points[0].Date)
	assert.Equal(t, "2021-01-06", resp.Points[1].Date)
}

func TestGetSeriesUnknownMarket(t *testing.T) {
	svc, _ := entropyFixture(t)

	_, err := svc.GetSeries(context.Background(), "atlantis", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestGetSeriesNotComputed(t *testing.T) {
	svc, _ := entropyFixture(t)

	_, err := svc.GetSeries(context.Background(), "japan", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}
