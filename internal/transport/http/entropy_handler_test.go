package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/internal/services"
	api "emis/pkg/contracts/api/v1"
)

type stubEntropyService struct {
	series *api.EntropySeriesResponse
	err    error
	market string
	from   time.Time
	to     time.Time
}

func (s *stubEntropyService) GetSeries(ctx context.Context, market string, from, to time.Time) (*api.EntropySeriesResponse, error) {
	s.market, s.from, s.to = market, from, to
	return s.series, s.err
}

func entropyServer(t *testing.T, svc *stubEntropyService) *httptest.Server {
	t.Helper()
	handler := NewEntropyHandler(svc, testLogger(t))
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestGetSeriesOK(t *testing.T) {
	value := 0.42
	svc := &stubEntropyService{
		series: &api.EntropySeriesResponse{
			Market: "us",
			Count:  1,
			Points: []api.EntropyPoint{{Date: "2021-03-01", Value: &value, Valid: true}},
		},
	}
	srv := entropyServer(t, svc)

	resp, err := http.Get(srv.URL + "/us?from=2021-01-01&to=2021-06-30")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var body api.EntropySeriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "us", body.Market)
	require.Len(t, body.Points, 1)
	assert.InDelta(t, 0.42, *body.Points[0].Value, 1e-12)

	assert.Equal(t, "us", svc.market)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), svc.from)
	assert.Equal(t, time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC), svc.to)
}

func TestGetSeriesBadDate(t *testing.T) {
	srv := entropyServer(t, &stubEntropyService{})

	resp, err := http.Get(srv.URL + "/us?from=01-01-2021")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSeriesUnknownMarket(t *testing.T) {
	svc := &stubEntropyService{err: services.ErrInvalidMarket}
	srv := entropyServer(t, svc)

	resp, err := http.Get(srv.URL + "/atlantis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSeriesNotComputed(t *testing.T) {
	svc := &stubEntropyService{err: services.ErrSeriesNotFound}
	srv := entropyServer(t, svc)

	resp, err := http.Get(srv.URL + "/us")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/errors/not-found", body["type"])
}
