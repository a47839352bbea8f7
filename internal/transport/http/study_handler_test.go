package http

import (
	"bytes"
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
	"emis/pkg/contracts/domain"
	"emis/pkg/contracts/events"
)

// stubStudyService returns scripted values for each method.
type stubStudyService struct {
	startResp *api.StudyRunResponse
	startErr  error
	startReq  *api.StudyRunRequest
	snapshot  *events.RunSnapshot
	getErr    error
	runs      []*events.RunSnapshot
	result    *domain.StudyResult
	resultErr error
	cancelErr error
}

func (s *stubStudyService) StartRun(ctx context.Context, req *api.StudyRunRequest) (*api.StudyRunResponse, error) {
	s.startReq = req
	return s.startResp, s.startErr
}

func (s *stubStudyService) GetRun(ctx context.Context, runID string) (*events.RunSnapshot, error) {
	return s.snapshot, s.getErr
}

func (s *stubStudyService) ListRuns(ctx context.Context) []*events.RunSnapshot {
	return s.runs
}

func (s *stubStudyService) GetResult(ctx context.Context, runID string) (*domain.StudyResult, error) {
	return s.result, s.resultErr
}

func (s *stubStudyService) GetLatestResult(ctx context.Context) (*domain.StudyResult, error) {
	return s.result, s.resultErr
}

func (s *stubStudyService) CancelRun(ctx context.Context, runID string) error {
	return s.cancelErr
}

func studyServer(t *testing.T, svc *stubStudyService) *httptest.Server {
	t.Helper()
	handler := NewStudyHandler(svc, testLogger(t))
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStartRunAccepted(t *testing.T) {
	svc := &stubStudyService{
		startResp: &api.StudyRunResponse{RunID: "run-1", Status: "pending"},
	}
	srv := studyServer(t, svc)

	resp := postJSON(t, srv.URL+"/run", api.StudyRunRequest{
		Markets: []string{"us"},
		Window:  90,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "pending", body["status"])

	require.NotNil(t, svc.startReq)
	assert.Equal(t, []string{"us"}, svc.startReq.Markets)
	assert.Equal(t, 90, svc.startReq.Window)
}

func TestStartRunValidationFailure(t *testing.T) {
	srv := studyServer(t, &stubStudyService{})

	// Percentile must be strictly below 100
	resp := postJSON(t, srv.URL+"/run", api.StudyRunRequest{ThresholdPercentile: 150})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "/errors/validation", body["type"])
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
}

func TestStartRunBusyMarket(t *testing.T) {
	svc := &stubStudyService{startErr: services.ErrMarketBusy}
	srv := studyServer(t, svc)

	resp := postJSON(t, srv.URL+"/run", api.StudyRunRequest{Markets: []string{"us"}})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "RUN_ACTIVE", body["error_code"])
}

func TestStartRunUnknownMarket(t *testing.T) {
	svc := &stubStudyService{startErr: services.ErrInvalidMarket}
	srv := studyServer(t, svc)

	resp := postJSON(t, srv.URL+"/run", api.StudyRunRequest{Markets: []string{"atlantis"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunSnapshot(t *testing.T) {
	now := time.Now()
	svc := &stubStudyService{
		snapshot: &events.RunSnapshot{RunID: "run-2", Status: "running", Progress: 40, StartedAt: now, UpdatedAt: now},
	}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/runs/run-2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "run-2", body["run_id"])
	assert.Equal(t, float64(40), body["progress"])
}

func TestGetRunNotFound(t *testing.T) {
	svc := &stubStudyService{getErr: services.ErrRunNotFound}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/runs/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "/errors/study/run-not-found", body["type"])
}

func TestListRuns(t *testing.T) {
	svc := &stubStudyService{
		runs: []*events.RunSnapshot{{RunID: "a"}, {RunID: "b"}},
	}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
}

func TestGetResult(t *testing.T) {
	svc := &stubStudyService{
		result: &domain.StudyResult{RunID: "run-3", Window: 60},
	}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/runs/run-3/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "run-3", body["run_id"])
	assert.Equal(t, float64(60), body["window"])
}

func TestGetResultNotReady(t *testing.T) {
	svc := &stubStudyService{resultErr: services.ErrNoResult}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/runs/run-4/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetLatestResult(t *testing.T) {
	svc := &stubStudyService{
		result: &domain.StudyResult{RunID: "run-7", HoldingPeriod: 5},
	}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/results")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "run-7", body["run_id"])
	assert.Equal(t, float64(5), body["holding_period"])
}

func TestGetLatestResultNone(t *testing.T) {
	svc := &stubStudyService{resultErr: services.ErrNoResult}
	srv := studyServer(t, svc)

	resp, err := http.Get(srv.URL + "/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	srv := studyServer(t, &stubStudyService{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/runs/run-5", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "cancelling", body["status"])
}

func TestCancelRunAlreadyFinished(t *testing.T) {
	svc := &stubStudyService{cancelErr: services.ErrRunFinished}
	srv := studyServer(t, svc)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/runs/run-6", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
