package http

import (
	"context"
	"time"

	api "emis/pkg/contracts/api/v1"
	"emis/pkg/contracts/domain"
	"emis/pkg/contracts/events"
)

// StudyService is the run orchestration surface the handlers depend on
type StudyService interface {
	StartRun(ctx context.Context, req *api.StudyRunRequest) (*api.StudyRunResponse, error)
	GetRun(ctx context.Context, runID string) (*events.RunSnapshot, error)
	ListRuns(ctx context.Context) []*events.RunSnapshot
	GetResult(ctx context.Context, runID string) (*domain.StudyResult, error)
	GetLatestResult(ctx context.Context) (*domain.StudyResult, error)
	CancelRun(ctx context.Context, runID string) error
}

// EntropyService serves computed entropy series
type EntropyService interface {
	GetSeries(ctx context.Context, market string, from, to time.Time) (*api.EntropySeriesResponse, error)
}

// DataService lists and resolves pipeline artifacts
type DataService interface {
	ListFiles(ctx context.Context) ([]api.DataFileInfo, error)
	ResolveFilePath(ctx context.Context, kind, name string) (string, error)
}
