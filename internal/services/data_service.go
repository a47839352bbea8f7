package services

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"emis/internal/config"
	"emis/internal/infrastructure"
	api "emis/pkg/contracts/api/v1"
)

// File kinds exposed by the data service
const (
	FileKindCache  = "cache"
	FileKindReport = "report"
)

// DataService lists and resolves the artifacts the pipeline produces:
// cached price and entropy CSVs, and the exported report files.
type DataService struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewDataService creates a data service over the configured paths
func NewDataService(paths *config.Paths, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &DataService{
		paths:  paths,
		logger: logger.With(slog.String("component", "data_service")),
	}
}

// ListFiles returns all cache and report artifacts, reports first,
// newest first within each kind.
func (s *DataService) ListFiles(ctx context.Context) ([]api.DataFileInfo, error) {
	var files []api.DataFileInfo

	reports, err := s.listDir(ctx, s.paths.ReportsDir, FileKindReport)
	if err != nil {
		return nil, err
	}
	files = append(files, reports...)

	cached, err := s.listDir(ctx, s.paths.CacheDir, FileKindCache)
	if err != nil {
		return nil, err
	}
	files = append(files, cached...)

	return files, nil
}

func (s *DataService) listDir(ctx context.Context, dir, kind string) ([]api.DataFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "failed to list data directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return nil, err
	}

	files := make([]api.DataFileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, api.DataFileInfo{
			Name:     entry.Name(),
			Kind:     kind,
			SizeKB:   (info.Size() + 1023) / 1024,
			Modified: info.ModTime().Format(time.RFC3339),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified > files[j].Modified
	})
	return files, nil
}

// ResolveFilePath maps a (kind, name) pair onto the filesystem path of
// an existing artifact. Names carrying path separators or traversal
// segments are rejected before touching the filesystem.
func (s *DataService) ResolveFilePath(ctx context.Context, kind, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}

	var path string
	switch kind {
	case FileKindCache:
		path = s.paths.GetCachePath(name)
	case FileKindReport:
		path = s.paths.GetReportPath(name)
	default:
		return "", ErrInvalidFileKind
	}

	if !config.FileExists(path) {
		return "", ErrFileNotFound
	}
	return path, nil
}
