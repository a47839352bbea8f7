package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all application paths.
// This is the single source of truth for file locations: the fetcher,
// entropy-report, study and web binaries all resolve artifacts through it.
type Paths struct {
	ExecutableDir string
	DataDir       string
	CacheDir      string
	ReportsDir    string
	LogsDir       string

	// Well-known report files
	ResultsCSV  string
	ResultsXLSX string
}

// GetPaths returns the application paths relative to the executable
// location, so binaries behave identically regardless of the working
// directory they are launched from.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return PathsFrom(filepath.Dir(exe)), nil
}

// PathsFrom builds the path set rooted at the given base directory.
// Layout:
//
//	base/
//	  ├── data/
//	  │   ├── cache/     (price and entropy series CSVs)
//	  │   └── reports/   (study results CSV/XLSX)
//	  └── logs/
func PathsFrom(baseDir string) *Paths {
	dataDir := filepath.Join(baseDir, "data")
	reportsDir := filepath.Join(dataDir, "reports")

	return &Paths{
		ExecutableDir: baseDir,
		DataDir:       dataDir,
		CacheDir:      filepath.Join(dataDir, "cache"),
		ReportsDir:    reportsDir,
		LogsDir:       filepath.Join(baseDir, "logs"),

		ResultsCSV:  filepath.Join(reportsDir, "study_results.csv"),
		ResultsXLSX: filepath.Join(reportsDir, "study_results.xlsx"),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.CacheDir,
		p.ReportsDir,
		p.LogsDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if logger != nil {
			logger.Debug("Ensured directory exists",
				slog.String("directory", dir))
		}
	}

	return nil
}

// StocksCSVPath returns the price cache file for a market's universe
func (p *Paths) StocksCSVPath(market string) string {
	return filepath.Join(p.CacheDir, fmt.Sprintf("stocks_%s.csv", market))
}

// IndexCSVPath returns the cache file for a market's benchmark index
func (p *Paths) IndexCSVPath(market string) string {
	return filepath.Join(p.CacheDir, fmt.Sprintf("index_%s.csv", market))
}

// EntropyCSVPath returns the derived entropy series file for a market
func (p *Paths) EntropyCSVPath(market string) string {
	return filepath.Join(p.CacheDir, fmt.Sprintf("entropy_%s.csv", market))
}

// VolatilityCSVPath returns the cache file for the volatility index
func (p *Paths) VolatilityCSVPath() string {
	return filepath.Join(p.CacheDir, "vix.csv")
}

// GetCachePath returns the path for a cache file
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs resolved paths at startup for debugging
func (p *Paths) LogPathResolution() {
	logger := slog.Default()
	if logger == nil {
		return
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("executable", p.ExecutableDir),
			slog.String("data", p.DataDir),
			slog.String("cache", p.CacheDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("report_files",
			slog.String("results_csv", p.ResultsCSV),
			slog.String("results_xlsx", p.ResultsXLSX),
		))
}
