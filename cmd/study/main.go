package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"emis/pkg/contracts/domain"

	"emis/internal/config"
	"emis/internal/exporter"
	"emis/internal/infrastructure"
	"emis/internal/prices"
	"emis/internal/study"
)

func main() {
	marketList := flag.String("markets", "", "comma-separated market identifiers; empty runs all")
	mode := flag.String("mode", "", "trade mode: overlapping, nonoverlapping, or weekly; overrides configuration")
	percentile := flag.Float64("percentile", 0, "calibration percentile for the entry threshold; overrides configuration")
	window := flag.Int("window", 0, "rolling correlation window in trading days; overrides configuration")
	holding := flag.Int("holding", 0, "holding period in trading days; overrides configuration")
	refresh := flag.Bool("refresh", false, "refetch prices from source even when cache files exist")
	recompute := flag.Bool("recompute", false, "recompute entropy series even when cached ones exist")
	configFile := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	paths, err := config.GetPaths()
	if err != nil {
		logger.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	markets, err := config.ParseMarkets(*marketList)
	if err != nil {
		logger.Error("Unknown market", "markets", *marketList, "error", err)
		os.Exit(1)
	}

	params, err := buildParams(cfg, *mode, *percentile, *window, *holding, *refresh, *recompute)
	if err != nil {
		logger.Error("Invalid study parameters", "error", err)
		os.Exit(1)
	}

	store := prices.NewFileStore()
	source := prices.NewChartClient(cfg.Source, logger)
	cache := prices.NewCache(store, source, paths, cfg, logger)
	pipeline := study.NewPipeline(cache, paths, logger)

	runID := uuid.New().String()
	logger.Info("Starting study",
		"run_id", runID,
		"markets", len(markets),
		"window", params.Window,
		"percentile", params.ThresholdPercentile,
		"holding", params.HoldingPeriod,
		"mode", string(params.TradeMode))

	result, err := pipeline.Run(context.Background(), runID, markets, params)
	if err != nil {
		logger.Error("Study failed", "run_id", runID, "error", err)
		os.Exit(1)
	}

	if err := exporter.NewResultsExporter(paths).Export(result); err != nil {
		logger.Error("Failed to export results", "error", err)
		os.Exit(1)
	}
	if err := exporter.NewWorkbookExporter(paths).Export(result); err != nil {
		logger.Error("Failed to export workbook", "error", err)
		os.Exit(1)
	}

	printComparison(result)

	logger.Info("Study complete",
		"run_id", runID,
		"markets", len(result.Markets),
		"failures", len(result.Failures),
		"reports_dir", paths.ReportsDir)
}

// buildParams overlays the flag values onto the configured defaults
func buildParams(cfg *config.Config, mode string, percentile float64, window, holding int, refresh, recompute bool) (study.Params, error) {
	params := study.ParamsFromConfig(cfg)
	params.Refresh = refresh
	params.Recompute = recompute

	if mode != "" {
		switch domain.TradeMode(mode) {
		case domain.TradeModeOverlapping, domain.TradeModeNonOverlapping, domain.TradeModeWeekly:
			params.TradeMode = domain.TradeMode(mode)
		default:
			return study.Params{}, fmt.Errorf("unknown trade mode %q", mode)
		}
	}
	if percentile != 0 {
		if percentile <= 0 || percentile >= 100 {
			return study.Params{}, fmt.Errorf("percentile %g out of range (0, 100)", percentile)
		}
		params.ThresholdPercentile = percentile
	}
	if window > 0 {
		params.Window = window
	}
	if holding > 0 {
		params.HoldingPeriod = holding
	}

	return params, nil
}

// printComparison writes the cross-market results table to stdout
func printComparison(result *domain.StudyResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tSTRATEGY\tMODE\tTHRESHOLD\tTRADES\tWIN RATE\tP(BINOM)\tMEAN RET\tT STAT\tP(T)\t95% CI\tSIG")
	for _, row := range result.Rows() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%d\t%.1f%%\t%.4f\t%.4f\t%.2f\t%.4f\t[%.4f, %.4f]\t%s\n",
			row.Market,
			row.Strategy,
			row.TradeMode,
			row.Threshold,
			row.Trades,
			row.WinRate*100,
			row.PValueBinomial,
			row.MeanReturn,
			row.TStat,
			row.PValueT,
			row.CILow,
			row.CIHigh,
			row.Significance)
	}
	w.Flush()

	for _, failure := range result.Failures {
		fmt.Fprintf(os.Stderr, "dropped %s: %s\n", failure.Market, failure.Error)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
