package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"emis/internal/config"
	"emis/internal/infrastructure"
	"emis/internal/prices"
	"emis/internal/study"
)

func main() {
	marketID := flag.String("market", "", "market to report on (us, japan, germany); empty reports all")
	window := flag.Int("window", 0, "rolling correlation window in trading days; overrides configuration")
	recompute := flag.Bool("recompute", false, "recompute the entropy series even when a cached one exists")
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

	markets, err := config.ParseMarkets(*marketID)
	if err != nil {
		logger.Error("Unknown market", "market", *marketID, "error", err)
		os.Exit(1)
	}

	params := study.ParamsFromConfig(cfg)
	params.Recompute = *recompute
	if *window > 0 {
		params.Window = *window
	}

	store := prices.NewFileStore()
	source := prices.NewChartClient(cfg.Source, logger)
	cache := prices.NewCache(store, source, paths, cfg, logger)
	pipeline := study.NewPipeline(cache, paths, logger)

	ctx := context.Background()
	run := pipeline.NewRun(uuid.New().String(), markets, params)

	phases := []struct {
		name string
		fn   func(context.Context, *study.Run) error
	}{
		{"fetch", pipeline.Fetch},
		{"align", pipeline.Align},
		{"entropy", pipeline.ComputeEntropy},
	}
	for _, phase := range phases {
		if err := phase.fn(ctx, run); err != nil {
			logger.Error("Entropy report failed", "phase", phase.name, "error", err)
			os.Exit(1)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tWINDOW\tPOINTS\tGAPS\tFROM\tTO\tFILE")
	for _, mr := range run.Markets() {
		series := mr.Entropy
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			mr.Market.ID,
			params.Window,
			series.Len(),
			series.Gaps(),
			series.First().Format("2006-01-02"),
			series.Last().Format("2006-01-02"),
			paths.EntropyCSVPath(mr.Market.ID))
	}
	w.Flush()

	for _, failure := range run.Failures() {
		fmt.Fprintf(os.Stderr, "dropped %s: %s\n", failure.Market, failure.Error)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
