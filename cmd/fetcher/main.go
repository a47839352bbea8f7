package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"emis/internal/config"
	"emis/internal/infrastructure"
	"emis/internal/prices"
)

func main() {
	marketID := flag.String("market", "", "market to fetch (us, japan, germany); empty fetches all")
	startDate := flag.String("start", "", "history start date (YYYY-MM-DD); overrides configuration")
	refresh := flag.Bool("refresh", false, "refetch from source even when cache files exist")
	configFile := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *startDate != "" {
		cfg.Study.StartDate = *startDate
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

	store := prices.NewFileStore()
	source := prices.NewChartClient(cfg.Source, logger)
	cache := prices.NewCache(store, source, paths, cfg, logger)

	ctx := context.Background()

	for _, market := range markets {
		logger.Info("Fetching market",
			"market", market.ID,
			"benchmark", market.Benchmark,
			"tickers", len(market.Tickers),
			"refresh", *refresh)

		data, err := cache.LoadMarket(ctx, market, *refresh)
		if err != nil {
			logger.Error("Failed to fetch market", "market", market.ID, "error", err)
			os.Exit(1)
		}

		logger.Info("Market cached",
			"market", market.ID,
			"universe", data.Stocks.NumCols(),
			"rows", data.Stocks.NumRows(),
			"excluded", strings.Join(data.Excluded, ","),
			"stocks_file", paths.StocksCSVPath(market.ID),
			"index_file", paths.IndexCSVPath(market.ID))
	}

	vix, err := cache.LoadVolatility(ctx, *refresh)
	if err != nil {
		logger.Error("Failed to fetch volatility baseline", "error", err)
		os.Exit(1)
	}
	logger.Info("Volatility baseline cached",
		"symbol", config.VolatilitySymbol,
		"observations", vix.Len(),
		"file", paths.VolatilityCSVPath())
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
