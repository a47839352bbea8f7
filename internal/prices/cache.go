package prices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"emis/internal/config"
	apperrors "emis/internal/errors"
)

// MarketData is the cached price data one market's pipeline consumes.
type MarketData struct {
	Market    string
	Stocks    *Table
	Benchmark *Series
	Excluded  []string
}

// Cache serves market price data from per-market CSV files, fetching
// from the source only on a miss or a forced refresh. Acceptance rules
// run on every load so a stale cache and a fresh fetch produce the same
// universe.
type Cache struct {
	store       Store
	source      Source
	paths       *config.Paths
	study       config.StudyConfig
	concurrency int
	logger      *slog.Logger
}

// NewCache creates a price cache over the given store and source
func NewCache(store Store, source Source, paths *config.Paths, cfg *config.Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		store:       store,
		source:      source,
		paths:       paths,
		study:       cfg.Study,
		concurrency: cfg.Source.Concurrency,
		logger:      logger.With(slog.String("component", "price_cache")),
	}
}

// LoadMarket returns the accepted universe and benchmark for one
// market. With refresh the cache files are rewritten from fresh
// fetches; otherwise existing files are served as is.
func (c *Cache) LoadMarket(ctx context.Context, market config.Market, refresh bool) (*MarketData, error) {
	start := time.Now()
	stocksPath := c.paths.StocksCSVPath(market.ID)
	indexPath := c.paths.IndexCSVPath(market.ID)

	var (
		table     *Table
		benchmark *Series
		excluded  []string
		err       error
	)

	if !refresh && c.store.Exists(stocksPath) && c.store.Exists(indexPath) {
		c.logger.InfoContext(ctx, "serving market from cache",
			slog.String("market", market.ID),
			slog.String("stocks", stocksPath))

		table, err = c.store.LoadTable(stocksPath)
		if err != nil {
			return nil, fmt.Errorf("load cached stocks for %s: %w", market.ID, err)
		}
		benchmark, err = c.store.LoadSeries(indexPath)
		if err != nil {
			return nil, fmt.Errorf("load cached benchmark for %s: %w", market.ID, err)
		}
	} else {
		table, benchmark, excluded, err = c.fetchMarket(ctx, market)
		if err != nil {
			return nil, err
		}

		if err := c.store.SaveTable(stocksPath, table); err != nil {
			return nil, fmt.Errorf("save stocks cache for %s: %w", market.ID, err)
		}
		if err := c.store.SaveSeries(indexPath, benchmark); err != nil {
			return nil, fmt.Errorf("save benchmark cache for %s: %w", market.ID, err)
		}
	}

	data, err := c.applyAcceptance(ctx, market, table, benchmark, excluded)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "market data ready",
		slog.String("market", market.ID),
		slog.Int("universe", data.Stocks.NumCols()),
		slog.Int("excluded", len(data.Excluded)),
		slog.Int("rows", data.Stocks.NumRows()),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// LoadVolatility returns the volatility index series used by the
// baseline strategy, cached like any other benchmark.
func (c *Cache) LoadVolatility(ctx context.Context, refresh bool) (*Series, error) {
	path := c.paths.VolatilityCSVPath()

	if !refresh && c.store.Exists(path) {
		return c.store.LoadSeries(path)
	}

	series, err := c.source.FetchDaily(ctx, config.VolatilitySymbol, c.studyStart(), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("fetch volatility index: %w", err)
	}

	if err := c.store.SaveSeries(path, series); err != nil {
		return nil, fmt.Errorf("save volatility cache: %w", err)
	}
	return series, nil
}

// fetchMarket fetches every instrument of a market plus its benchmark.
// Instrument failures become exclusions; a benchmark failure fails the
// market.
func (c *Cache) fetchMarket(ctx context.Context, market config.Market) (*Table, *Series, []string, error) {
	c.logger.InfoContext(ctx, "fetching market from source",
		slog.String("market", market.ID),
		slog.Int("tickers", len(market.Tickers)),
		slog.Int("concurrency", c.concurrency))

	var (
		mu       sync.Mutex
		fetched  []*Series
		excluded []string
	)

	g, fetchCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, symbol := range market.Tickers {
		g.Go(func() error {
			series, err := c.source.FetchDaily(fetchCtx, symbol, c.studyStart(), time.Time{})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, apperrors.ErrDataUnavailable) {
					c.logger.WarnContext(fetchCtx, "excluding instrument",
						slog.String("market", market.ID),
						slog.String("symbol", symbol),
						slog.String("reason", err.Error()))
					excluded = append(excluded, symbol)
					return nil
				}
				return err
			}
			fetched = append(fetched, series.Compact())
			return nil
		})
	}

	benchmark, benchErr := c.source.FetchDaily(ctx, market.Benchmark, c.studyStart(), time.Time{})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, fmt.Errorf("fetch market %s: %w", market.ID, err)
	}
	if benchErr != nil {
		return nil, nil, nil, fmt.Errorf("fetch benchmark %s for %s: %w", market.Benchmark, market.ID, benchErr)
	}
	if len(fetched) == 0 {
		return nil, nil, nil, apperrors.NewUniverseTooSmall(market.ID, c.study.MinUniverse, 0)
	}

	return NewTable(fetched), benchmark.Compact(), excluded, nil
}

// applyAcceptance filters the table columns through the history rules
// and enforces the minimum universe size.
func (c *Cache) applyAcceptance(ctx context.Context, market config.Market, table *Table, benchmark *Series, excluded []string) (*MarketData, error) {
	var accepted []string
	rejected := append([]string(nil), excluded...)

	for _, series := range table.Columns() {
		if reason := c.rejectReason(series); reason != "" {
			c.logger.WarnContext(ctx, "excluding instrument",
				slog.String("market", market.ID),
				slog.String("symbol", series.Symbol),
				slog.String("reason", reason))
			rejected = append(rejected, series.Symbol)
			continue
		}
		accepted = append(accepted, series.Symbol)
	}

	if len(accepted) < c.study.MinUniverse {
		return nil, apperrors.NewUniverseTooSmall(market.ID, c.study.MinUniverse, len(accepted))
	}

	sort.Strings(accepted)
	sort.Strings(rejected)

	return &MarketData{
		Market:    market.ID,
		Stocks:    table.Select(accepted),
		Benchmark: benchmark,
		Excluded:  rejected,
	}, nil
}

// rejectReason applies the acceptance rules to one instrument's
// history. An empty string means the series is accepted.
func (c *Cache) rejectReason(series *Series) string {
	if series.Len() == 0 {
		return "no observations"
	}

	latestStart := c.studyStart().AddDate(0, 0, c.study.StartSlackDays)
	if series.First().After(latestStart) {
		return fmt.Sprintf("history starts %s, after cutoff %s",
			series.First().Format("2006-01-02"), latestStart.Format("2006-01-02"))
	}

	if series.Len() < c.study.MinHistoryRows {
		return fmt.Sprintf("only %d observations, need %d", series.Len(), c.study.MinHistoryRows)
	}

	return ""
}

func (c *Cache) studyStart() time.Time {
	start, err := c.study.Start()
	if err != nil {
		return time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return start
}
