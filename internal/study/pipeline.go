package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"emis/pkg/contracts/domain"

	"emis/internal/backtest"
	"emis/internal/config"
	"emis/internal/entropy"
	apperrors "emis/internal/errors"
	"emis/internal/prices"
	"emis/internal/returns"
	"emis/internal/signal"
)

// SensitivityPercentiles are the alternative calibration percentiles
// reported alongside the configured one.
var SensitivityPercentiles = []float64{80, 85, 90, 95}

// Pipeline executes the study phases over a Run. One Pipeline serves
// any number of runs; all per-run state lives on the Run itself.
type Pipeline struct {
	cache  *prices.Cache
	paths  *config.Paths
	logger *slog.Logger
}

// NewPipeline creates a study pipeline over the price cache
func NewPipeline(cache *prices.Cache, paths *config.Paths, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cache:  cache,
		paths:  paths,
		logger: logger.With(slog.String("component", "study_pipeline")),
	}
}

// NewRun prepares a run carrier for the given markets
func (p *Pipeline) NewRun(id string, markets []config.Market, params Params) *Run {
	run := &Run{ID: id, Params: params, StartedAt: time.Now()}
	for _, m := range markets {
		run.addMarket(&MarketRun{Market: m})
	}
	return run
}

// Run executes every phase in order and assembles the cross-market
// result. Markets failing on history grounds become failure rows; any
// other error aborts the run.
func (p *Pipeline) Run(ctx context.Context, id string, markets []config.Market, params Params) (*domain.StudyResult, error) {
	run := p.NewRun(id, markets, params)

	phases := []struct {
		name string
		fn   func(context.Context, *Run) error
	}{
		{"fetch", p.Fetch},
		{"align", p.Align},
		{"entropy", p.ComputeEntropy},
		{"signals", p.GenerateSignals},
		{"backtest", p.Backtest},
	}
	for _, phase := range phases {
		if err := phase.fn(ctx, run); err != nil {
			return nil, fmt.Errorf("study phase %s: %w", phase.name, err)
		}
	}

	return p.Assemble(run), nil
}

// Fetch loads every market's universe and benchmark through the price
// cache, plus the volatility baseline series. Markets whose universe
// collapses are dropped as failures; a volatility failure is fatal
// because the baseline comparison is part of the result contract.
func (p *Pipeline) Fetch(ctx context.Context, run *Run) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, mr := range run.Markets() {
		g.Go(func() error {
			data, err := p.cache.LoadMarket(gctx, mr.Market, run.Params.Refresh)
			if err != nil {
				return p.dropOrFail(gctx, run, mr.Market.ID, err)
			}
			mr.Data = data
			return nil
		})
	}

	g.Go(func() error {
		vix, err := p.cache.LoadVolatility(gctx, run.Params.Refresh)
		if err != nil {
			return fmt.Errorf("load volatility baseline: %w", err)
		}
		run.setVolatility(vix)
		return nil
	})

	return g.Wait()
}

// Align converts each market's price table into a log-return matrix
// restricted to common trading dates.
func (p *Pipeline) Align(ctx context.Context, run *Run) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, mr := range run.Markets() {
		g.Go(func() error {
			matrix, err := returns.Compute(gctx, mr.Market.ID, mr.Data.Stocks, run.Params.Window, p.logger)
			if err != nil {
				return p.dropOrFail(gctx, run, mr.Market.ID, err)
			}
			mr.Returns = matrix
			return nil
		})
	}

	return g.Wait()
}

// ComputeEntropy computes or reloads each market's entropy series. A
// cached series is served unless the run forces recomputation.
func (p *Pipeline) ComputeEntropy(ctx context.Context, run *Run) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, mr := range run.Markets() {
		g.Go(func() error {
			path := p.paths.EntropyCSVPath(mr.Market.ID)

			if !run.Params.Recompute && !run.Params.Refresh && config.FileExists(path) {
				series, err := entropy.LoadCSV(path, mr.Market.ID)
				if err == nil {
					p.logger.InfoContext(gctx, "serving entropy from cache",
						slog.String("market", mr.Market.ID),
						slog.Int("points", series.Len()))
					mr.Entropy = series
					return nil
				}
				p.logger.WarnContext(gctx, "entropy cache unreadable, recomputing",
					slog.String("market", mr.Market.ID),
					slog.String("error", err.Error()))
			}

			engine, err := entropy.NewEngine(run.Params.Window, p.logger)
			if err != nil {
				return err
			}
			series, err := engine.Compute(gctx, mr.Returns)
			if err != nil {
				return p.dropOrFail(gctx, run, mr.Market.ID, err)
			}
			if err := entropy.SaveCSV(path, series); err != nil {
				return fmt.Errorf("persist entropy for %s: %w", mr.Market.ID, err)
			}
			mr.Entropy = series
			return nil
		})
	}

	return g.Wait()
}

// GenerateSignals calibrates each market's threshold on the training
// period and emits evaluation-period entry signals.
func (p *Pipeline) GenerateSignals(ctx context.Context, run *Run) error {
	for _, mr := range run.Markets() {
		threshold, err := signal.Train(mr.Entropy, run.Params.TrainEnd, run.Params.ThresholdPercentile)
		if err != nil {
			if dropErr := p.dropOrFail(ctx, run, mr.Market.ID, err); dropErr != nil {
				return dropErr
			}
			continue
		}
		mr.Threshold = threshold
		mr.Signals = signal.Generate(mr.Entropy, threshold)

		p.logger.InfoContext(ctx, "signals generated",
			slog.String("market", mr.Market.ID),
			slog.Float64("threshold", threshold.Value()),
			slog.Int("training_samples", threshold.Samples()),
			slog.Int("entries", len(signal.Entries(mr.Signals))))
	}
	return nil
}

// Backtest evaluates each market's entropy strategy, its threshold
// sensitivity and quantile conditioning, and the volatility baseline
// against the same benchmark.
func (p *Pipeline) Backtest(ctx context.Context, run *Run) error {
	vix := run.Volatility()

	for _, mr := range run.Markets() {
		result, err := p.backtestMarket(ctx, run, mr, vix)
		if err != nil {
			if dropErr := p.dropOrFail(ctx, run, mr.Market.ID, err); dropErr != nil {
				return dropErr
			}
			continue
		}
		mr.Result = result
	}
	return nil
}

func (p *Pipeline) backtestMarket(ctx context.Context, run *Run, mr *MarketRun, vix *prices.Series) (*domain.MarketResult, error) {
	params := run.Params
	opts := backtest.Options{
		HoldingPeriod: params.HoldingPeriod,
		Mode:          params.TradeMode,
		EntryWeekday:  params.EntryWeekday,
	}

	trades, err := backtest.BuildTrades(mr.Signals, mr.Data.Benchmark, opts)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", mr.Market.ID, err)
	}

	result := &domain.MarketResult{
		Market:      mr.Market.ID,
		Benchmark:   mr.Market.Benchmark,
		Instruments: mr.Returns.Symbols,
		Excluded:    mr.Data.Excluded,
		Threshold:   mr.Threshold.Value(),
		EntropyFrom: mr.Entropy.First(),
		EntropyTo:   mr.Entropy.Last(),
	}

	result.Rows = append(result.Rows, domain.ResultRow{
		Market:        mr.Market.ID,
		Strategy:      domain.StrategyEntropy,
		TradeMode:     params.TradeMode,
		Threshold:     mr.Threshold.Value(),
		StrategyStats: backtest.Compute(trades),
	})

	baselineRow, err := p.baselineRow(mr, vix, opts)
	if err != nil {
		return nil, err
	}
	result.Rows = append(result.Rows, baselineRow)

	for _, pct := range SensitivityPercentiles {
		threshold, err := signal.Train(mr.Entropy, params.TrainEnd, pct)
		if err != nil {
			return nil, fmt.Errorf("sensitivity threshold %g for %s: %w", pct, mr.Market.ID, err)
		}
		sensTrades, err := backtest.BuildTrades(signal.Generate(mr.Entropy, threshold), mr.Data.Benchmark, opts)
		if err != nil {
			return nil, err
		}
		result.Sensitivity = append(result.Sensitivity, domain.SensitivityRow{
			Market:        mr.Market.ID,
			Percentile:    pct,
			Threshold:     threshold.Value(),
			StrategyStats: backtest.Compute(sensTrades),
		})
	}

	evaluation := mr.Entropy.From(params.TrainEnd)
	result.Quantiles = backtest.QuantileBuckets(mr.Market.ID, evaluation, mr.Data.Benchmark, params.HoldingPeriod)

	p.logger.InfoContext(ctx, "market backtest complete",
		slog.String("market", mr.Market.ID),
		slog.Int("trades", result.Rows[0].Trades),
		slog.Float64("win_rate", result.Rows[0].WinRate),
		slog.Float64("p_value", result.Rows[0].PValueBinomial))

	return result, nil
}

// baselineRow applies the identical threshold rule to the volatility
// index level and backtests it on the market's own benchmark.
func (p *Pipeline) baselineRow(mr *MarketRun, vix *prices.Series, opts backtest.Options) (domain.ResultRow, error) {
	src := LevelSource{Series: vix}

	threshold, err := signal.Train(src, mr.Threshold.TrainEnd(), mr.Threshold.Percentile())
	if err != nil {
		// The baseline calibrates on the shared volatility index. A
		// failure here is a run defect, never a per-market drop, so the
		// sentinel chain stops at this wrap.
		return domain.ResultRow{}, fmt.Errorf("volatility baseline threshold: %v", err)
	}

	trades, err := backtest.BuildTrades(signal.Generate(src, threshold), mr.Data.Benchmark, opts)
	if err != nil {
		return domain.ResultRow{}, err
	}

	return domain.ResultRow{
		Market:        mr.Market.ID,
		Strategy:      domain.StrategyVolatility,
		TradeMode:     opts.Mode,
		Threshold:     threshold.Value(),
		StrategyStats: backtest.Compute(trades),
	}, nil
}

// Assemble sorts the surviving markets by identifier and freezes the
// cross-market result on the run.
func (p *Pipeline) Assemble(run *Run) *domain.StudyResult {
	result := &domain.StudyResult{
		RunID:               run.ID,
		StartedAt:           run.StartedAt,
		FinishedAt:          time.Now(),
		Window:              run.Params.Window,
		ThresholdPercentile: run.Params.ThresholdPercentile,
		HoldingPeriod:       run.Params.HoldingPeriod,
		TradeMode:           run.Params.TradeMode,
		TrainEnd:            run.Params.TrainEnd.Format("2006-01-02"),
		Failures:            run.Failures(),
	}

	for _, mr := range run.Markets() {
		if mr.Result != nil {
			result.Markets = append(result.Markets, *mr.Result)
		}
	}
	sort.Slice(result.Markets, func(i, j int) bool {
		return result.Markets[i].Market < result.Markets[j].Market
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Market < result.Failures[j].Market
	})

	run.Result = result
	return result
}

// dropOrFail records a per-market history failure and continues, or
// propagates anything else as fatal for the whole run.
func (p *Pipeline) dropOrFail(ctx context.Context, run *Run, marketID string, err error) error {
	if errors.Is(err, apperrors.ErrInsufficientHistory) || errors.Is(err, apperrors.ErrUniverseTooSmall) {
		p.logger.ErrorContext(ctx, "market dropped from study",
			slog.String("market", marketID),
			slog.String("error", err.Error()))
		run.failMarket(marketID, err)
		return nil
	}
	return fmt.Errorf("market %s: %w", marketID, err)
}

// LevelSource adapts a raw price series to the signal source contract,
// treating every observation as valid. The volatility baseline signals
// on index levels, not returns.
type LevelSource struct {
	Series *prices.Series
}

// Len returns the number of observations
func (l LevelSource) Len() int { return l.Series.Len() }

// At returns the i-th observation
func (l LevelSource) At(i int) (time.Time, float64, bool) {
	return l.Series.Dates[i], l.Series.Closes[i], true
}
