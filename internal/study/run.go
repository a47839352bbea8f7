package study

import (
	"sync"
	"time"

	"emis/pkg/contracts/domain"

	"emis/internal/config"
	"emis/internal/entropy"
	"emis/internal/prices"
	"emis/internal/returns"
	"emis/internal/signal"
)

// Params are the study knobs shared by every market pipeline.
type Params struct {
	Window              int
	ThresholdPercentile float64
	HoldingPeriod       int
	TradeMode           domain.TradeMode
	EntryWeekday        time.Weekday
	TrainEnd            time.Time
	// Refresh forces price refetch; Recompute forces entropy
	// recomputation even when a cached series exists.
	Refresh   bool
	Recompute bool
}

// ParamsFromConfig builds the default parameter set from configuration
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Window:              cfg.Study.Window,
		ThresholdPercentile: cfg.Study.ThresholdPercentile,
		HoldingPeriod:       cfg.Study.HoldingPeriod,
		TradeMode:           domain.TradeMode(cfg.Study.TradeMode),
		EntryWeekday:        time.Weekday(cfg.Study.EntryWeekday),
		TrainEnd:            cfg.TrainEnd(),
	}
}

// MarketRun carries one market's intermediate products between phases.
type MarketRun struct {
	Market config.Market

	Data      *prices.MarketData
	Returns   *returns.Matrix
	Entropy   *entropy.Series
	Threshold signal.Threshold
	Signals   []signal.Signal

	Result *domain.MarketResult
}

// Run is the shared carrier of one study execution across all phases.
type Run struct {
	ID        string
	Params    Params
	StartedAt time.Time

	mu         sync.Mutex
	markets    []*MarketRun
	volatility *prices.Series
	failures   []domain.MarketFailure

	Result *domain.StudyResult
}

// Markets returns the market runs still in flight
func (r *Run) Markets() []*MarketRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*MarketRun(nil), r.markets...)
}

// Volatility returns the fetched volatility baseline series
func (r *Run) Volatility() *prices.Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volatility
}

// Failures returns the markets dropped so far
func (r *Run) Failures() []domain.MarketFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MarketFailure(nil), r.failures...)
}

func (r *Run) addMarket(mr *MarketRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets = append(r.markets, mr)
}

func (r *Run) setVolatility(s *prices.Series) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volatility = s
}

// failMarket drops a market from the run and records why
func (r *Run) failMarket(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.markets[:0]
	for _, mr := range r.markets {
		if mr.Market.ID != id {
			kept = append(kept, mr)
		}
	}
	r.markets = kept
	r.failures = append(r.failures, domain.MarketFailure{Market: id, Error: err.Error()})
}
