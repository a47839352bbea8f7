package backtest

import (
	"fmt"
	"time"

	"emis/pkg/contracts/domain"

	"emis/internal/prices"
	"emis/internal/signal"
)

// Trade is one realized forward position on the benchmark.
type Trade struct {
	EntryDate  time.Time
	ExitDate   time.Time
	EntryPrice float64
	ExitPrice  float64
	Return     float64
}

// Options configure trade construction.
type Options struct {
	HoldingPeriod int
	Mode          domain.TradeMode
	// EntryWeekday applies to the weekly mode only
	EntryWeekday time.Weekday
}

// BuildTrades converts entry signals into trades on the benchmark. The
// holding period counts trading rows on the benchmark's own calendar:
// the exit row is the entry row plus the holding period. Entries whose
// date has no benchmark row are skipped; trades whose exit row runs
// past the available data are discarded, never truncated.
func BuildTrades(signals []signal.Signal, benchmark *prices.Series, opts Options) ([]Trade, error) {
	if opts.HoldingPeriod < 1 {
		return nil, fmt.Errorf("holding period must be at least 1, got %d", opts.HoldingPeriod)
	}
	switch opts.Mode {
	case domain.TradeModeOverlapping, domain.TradeModeNonOverlapping, domain.TradeModeWeekly:
	default:
		return nil, fmt.Errorf("unknown trade mode %q", opts.Mode)
	}

	var (
		trades   []Trade
		lastExit time.Time
	)

	for _, s := range signal.Entries(signals) {
		if opts.Mode == domain.TradeModeWeekly && s.Date.Weekday() != opts.EntryWeekday {
			continue
		}
		if opts.Mode != domain.TradeModeOverlapping && !lastExit.IsZero() && !s.Date.After(lastExit) {
			continue
		}

		entryIdx := benchmark.SearchDate(s.Date)
		if entryIdx >= benchmark.Len() || !benchmark.Dates[entryIdx].Equal(s.Date) {
			// The signal calendar and the benchmark calendar can differ
			// by a holiday; such entries have no executable row.
			continue
		}

		exitIdx := entryIdx + opts.HoldingPeriod
		if exitIdx >= benchmark.Len() {
			// Exit beyond available data: discard, not truncate.
			continue
		}

		entryPrice := benchmark.Closes[entryIdx]
		exitPrice := benchmark.Closes[exitIdx]
		trade := Trade{
			EntryDate:  s.Date,
			ExitDate:   benchmark.Dates[exitIdx],
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Return:     exitPrice/entryPrice - 1,
		}
		trades = append(trades, trade)
		lastExit = trade.ExitDate
	}

	return trades, nil
}

// ForwardReturn computes the holding-period benchmark return following
// one date, matching the trade construction rules. The second result
// reports whether the date has an executable row with a full holding
// period of data after it.
func ForwardReturn(benchmark *prices.Series, date time.Time, holding int) (float64, bool) {
	idx := benchmark.SearchDate(date)
	if idx >= benchmark.Len() || !benchmark.Dates[idx].Equal(date) {
		return 0, false
	}
	exitIdx := idx + holding
	if exitIdx >= benchmark.Len() {
		return 0, false
	}
	return benchmark.Closes[exitIdx]/benchmark.Closes[idx] - 1, true
}
