// Package domain contains the shared result contracts of the entropy
// study: what the engine produces, the exporter writes, and the API serves.
package domain

import (
	"time"
)

// StrategyKind identifies which signal source produced a results row.
type StrategyKind string

const (
	// StrategyEntropy trades high readings of the rolling entanglement
	// entropy of the market's correlation structure.
	StrategyEntropy StrategyKind = "entropy"

	// StrategyVolatility is the baseline that applies the identical rule
	// to the volatility index instead.
	StrategyVolatility StrategyKind = "volatility"
)

// TradeMode names the rule that converts signal dates to trades.
type TradeMode string

const (
	// TradeModeOverlapping takes every signal date as an independent
	// trade, even when holding periods overlap.
	TradeModeOverlapping TradeMode = "overlapping"

	// TradeModeNonOverlapping skips signal dates that fall on or before
	// the previous trade's exit date.
	TradeModeNonOverlapping TradeMode = "nonoverlapping"

	// TradeModeWeekly only enters on a fixed weekday, also without
	// overlap.
	TradeModeWeekly TradeMode = "weekly"
)

// StrategyStats holds the evaluation statistics for one strategy on one
// market. Win rate, sample size, and the binomial p-value are the
// headline columns; the mean-return block qualifies them.
type StrategyStats struct {
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	WinRate        float64 `json:"win_rate"`
	PValueBinomial float64 `json:"p_value_binomial"`
	MeanReturn     float64 `json:"mean_return"`
	StdReturn      float64 `json:"std_return"`
	MinReturn      float64 `json:"min_return"`
	MaxReturn      float64 `json:"max_return"`
	TStat          float64 `json:"t_stat"`
	PValueT        float64 `json:"p_value_t"`
	CILow          float64 `json:"ci_low"`
	CIHigh         float64 `json:"ci_high"`
	Significance   string  `json:"significance"`
}

// ResultRow is one row of the cross-market results table.
type ResultRow struct {
	Market    string       `json:"market"`
	Strategy  StrategyKind `json:"strategy"`
	TradeMode TradeMode    `json:"trade_mode"`
	Threshold float64      `json:"threshold"`
	StrategyStats
}

// SensitivityRow reports the entropy strategy recomputed at an
// alternative calibration percentile.
type SensitivityRow struct {
	Market     string  `json:"market"`
	Percentile float64 `json:"percentile"`
	Threshold  float64 `json:"threshold"`
	StrategyStats
}

// QuantileBucket reports the mean forward benchmark return conditional
// on the entropy reading falling inside one band of its distribution.
type QuantileBucket struct {
	Market     string  `json:"market"`
	Band       string  `json:"band"`
	LowerEdge  float64 `json:"lower_edge"`
	UpperEdge  float64 `json:"upper_edge"`
	Samples    int     `json:"samples"`
	MeanReturn float64 `json:"mean_forward_return"`
}

// EntropyPoint is one dated entropy reading. Invalid marks windows
// whose correlation matrix was degenerate; Value is meaningless then.
type EntropyPoint struct {
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Invalid bool      `json:"invalid,omitempty"`
}

// MarketResult is everything computed for a single market.
type MarketResult struct {
	Market      string           `json:"market"`
	Benchmark   string           `json:"benchmark"`
	Instruments []string         `json:"instruments"`
	Excluded    []string         `json:"excluded,omitempty"`
	Threshold   float64          `json:"threshold"`
	Rows        []ResultRow      `json:"rows"`
	Sensitivity []SensitivityRow `json:"sensitivity,omitempty"`
	Quantiles   []QuantileBucket `json:"quantiles,omitempty"`
	EntropyFrom time.Time        `json:"entropy_from"`
	EntropyTo   time.Time        `json:"entropy_to"`
}

// MarketFailure records a market whose pipeline failed while the others
// continued.
type MarketFailure struct {
	Market string `json:"market"`
	Error  string `json:"error"`
}

// StudyResult is the cross-market aggregate of one study run. Markets
// are sorted by identifier so the result is independent of completion
// order.
type StudyResult struct {
	RunID               string          `json:"run_id"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          time.Time       `json:"finished_at"`
	Window              int             `json:"window"`
	ThresholdPercentile float64         `json:"threshold_percentile"`
	HoldingPeriod       int             `json:"holding_period"`
	TradeMode           TradeMode       `json:"trade_mode"`
	TrainEnd            string          `json:"train_end"`
	Markets             []MarketResult  `json:"markets"`
	Failures            []MarketFailure `json:"failures,omitempty"`
}

// Rows flattens the per-market tables into the single results table, in
// market order with the entropy row before the volatility baseline.
func (s *StudyResult) Rows() []ResultRow {
	var rows []ResultRow
	for _, m := range s.Markets {
		rows = append(rows, m.Rows...)
	}
	return rows
}

// Market returns the result for one market, or nil when that market
// failed or was not requested.
func (s *StudyResult) Market(id string) *MarketResult {
	for i := range s.Markets {
		if s.Markets[i].Market == id {
			return &s.Markets[i]
		}
	}
	return nil
}
