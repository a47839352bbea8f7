package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"emis/pkg/contracts/domain"
)

// Compute aggregates trades into the full statistics block. With no
// trades the block reports zero samples and p-values of 1, so an empty
// strategy can never read as significant.
func Compute(trades []Trade) domain.StrategyStats {
	stats := domain.StrategyStats{PValueBinomial: 1, PValueT: 1}
	n := len(trades)
	if n == 0 {
		return stats
	}

	var (
		wins int
		sum  float64
		min  = math.Inf(1)
		max  = math.Inf(-1)
	)
	for _, t := range trades {
		if t.Return > 0 {
			wins++
		}
		sum += t.Return
		min = math.Min(min, t.Return)
		max = math.Max(max, t.Return)
	}
	mean := sum / float64(n)

	stats.Trades = n
	stats.Wins = wins
	stats.WinRate = float64(wins) / float64(n)
	stats.MeanReturn = mean
	stats.MinReturn = min
	stats.MaxReturn = max

	// One-sided binomial test of H0: win probability 0.5. The p-value
	// is P[X >= wins] for X ~ Binomial(n, 0.5).
	binom := distuv.Binomial{N: float64(n), P: 0.5}
	if wins == 0 {
		stats.PValueBinomial = 1
	} else {
		stats.PValueBinomial = 1 - binom.CDF(float64(wins-1))
	}

	if n >= 2 {
		ss := 0.0
		for _, t := range trades {
			d := t.Return - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(n-1))
		stats.StdReturn = std

		if std > 0 {
			se := std / math.Sqrt(float64(n))
			stats.TStat = mean / se
			// One-sided t-test of H0: mean return 0 against mean > 0.
			tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
			stats.PValueT = 1 - tDist.CDF(stats.TStat)
			stats.CILow = mean - 1.96*se
			stats.CIHigh = mean + 1.96*se
		} else {
			stats.CILow = mean
			stats.CIHigh = mean
			if mean > 0 {
				stats.PValueT = 0
			}
		}
	} else {
		stats.CILow = mean
		stats.CIHigh = mean
	}

	stats.Significance = SignificanceStars(stats.PValueBinomial)
	return stats
}

// SignificanceStars maps a p-value onto the conventional star notation
func SignificanceStars(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return ""
	}
}
