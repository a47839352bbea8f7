package backtest

import (
	"emis/pkg/contracts/domain"

	"emis/internal/entropy"
	"emis/internal/prices"
	"emis/internal/signal"
)

// quantile band edges: lowest 20%, middle 60%, highest 20%
const (
	lowerBandPercentile = 20.0
	upperBandPercentile = 80.0
)

// QuantileBuckets conditions the forward benchmark return on which band
// of its own distribution the entropy reading fell into, over the
// valid evaluation-period points.
func QuantileBuckets(market string, evaluation *entropy.Series, benchmark *prices.Series, holding int) []domain.QuantileBucket {
	valid := evaluation.Valid()
	if len(valid) == 0 {
		return nil
	}

	values := make([]float64, len(valid))
	min, max := valid[0].Value, valid[0].Value
	for i, p := range valid {
		values[i] = p.Value
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}
	lower := signal.Quantile(values, lowerBandPercentile)
	upper := signal.Quantile(values, upperBandPercentile)

	type bucket struct {
		band    string
		lo, hi  float64
		sum     float64
		samples int
	}
	buckets := []*bucket{
		{band: "low", lo: min, hi: lower},
		{band: "middle", lo: lower, hi: upper},
		{band: "high", lo: upper, hi: max},
	}

	for _, p := range valid {
		ret, ok := ForwardReturn(benchmark, p.Date, holding)
		if !ok {
			continue
		}
		switch {
		case p.Value <= lower:
			buckets[0].sum += ret
			buckets[0].samples++
		case p.Value > upper:
			buckets[2].sum += ret
			buckets[2].samples++
		default:
			buckets[1].sum += ret
			buckets[1].samples++
		}
	}

	out := make([]domain.QuantileBucket, 0, len(buckets))
	for _, b := range buckets {
		qb := domain.QuantileBucket{
			Market:    market,
			Band:      b.band,
			LowerEdge: b.lo,
			UpperEdge: b.hi,
			Samples:   b.samples,
		}
		if b.samples > 0 {
			qb.MeanReturn = b.sum / float64(b.samples)
		}
		out = append(out, qb)
	}
	return out
}
