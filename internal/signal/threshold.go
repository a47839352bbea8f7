package signal

import (
	"fmt"
	"math"
	"sort"
	"time"

	apperrors "emis/internal/errors"
)

// Source is any dated indicator series the generator can threshold:
// the entropy series, or the volatility index level for the baseline.
type Source interface {
	Len() int
	// At returns the i-th observation as (date, value, valid). Invalid
	// observations never calibrate and never signal.
	At(i int) (time.Time, float64, bool)
}

// Threshold is a calibrated entry cutoff. It is only constructible
// through Train, which restricts calibration to observations strictly
// before the training boundary.
type Threshold struct {
	value      float64
	percentile float64
	trainEnd   time.Time
	samples    int
}

// Train computes the percentile threshold from the valid observations
// of src dated strictly before trainEnd. An unbounded training period
// would calibrate on evaluation data, so a zero trainEnd is rejected as
// a lookahead violation rather than accepted.
func Train(src Source, trainEnd time.Time, percentile float64) (Threshold, error) {
	if trainEnd.IsZero() {
		return Threshold{}, apperrors.NewLookaheadViolation("threshold calibration requires a training boundary")
	}
	if percentile <= 0 || percentile >= 100 {
		return Threshold{}, fmt.Errorf("threshold percentile must be in (0, 100), got %g", percentile)
	}

	var values []float64
	for i := 0; i < src.Len(); i++ {
		date, v, valid := src.At(i)
		if !valid || !date.Before(trainEnd) {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		// A history lying entirely past the boundary is an
		// insufficient-history condition, so the pipeline can drop the
		// market instead of failing the run.
		return Threshold{}, fmt.Errorf("%w: no valid observations before %s to calibrate threshold",
			apperrors.ErrInsufficientHistory, trainEnd.Format("2006-01-02"))
	}

	return Threshold{
		value:      Quantile(values, percentile),
		percentile: percentile,
		trainEnd:   trainEnd,
		samples:    len(values),
	}, nil
}

// Value returns the calibrated cutoff
func (t Threshold) Value() float64 {
	return t.value
}

// Percentile returns the calibration percentile
func (t Threshold) Percentile() float64 {
	return t.percentile
}

// TrainEnd returns the exclusive training boundary
func (t Threshold) TrainEnd() time.Time {
	return t.trainEnd
}

// Samples returns the number of training observations used
func (t Threshold) Samples() int {
	return t.samples
}

// Quantile returns the p-th percentile of values using linear
// interpolation between order statistics at index p/100*(n-1). The
// input is copied, not reordered.
func Quantile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	h := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
