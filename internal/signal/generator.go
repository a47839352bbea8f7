package signal

import (
	"time"
)

// Direction is the discrete state a signal can take
type Direction string

const (
	// Enter marks a date whose indicator exceeds the threshold
	Enter Direction = "enter"

	// Neutral marks every other date, invalid readings included
	Neutral Direction = "neutral"
)

// Signal is one dated entry decision in the evaluation period.
type Signal struct {
	Date      time.Time
	Direction Direction
	Value     float64
}

// Generate emits one signal per evaluation-period observation of src:
// Enter when the reading is valid and strictly exceeds the threshold,
// Neutral otherwise. Observations before the threshold's training
// boundary never signal; they belong to calibration.
func Generate(src Source, threshold Threshold) []Signal {
	var signals []Signal
	for i := 0; i < src.Len(); i++ {
		date, v, valid := src.At(i)
		if date.Before(threshold.trainEnd) {
			continue
		}

		s := Signal{Date: date, Direction: Neutral, Value: v}
		if valid && v > threshold.value {
			s.Direction = Enter
		}
		signals = append(signals, s)
	}
	return signals
}

// Entries filters signals down to the Enter dates
func Entries(signals []Signal) []Signal {
	var out []Signal
	for _, s := range signals {
		if s.Direction == Enter {
			out = append(out, s)
		}
	}
	return out
}
