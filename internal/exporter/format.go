package exporter

import (
	"fmt"
)

// formatFloat formats a measured quantity (thresholds, returns) with
// six decimal places so small forward returns survive the round trip
func formatFloat(f float64) string {
	return fmt.Sprintf("%.6f", f)
}

// formatStat formats a statistic in compact scientific-aware notation;
// p-values can be far below any fixed decimal precision
func formatStat(f float64) string {
	return fmt.Sprintf("%.6g", f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return fmt.Sprintf("%d", i)
}
