// Package signal converts a dated indicator series into discrete entry
// signals through a percentile threshold calibrated on the training
// period only. The Threshold type has a single constructor that drops
// every observation on or after the training boundary before computing
// the quantile, so evaluation data cannot leak into calibration.
package signal
