// Package backtest turns entry signals into forward trades on a
// benchmark index and aggregates them into win-rate and distribution
// statistics. A win rate is never reported alone: every stats block
// carries the sample size and significance estimates beside it.
//
// Overlapping holding periods are kept as independent samples by
// default; that inflates the effective sample count and is a
// deliberate, documented choice. The non-overlapping and weekly modes
// exist as explicit configuration, never as silent behavior.
package backtest
