// Package study runs the full entanglement-entropy study: one
// parameterized pipeline per market (fetch, align, entropy, signals,
// backtest) plus the volatility-index baseline, aggregated into a
// cross-market comparison. Market pipelines share nothing but
// configuration and the price cache; a market that fails on history
// grounds is reported as a failure row while the others continue.
//
// The pipeline is phase-structured so the operation engine can drive
// the same code step by step with progress reporting, while Run
// composes the phases for batch callers.
package study
