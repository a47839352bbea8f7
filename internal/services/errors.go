package services

import "errors"

// Service-layer sentinel errors. Handlers map these onto HTTP statuses.
var (
	// Study run errors
	ErrRunNotFound   = errors.New("study run not found")
	ErrRunFinished   = errors.New("study run already finished")
	ErrMarketBusy    = errors.New("market already has a run in flight")
	ErrNoResult      = errors.New("study run has no result yet")
	ErrInvalidMarket = errors.New("unknown market")

	// Entropy series errors
	ErrSeriesNotFound = errors.New("entropy series not computed for market")

	// Data file errors
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFileKind = errors.New("invalid file kind")
	ErrInvalidFileName = errors.New("invalid file name")
)
