package operations

import (
	"time"
)

// Config represents the run execution configuration
type Config struct {
	// Step-specific timeouts
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	// Retry configuration for retryable step failures
	RetryConfig RetryConfig `json:"retry_config"`

	// How long finished run snapshots stay available to observers
	SnapshotRetention time.Duration `json:"snapshot_retention"`
}

// NewConfig returns the default run configuration
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDFetch:    DefaultFetchTimeout,
			StepIDEntropy:  DefaultEntropyTimeout,
			StepIDBacktest: DefaultBacktestTimeout,
			StepIDExport:   DefaultExportTimeout,
		},
		RetryConfig:       NewRetryConfig(),
		SnapshotRetention: 24 * time.Hour,
	}
}

// GetStepTimeout returns the timeout for a specific step
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for a specific step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}
