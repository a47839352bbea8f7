package operations

import (
	"time"

	"emis/internal/config"
	"emis/internal/study"
	"emis/pkg/contracts/domain"
)

// Step identifiers, in execution order
const (
	StepIDFetch    = "fetch"
	StepIDAlign    = "align"
	StepIDEntropy  = "entropy"
	StepIDSignals  = "signals"
	StepIDBacktest = "backtest"
	StepIDExport   = "export"
)

// Step display names
const (
	StepNameFetch    = "Price Fetch"
	StepNameAlign    = "Return Alignment"
	StepNameEntropy  = "Entropy Computation"
	StepNameSignals  = "Signal Generation"
	StepNameBacktest = "Backtesting"
	StepNameExport   = "Report Export"
)

// Default timeouts
const (
	DefaultStepTimeout     = 10 * time.Minute
	DefaultFetchTimeout    = 30 * time.Minute
	DefaultEntropyTimeout  = 30 * time.Minute
	DefaultBacktestTimeout = 10 * time.Minute
	DefaultExportTimeout   = 5 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RunRequest represents a request to execute a study run
type RunRequest struct {
	ID      string          `json:"id"`
	Markets []config.Market `json:"-"`
	Params  study.Params    `json:"-"`
	TraceID string          `json:"trace_id,omitempty"`
}

// RunResponse represents the outcome of a study run execution
type RunResponse struct {
	ID       string                `json:"id"`
	Status   RunStatus             `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Result   *domain.StudyResult   `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}
