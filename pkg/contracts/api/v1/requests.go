// Package api contains API contract definitions for the entropy study
// service. Version v1 represents the current stable API version.
package api

// StudyRunRequest represents a request to start a study run. Zero
// values fall back to the server's configured defaults.
type StudyRunRequest struct {
	Markets             []string `json:"markets,omitempty" validate:"omitempty,dive,alpha"`
	Window              int      `json:"window,omitempty" validate:"omitempty,min=2,max=756"`
	ThresholdPercentile float64  `json:"threshold_percentile,omitempty" validate:"omitempty,gt=0,lt=100"`
	HoldingPeriod       int      `json:"holding_period,omitempty" validate:"omitempty,min=1,max=252"`
	TradeMode           string   `json:"trade_mode,omitempty" validate:"omitempty,oneof=overlapping nonoverlapping weekly"`
	RefreshData         bool     `json:"refresh_data,omitempty"`
	Recompute           bool     `json:"recompute,omitempty"`
}

// StudyRunResponse acknowledges an accepted run
type StudyRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// EntropyQueryRequest represents query parameters for an entropy series
type EntropyQueryRequest struct {
	Market string `json:"market" param:"market" validate:"required,alpha"`
	From   string `json:"from" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// DataFileInfo describes one cache or report artifact
type DataFileInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // cache|report
	SizeKB   int64  `json:"size_kb"`
	Modified string `json:"modified"`
}
