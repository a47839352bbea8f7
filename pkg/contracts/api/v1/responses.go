package api

// EntropyPoint is one dated entropy reading in API form. Invalid
// windows keep their date but carry no value.
type EntropyPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value,omitempty"`
	Valid bool     `json:"valid"`
}

// EntropySeriesResponse carries one market's entropy series
type EntropySeriesResponse struct {
	Market string         `json:"market"`
	Count  int            `json:"count"`
	Gaps   int            `json:"gaps"`
	Points []EntropyPoint `json:"points"`
}

// RunListResponse wraps the observer snapshots of all known runs
type RunListResponse struct {
	Runs  interface{} `json:"runs"`
	Count int         `json:"count"`
}
