package exporter

import (
	"fmt"

	"emis/internal/config"
	"emis/pkg/contracts/domain"
)

// Report file names under the reports directory. The main results
// table lives at the well-known paths.ResultsCSV location; the
// companion tables sit next to it.
const (
	sensitivityCSVName = "study_sensitivity.csv"
	quantilesCSVName   = "study_quantiles.csv"
	failuresCSVName    = "study_failures.csv"
)

// statsHeaders are the shared evaluation columns of every strategy row
var statsHeaders = []string{
	"trades", "wins", "win_rate", "p_value_binomial",
	"mean_return", "std_return", "min_return", "max_return",
	"t_stat", "p_value_t", "ci_low", "ci_high", "significance",
}

// ResultsExporter writes the study's CSV reports
type ResultsExporter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
}

// NewResultsExporter creates a CSV results exporter
func NewResultsExporter(paths *config.Paths) *ResultsExporter {
	return &ResultsExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
	}
}

// Export writes the results, sensitivity and quantile tables. The
// failures table is only written when a market was dropped.
func (e *ResultsExporter) Export(result *domain.StudyResult) error {
	if result == nil {
		return fmt.Errorf("no study result to export")
	}

	if err := e.exportResults(result); err != nil {
		return fmt.Errorf("export results table: %w", err)
	}
	if err := e.exportSensitivity(result); err != nil {
		return fmt.Errorf("export sensitivity table: %w", err)
	}
	if err := e.exportQuantiles(result); err != nil {
		return fmt.Errorf("export quantile table: %w", err)
	}
	if len(result.Failures) > 0 {
		if err := e.exportFailures(result); err != nil {
			return fmt.Errorf("export failures table: %w", err)
		}
	}
	return nil
}

func (e *ResultsExporter) exportResults(result *domain.StudyResult) error {
	headers := append([]string{"market", "strategy", "trade_mode", "threshold"}, statsHeaders...)

	var records [][]string
	for _, row := range result.Rows() {
		record := []string{
			row.Market,
			string(row.Strategy),
			string(row.TradeMode),
			formatFloat(row.Threshold),
		}
		records = append(records, append(record, statsRecord(row.StrategyStats)...))
	}

	return e.csvWriter.WriteSimpleCSV(e.paths.ResultsCSV, headers, records)
}

func (e *ResultsExporter) exportSensitivity(result *domain.StudyResult) error {
	headers := append([]string{"market", "percentile", "threshold"}, statsHeaders...)

	var records [][]string
	for _, m := range result.Markets {
		for _, row := range m.Sensitivity {
			record := []string{
				row.Market,
				formatStat(row.Percentile),
				formatFloat(row.Threshold),
			}
			records = append(records, append(record, statsRecord(row.StrategyStats)...))
		}
	}

	return e.csvWriter.WriteSimpleCSV(sensitivityCSVName, headers, records)
}

func (e *ResultsExporter) exportQuantiles(result *domain.StudyResult) error {
	headers := []string{"market", "band", "lower_edge", "upper_edge", "samples", "mean_forward_return"}

	var records [][]string
	for _, m := range result.Markets {
		for _, bucket := range m.Quantiles {
			records = append(records, []string{
				bucket.Market,
				bucket.Band,
				formatFloat(bucket.LowerEdge),
				formatFloat(bucket.UpperEdge),
				formatInt(bucket.Samples),
				formatFloat(bucket.MeanReturn),
			})
		}
	}

	return e.csvWriter.WriteSimpleCSV(quantilesCSVName, headers, records)
}

func (e *ResultsExporter) exportFailures(result *domain.StudyResult) error {
	var records [][]string
	for _, f := range result.Failures {
		records = append(records, []string{f.Market, f.Error})
	}
	return e.csvWriter.WriteSimpleCSV(failuresCSVName, []string{"market", "error"}, records)
}

// statsRecord renders the shared statistics block in statsHeaders order
func statsRecord(s domain.StrategyStats) []string {
	return []string{
		formatInt(s.Trades),
		formatInt(s.Wins),
		formatFloat(s.WinRate),
		formatStat(s.PValueBinomial),
		formatFloat(s.MeanReturn),
		formatFloat(s.StdReturn),
		formatFloat(s.MinReturn),
		formatFloat(s.MaxReturn),
		formatStat(s.TStat),
		formatStat(s.PValueT),
		formatFloat(s.CILow),
		formatFloat(s.CIHigh),
		s.Significance,
	}
}
