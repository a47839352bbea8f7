package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"emis/internal/config"
	"emis/pkg/contracts/domain"
)

// WorkbookExporter writes the study result as one Excel workbook with
// a summary sheet, the sensitivity and quantile tables, and one detail
// sheet per market.
type WorkbookExporter struct {
	paths *config.Paths
}

// NewWorkbookExporter creates an Excel workbook exporter
func NewWorkbookExporter(paths *config.Paths) *WorkbookExporter {
	return &WorkbookExporter{paths: paths}
}

// Export writes the workbook to the well-known results path
func (e *WorkbookExporter) Export(result *domain.StudyResult) error {
	if result == nil {
		return fmt.Errorf("no study result to export")
	}

	if err := os.MkdirAll(filepath.Dir(e.paths.ResultsXLSX), 0755); err != nil {
		return fmt.Errorf("create reports directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSummary(f, result); err != nil {
		return err
	}
	if err := e.writeSensitivity(f, result); err != nil {
		return err
	}
	if err := e.writeQuantiles(f, result); err != nil {
		return err
	}
	for _, m := range result.Markets {
		if err := e.writeMarket(f, &m); err != nil {
			return err
		}
	}

	if err := f.SaveAs(e.paths.ResultsXLSX); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (e *WorkbookExporter) writeSummary(f *excelize.File, result *domain.StudyResult) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Run", result.RunID},
		{"Started", result.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", result.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Window", result.Window},
		{"Threshold percentile", result.ThresholdPercentile},
		{"Holding period", result.HoldingPeriod},
		{"Trade mode", string(result.TradeMode)},
		{"Training boundary", result.TrainEnd},
		{},
	}

	header := []interface{}{"market", "strategy", "trade_mode", "threshold"}
	for _, h := range statsHeaders {
		header = append(header, h)
	}
	rows = append(rows, header)

	for _, row := range result.Rows() {
		cells := []interface{}{
			row.Market, string(row.Strategy), string(row.TradeMode), row.Threshold,
		}
		rows = append(rows, append(cells, statsCells(row.StrategyStats)...))
	}

	if len(result.Failures) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Dropped markets"})
		for _, failure := range result.Failures {
			rows = append(rows, []interface{}{failure.Market, failure.Error})
		}
	}

	return writeRows(f, sheet, rows)
}

func (e *WorkbookExporter) writeSensitivity(f *excelize.File, result *domain.StudyResult) error {
	const sheet = "Sensitivity"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sensitivity sheet: %w", err)
	}

	header := []interface{}{"market", "percentile", "threshold"}
	for _, h := range statsHeaders {
		header = append(header, h)
	}
	rows := [][]interface{}{header}

	for _, m := range result.Markets {
		for _, row := range m.Sensitivity {
			cells := []interface{}{row.Market, row.Percentile, row.Threshold}
			rows = append(rows, append(cells, statsCells(row.StrategyStats)...))
		}
	}

	return writeRows(f, sheet, rows)
}

func (e *WorkbookExporter) writeQuantiles(f *excelize.File, result *domain.StudyResult) error {
	const sheet = "Quantiles"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create quantiles sheet: %w", err)
	}

	rows := [][]interface{}{
		{"market", "band", "lower_edge", "upper_edge", "samples", "mean_forward_return"},
	}
	for _, m := range result.Markets {
		for _, bucket := range m.Quantiles {
			rows = append(rows, []interface{}{
				bucket.Market, bucket.Band, bucket.LowerEdge, bucket.UpperEdge,
				bucket.Samples, bucket.MeanReturn,
			})
		}
	}

	return writeRows(f, sheet, rows)
}

func (e *WorkbookExporter) writeMarket(f *excelize.File, m *domain.MarketResult) error {
	sheet := fmt.Sprintf("Market %s", m.Market)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet for %s: %w", m.Market, err)
	}

	rows := [][]interface{}{
		{"Market", m.Market},
		{"Benchmark", m.Benchmark},
		{"Universe size", len(m.Instruments)},
		{"Instruments", strings.Join(m.Instruments, " ")},
		{"Excluded", strings.Join(m.Excluded, " ")},
		{"Threshold", m.Threshold},
		{"Entropy from", m.EntropyFrom.Format("2006-01-02")},
		{"Entropy to", m.EntropyTo.Format("2006-01-02")},
		{},
		{"strategy", "trade_mode", "trades", "wins", "win_rate", "p_value_binomial", "mean_return", "significance"},
	}
	for _, row := range m.Rows {
		rows = append(rows, []interface{}{
			string(row.Strategy), string(row.TradeMode), row.Trades, row.Wins,
			row.WinRate, row.PValueBinomial, row.MeanReturn, row.Significance,
		})
	}

	return writeRows(f, sheet, rows)
}

// writeRows fills a sheet top-down; empty rows become spacers
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("cell coordinates (%d,%d): %w", i+1, j+1, err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s on %s: %w", cell, sheet, err)
			}
		}
	}
	return nil
}

// statsCells renders the shared statistics block as native cell values
func statsCells(s domain.StrategyStats) []interface{} {
	return []interface{}{
		s.Trades, s.Wins, s.WinRate, s.PValueBinomial,
		s.MeanReturn, s.StdReturn, s.MinReturn, s.MaxReturn,
		s.TStat, s.PValueT, s.CILow, s.CIHigh, s.Significance,
	}
}
