package exporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuri/excelize/v2"
)

func TestWorkbookExporter(t *testing.T) {
	paths := testPaths(t)
	exporter := NewWorkbookExporter(paths)

	require.NoError(t, exporter.Export(fixtureResult()))

	f, err := excelize.OpenFile(paths.ResultsXLSX)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Summary")
	assert.Contains(t, sheets, "Sensitivity")
	assert.Contains(t, sheets, "Quantiles")
	assert.Contains(t, sheets, "Market us")

	runID, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)

	window, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "60", window)

	// Results table starts after the parameter block and a spacer.
	strategy, err := f.GetCellValue("Summary", "B11")
	require.NoError(t, err)
	assert.Equal(t, "entropy", strategy)

	benchmark, err := f.GetCellValue("Market us", "B2")
	require.NoError(t, err)
	assert.Equal(t, "^GSPC", benchmark)

	band, err := f.GetCellValue("Quantiles", "B2")
	require.NoError(t, err)
	assert.Equal(t, "low", band)
}

func TestWorkbookExporterNilResult(t *testing.T) {
	exporter := NewWorkbookExporter(testPaths(t))
	assert.Error(t, exporter.Export(nil))
}
