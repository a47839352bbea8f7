// Package exporter writes study artifacts to disk.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// ResultsExporter: Writes the cross-market results, sensitivity and
// quantile tables as CSV reports.
//
// WorkbookExporter: Assembles the same tables plus per-market detail
// sheets into a single Excel workbook.
//
// Example usage:
//
//	results := exporter.NewResultsExporter(paths)
//	if err := results.Export(studyResult); err != nil { ... }
//
//	workbook := exporter.NewWorkbookExporter(paths)
//	if err := workbook.Export(studyResult); err != nil { ... }
package exporter
