package operations

import (
	"context"
	"fmt"

	"emis/internal/exporter"
	"emis/internal/study"
)

// FetchStep downloads daily closes for every instrument in the run's
// markets plus the volatility benchmark. Network failures are retryable.
type FetchStep struct {
	BaseStep
	pipeline *study.Pipeline
}

// NewFetchStep creates the price fetch step
func NewFetchStep(pipeline *study.Pipeline) *FetchStep {
	return &FetchStep{
		BaseStep: NewBaseStep(StepIDFetch, StepNameFetch),
		pipeline: pipeline,
	}
}

func (s *FetchStep) Validate(state *RunState) error {
	if state.Run() == nil {
		return NewValidationError(StepIDFetch, "run not attached to state")
	}
	return nil
}

func (s *FetchStep) Execute(ctx context.Context, state *RunState) error {
	if err := s.pipeline.Fetch(ctx, state.Run()); err != nil {
		// Upstream data sources fail transiently; let the manager retry.
		return NewExecutionError(StepIDFetch, err, true)
	}
	return nil
}

// AlignStep builds the per-market return tables on the union calendar.
type AlignStep struct {
	BaseStep
	pipeline *study.Pipeline
}

// NewAlignStep creates the return alignment step
func NewAlignStep(pipeline *study.Pipeline) *AlignStep {
	return &AlignStep{
		BaseStep: NewBaseStep(StepIDAlign, StepNameAlign),
		pipeline: pipeline,
	}
}

func (s *AlignStep) Validate(state *RunState) error {
	run := state.Run()
	if run == nil {
		return NewValidationError(StepIDAlign, "run not attached to state")
	}
	if len(run.Markets()) == 0 {
		return NewValidationError(StepIDAlign, "no markets fetched")
	}
	return nil
}

func (s *AlignStep) Execute(ctx context.Context, state *RunState) error {
	if err := s.pipeline.Align(ctx, state.Run()); err != nil {
		return NewExecutionError(StepIDAlign, err, false)
	}
	return nil
}

// EntropyStep computes the rolling correlation-matrix entropy series
// for every market, reusing cached series when inputs are unchanged.
type EntropyStep struct {
	BaseStep
	pipeline *study.Pipeline
}

// NewEntropyStep creates the entropy computation step
func NewEntropyStep(pipeline *study.Pipeline) *EntropyStep {
	return &EntropyStep{
		BaseStep: NewBaseStep(StepIDEntropy, StepNameEntropy),
		pipeline: pipeline,
	}
}

func (s *EntropyStep) Execute(ctx context.Context, state *RunState) error {
	if err := s.pipeline.ComputeEntropy(ctx, state.Run()); err != nil {
		return NewExecutionError(StepIDEntropy, err, false)
	}
	return nil
}

// SignalsStep derives the percentile threshold from the training window
// and emits entry signals for the evaluation window.
type SignalsStep struct {
	BaseStep
	pipeline *study.Pipeline
}

// NewSignalsStep creates the signal generation step
func NewSignalsStep(pipeline *study.Pipeline) *SignalsStep {
	return &SignalsStep{
		BaseStep: NewBaseStep(StepIDSignals, StepNameSignals),
		pipeline: pipeline,
	}
}

func (s *SignalsStep) Execute(ctx context.Context, state *RunState) error {
	if err := s.pipeline.GenerateSignals(ctx, state.Run()); err != nil {
		return NewExecutionError(StepIDSignals, err, false)
	}
	return nil
}

// BacktestStep evaluates forward returns per market, runs the
// sensitivity and quantile analyses, and assembles the study result.
type BacktestStep struct {
	BaseStep
	pipeline *study.Pipeline
}

// NewBacktestStep creates the backtesting step
func NewBacktestStep(pipeline *study.Pipeline) *BacktestStep {
	return &BacktestStep{
		BaseStep: NewBaseStep(StepIDBacktest, StepNameBacktest),
		pipeline: pipeline,
	}
}

func (s *BacktestStep) Execute(ctx context.Context, state *RunState) error {
	run := state.Run()
	if err := s.pipeline.Backtest(ctx, run); err != nil {
		return NewExecutionError(StepIDBacktest, err, false)
	}
	state.SetResult(s.pipeline.Assemble(run))
	return nil
}

// ExportStep writes the CSV tables and the Excel workbook under the
// reports directory.
type ExportStep struct {
	BaseStep
	results  *exporter.ResultsExporter
	workbook *exporter.WorkbookExporter
}

// NewExportStep creates the report export step
func NewExportStep(results *exporter.ResultsExporter, workbook *exporter.WorkbookExporter) *ExportStep {
	return &ExportStep{
		BaseStep: NewBaseStep(StepIDExport, StepNameExport),
		results:  results,
		workbook: workbook,
	}
}

func (s *ExportStep) Validate(state *RunState) error {
	if state.Result() == nil {
		return NewValidationError(StepIDExport, "no study result to export")
	}
	return nil
}

func (s *ExportStep) Execute(ctx context.Context, state *RunState) error {
	result := state.Result()
	if err := s.results.Export(result); err != nil {
		return NewExecutionError(StepIDExport, fmt.Errorf("writing csv reports: %w", err), false)
	}
	if err := s.workbook.Export(result); err != nil {
		return NewExecutionError(StepIDExport, fmt.Errorf("writing workbook: %w", err), false)
	}
	return nil
}
