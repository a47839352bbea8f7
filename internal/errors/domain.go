package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the study pipeline. Callers branch on these with
// errors.Is; the typed errors below carry the per-case context and
// unwrap to them.
var (
	// ErrDataUnavailable marks an instrument whose history cannot be
	// fetched or loaded. The instrument is excluded and the run continues.
	ErrDataUnavailable = errors.New("price data unavailable")

	// ErrInsufficientHistory marks a market whose aligned history is too
	// short for even one rolling window. The market pipeline fails.
	ErrInsufficientHistory = errors.New("insufficient aligned history")

	// ErrDegenerateCorrelation marks a window whose correlation matrix
	// is not positive definite. The point is recorded as invalid and
	// the series continues.
	ErrDegenerateCorrelation = errors.New("degenerate correlation matrix")

	// ErrLookaheadViolation marks a programming error where evaluation
	// data reached threshold calibration. Never expected at runtime.
	ErrLookaheadViolation = errors.New("lookahead violation")

	// ErrUniverseTooSmall marks a market left with too few instruments
	// after exclusions for its correlation structure to be meaningful.
	ErrUniverseTooSmall = errors.New("universe too small")
)

// DataUnavailableError reports a single instrument that could not be
// loaded from cache or fetched from the source.
type DataUnavailableError struct {
	Symbol string
	Cause  error
}

func (e *DataUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("price data unavailable for %s: %v", e.Symbol, e.Cause)
	}
	return fmt.Sprintf("price data unavailable for %s", e.Symbol)
}

func (e *DataUnavailableError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrDataUnavailable, e.Cause}
	}
	return []error{ErrDataUnavailable}
}

// NewDataUnavailable wraps a fetch or load failure for one instrument.
func NewDataUnavailable(symbol string, cause error) *DataUnavailableError {
	return &DataUnavailableError{Symbol: symbol, Cause: cause}
}

// InsufficientHistoryError reports a market whose common date range
// cannot support a single rolling window.
type InsufficientHistoryError struct {
	Market string
	Need   int
	Got    int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient aligned history for %s: need %d common dates, got %d", e.Market, e.Need, e.Got)
}

func (e *InsufficientHistoryError) Unwrap() error {
	return ErrInsufficientHistory
}

// NewInsufficientHistory reports too few common dates for a market.
func NewInsufficientHistory(market string, need, got int) *InsufficientHistoryError {
	return &InsufficientHistoryError{Market: market, Need: need, Got: got}
}

// DegenerateCorrelationError reports one rolling window whose
// correlation matrix failed the positive-definiteness check.
type DegenerateCorrelationError struct {
	Date time.Time
}

func (e *DegenerateCorrelationError) Error() string {
	return fmt.Sprintf("degenerate correlation matrix at %s: not positive definite", e.Date.Format("2006-01-02"))
}

func (e *DegenerateCorrelationError) Unwrap() error {
	return ErrDegenerateCorrelation
}

// NewDegenerateCorrelation reports a non-positive-definite correlation
// matrix for the window stamped at the given date.
func NewDegenerateCorrelation(date time.Time) *DegenerateCorrelationError {
	return &DegenerateCorrelationError{Date: date}
}

// LookaheadViolationError reports evaluation-period data reaching a
// calibration path. Treated as a defect, not an operational condition.
type LookaheadViolationError struct {
	Detail string
}

func (e *LookaheadViolationError) Error() string {
	return fmt.Sprintf("lookahead violation: %s", e.Detail)
}

func (e *LookaheadViolationError) Unwrap() error {
	return ErrLookaheadViolation
}

// NewLookaheadViolation reports calibration input that extends past the
// training boundary.
func NewLookaheadViolation(detail string) *LookaheadViolationError {
	return &LookaheadViolationError{Detail: detail}
}

// UniverseTooSmallError reports a market whose surviving universe fell
// below the configured minimum.
type UniverseTooSmallError struct {
	Market string
	Min    int
	Got    int
}

func (e *UniverseTooSmallError) Error() string {
	return fmt.Sprintf("universe too small for %s: need at least %d instruments, got %d", e.Market, e.Min, e.Got)
}

func (e *UniverseTooSmallError) Unwrap() error {
	return ErrUniverseTooSmall
}

// NewUniverseTooSmall reports a post-exclusion universe below the minimum.
func NewUniverseTooSmall(market string, min, got int) *UniverseTooSmallError {
	return &UniverseTooSmallError{Market: market, Min: min, Got: got}
}

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeNetwork    ErrorType = "NETWORK"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeNumeric    ErrorType = "NUMERIC"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewNumericError creates an error for a failed numerical routine
func NewNumericError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNumeric, message, cause)
}
