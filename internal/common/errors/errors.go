// Package errors provides the error taxonomy shared by the query pipeline,
// the HTTP boundary and the Zeebe job worker.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is a stable, machine-readable error classification.
type ErrorCode string

const (
	// Store
	ErrCodeStoreUnavailable        ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeStatementTimeout        ErrorCode = "STATEMENT_TIMEOUT"
	ErrCodeQueryFailed             ErrorCode = "QUERY_FAILED"
	ErrCodeInitializationExhausted ErrorCode = "INITIALIZATION_EXHAUSTED"

	// Pipeline
	ErrCodeExtractionMalformed ErrorCode = "EXTRACTION_MALFORMED"
	ErrCodeInvalidDescriptor   ErrorCode = "INVALID_DESCRIPTOR"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"

	// Model capability
	ErrCodeLLMTimeout     ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"

	// Auxiliary
	ErrCodeMemoryPersistFailed ErrorCode = "MEMORY_PERSIST_FAILED"
	ErrCodeSearchFailed        ErrorCode = "SEARCH_FAILED"
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError is the shape thrown back to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "store unavailable",
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewStatementTimeoutError(timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeStatementTimeout,
		Message:   "timeout",
		Details:   fmt.Sprintf("statement exceeded %s", timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryFailed,
		Message:   "query failed",
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInitializationExhaustedError is fatal: the process must not serve without a store.
func NewInitializationExhaustedError(attempts int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInitializationExhausted,
		Message:   "store initialization exhausted",
		Details:   fmt.Sprintf("attempts: %d, last error: %s", attempts, detailsOf(err)),
		Retryable: false,
		Metadata:  map[string]interface{}{"attempts": attempts},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewExtractionMalformedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionMalformed,
		Message:   "model extraction output malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidDescriptorError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDescriptor,
		Message:   "invalid query descriptor",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "model call timeout",
		Details:   "completion exceeded its timeout",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewLLMUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMUnavailable,
		Message:   "model capability unavailable",
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewMemoryPersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMemoryPersistFailed,
		Message:   "memory persistence failed",
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchFailed,
		Message:   "search failed",
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeStoreUnavailable:        "STORE_UNAVAILABLE",
	ErrCodeStatementTimeout:        "STORE_UNAVAILABLE",
	ErrCodeQueryFailed:             "QUERY_FAILED",
	ErrCodeInitializationExhausted: "STORE_UNAVAILABLE",
	ErrCodeValidationFailed:        "VALIDATION_FAILED",
	ErrCodeInvalidDescriptor:       "INVALID_DESCRIPTOR",
	ErrCodeInvalidRequest:          "INVALID_REQUEST",
	ErrCodeLLMTimeout:              "LLM_TIMEOUT",
	ErrCodeLLMUnavailable:          "LLM_UNAVAILABLE",
}

// GetRetryCount returns the job retry budget for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable:
		return 3
	case ErrCodeStatementTimeout, ErrCodeLLMUnavailable:
		return 2
	case ErrCodeLLMTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}
	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory groups codes for log aggregation.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORE") || strings.Contains(codeStr, "STATEMENT") ||
		strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "INITIALIZATION"):
		return "DATABASE"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "EXTRACTION"):
		return "AI"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "MEMORY"):
		return "MEMORY"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
