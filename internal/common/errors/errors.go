// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Review engine
	ErrCodeProviderCallFailed  ErrorCode = "PROVIDER_CALL_FAILED"
	ErrCodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeResponseParseFailed ErrorCode = "RESPONSE_PARSE_FAILED"
	ErrCodePartialData         ErrorCode = "PARTIAL_DATA"
	ErrCodeReviewInputInvalid  ErrorCode = "REVIEW_INPUT_INVALID"

	// Takeoff data access
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeTakeoffNotFound          ErrorCode = "TAKEOFF_NOT_FOUND"
	ErrCodePageImageMissing         ErrorCode = "PAGE_IMAGE_MISSING"

	// Cost-code catalog
	ErrCodeCatalogSearchFailed ErrorCode = "CATALOG_SEARCH_FAILED"
	ErrCodeCatalogTimeout      ErrorCode = "CATALOG_TIMEOUT"
	ErrCodeStandardUnknown     ErrorCode = "COST_CODE_STANDARD_UNKNOWN"

	// Bid records and notification
	ErrCodeBidInsertFailed        ErrorCode = "BID_INSERT_FAILED"
	ErrCodeDuplicateBid           ErrorCode = "DUPLICATE_BID"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
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

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
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

// --- Constructors ---

// NewProviderCallFailedError creates a retryable inference-gateway error.
func NewProviderCallFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderCallFailed,
		Message:   "Inference gateway call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable inference-gateway timeout error.
func NewProviderTimeoutError(pass string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Inference gateway call exceeded its deadline",
		Details:   fmt.Sprintf("pass: %s", pass),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewResponseParseFailedError creates a retryable parse error: the model
// produced text with no recoverable JSON, even after repair.
func NewResponseParseFailedError(pass string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseParseFailed,
		Message:   "Model response contained no recoverable JSON",
		Details:   fmt.Sprintf("pass: %s, error: %s", pass, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPartialDataError creates a non-retryable error for responses that
// parsed but carried none of the expected keys.
func NewPartialDataError(pass, detail string) *StandardError {
	return &StandardError{
		Code:      ErrCodePartialData,
		Message:   "Model response parsed but expected keys were absent",
		Details:   fmt.Sprintf("pass: %s, %s", pass, detail),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReviewInputInvalidError creates a non-retryable payload validation error.
func NewReviewInputInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReviewInputInvalid,
		Message:   "Review job variables failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTakeoffNotFoundError creates a non-retryable lookup error.
func NewTakeoffNotFoundError(planID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTakeoffNotFound,
		Message:   "No takeoff exists for plan",
		Details:   fmt.Sprintf("planId: %s", planID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogSearchFailedError creates a retryable cost-code catalog error.
func NewCatalogSearchFailedError(standard string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogSearchFailed,
		Message:   "Cost-code catalog search error",
		Details:   fmt.Sprintf("standard: %s, error: %s", standard, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBidInsertFailedError creates a retryable database insert error.
func NewBidInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBidInsertFailed,
		Message:   "Bid record insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// --- BPMN conversion ---

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderCallFailed,
		ErrCodeResponseParseFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeCatalogSearchFailed,
		ErrCodeBidInsertFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeDatabaseConnectionFailed:
		return 3

	case ErrCodeProviderTimeout,
		ErrCodeQueryTimeout,
		ErrCodeCatalogTimeout:
		return 2

	default:
		return 0 // validation and not-found errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
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

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "RESPONSE") || strings.Contains(codeStr, "PARTIAL"):
		return "AI"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "BID"):
		return "DATABASE"
	case strings.Contains(codeStr, "CATALOG") || strings.Contains(codeStr, "STANDARD"):
		return "CATALOG"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
