// internal/common/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	// Input
	ErrCodeInputParseFailed      ErrorCode = "INPUT_PARSE_FAILED"
	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"

	// Scoring
	ErrCodeRankingFailed             ErrorCode = "RANKING_FAILED"
	ErrCodeUrgencyScoringFailed      ErrorCode = "URGENCY_SCORING_FAILED"
	ErrCodeFeedRankFailed            ErrorCode = "FEED_RANK_FAILED"
	ErrCodeBackhaulEstimationFailed  ErrorCode = "BACKHAUL_ESTIMATION_FAILED"
	ErrCodeAllocationConfigInvalid   ErrorCode = "ALLOCATION_CONFIG_INVALID"
	ErrCodeAllocationConfigLoadError ErrorCode = "ALLOCATION_CONFIG_LOAD_FAILED"

	// Collaborators
	ErrCodeCorridorStatsUnavailable ErrorCode = "CORRIDOR_STATS_UNAVAILABLE"
	ErrCodeNearbyLoadQueryFailed    ErrorCode = "NEARBY_LOAD_QUERY_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeAlertPublishFailed       ErrorCode = "ALERT_PUBLISH_FAILED"
	ErrCodeEngineUnavailable        ErrorCode = "ENGINE_UNAVAILABLE"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error shape every worker reports to the engine.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// BPMNError is the engine-facing form of a StandardError.
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

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewInputParseError(err error) *StandardError {
	return newError(ErrCodeInputParseFailed, "Job variables could not be parsed", err.Error(), false, err)
}

func NewInputValidationError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Job variables failed validation", details, false, nil)
}

func NewRankingFailedError(err error) *StandardError {
	return newError(ErrCodeRankingFailed, "Operator ranking failed", err.Error(), false, err)
}

func NewUrgencyScoringFailedError(err error) *StandardError {
	return newError(ErrCodeUrgencyScoringFailed, "Job urgency scoring failed", err.Error(), false, err)
}

func NewFeedRankFailedError(err error) *StandardError {
	return newError(ErrCodeFeedRankFailed, "Feed rank composition failed", err.Error(), false, err)
}

func NewBackhaulEstimationFailedError(err error) *StandardError {
	return newError(ErrCodeBackhaulEstimationFailed, "Backhaul estimation failed", err.Error(), false, err)
}

func NewAllocationConfigInvalidError(err error) *StandardError {
	return newError(ErrCodeAllocationConfigInvalid, "Allocation config is invalid", err.Error(), false, err)
}

func NewAllocationConfigLoadError(err error) *StandardError {
	return newError(ErrCodeAllocationConfigLoadError, "Allocation config could not be loaded", err.Error(), true, err)
}

func NewCorridorStatsUnavailableError(corridorID string, err error) *StandardError {
	return newError(ErrCodeCorridorStatsUnavailable, "Corridor statistics unavailable",
		fmt.Sprintf("corridorId: %s, error: %v", corridorID, err), true, err)
}

func NewNearbyLoadQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeNearbyLoadQueryFailed, "Nearby load count query failed",
		fmt.Sprintf("index: %s, error: %v", index, err), true, err)
}

func NewDatabaseQueryFailedError(query string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query failed",
		fmt.Sprintf("query: %s, error: %v", query, err), true, err)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Cache unavailable", err.Error(), true, err)
}

func NewAlertPublishFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeAlertPublishFailed, "Urgency alert delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

func NewEngineUnavailableError(err error) *StandardError {
	return newError(ErrCodeEngineUnavailable, "Workflow engine unavailable", err.Error(), true, err)
}

func NewTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Operation '%s' timed out", operation), err.Error(), true, err)
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInputParseFailed:          "INVALID_INPUT",
	ErrCodeInputValidationFailed:     "INVALID_INPUT",
	ErrCodeRankingFailed:             "RANKING_FAILED",
	ErrCodeUrgencyScoringFailed:      "URGENCY_SCORING_FAILED",
	ErrCodeFeedRankFailed:            "FEED_RANK_FAILED",
	ErrCodeBackhaulEstimationFailed:  "BACKHAUL_ESTIMATION_FAILED",
	ErrCodeAllocationConfigInvalid:   "ALLOCATION_CONFIG_INVALID",
	ErrCodeAllocationConfigLoadError: "ALLOCATION_CONFIG_LOAD_FAILED",
	ErrCodeCorridorStatsUnavailable:  "CORRIDOR_STATS_UNAVAILABLE",
	ErrCodeNearbyLoadQueryFailed:     "NEARBY_LOAD_QUERY_FAILED",
	ErrCodeDatabaseQueryFailed:       "DATABASE_QUERY_FAILED",
	ErrCodeCacheUnavailable:          "CACHE_UNAVAILABLE",
	ErrCodeAlertPublishFailed:        "ALERT_PUBLISH_FAILED",
	ErrCodeEngineUnavailable:         "ENGINE_UNAVAILABLE",
	ErrCodeTimeout:                   "TIMEOUT",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseQueryFailed,
		ErrCodeCacheUnavailable,
		ErrCodeAllocationConfigLoadError,
		ErrCodeCorridorStatsUnavailable,
		ErrCodeNearbyLoadQueryFailed,
		ErrCodeAlertPublishFailed,
		ErrCodeEngineUnavailable:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// AsStandardError unwraps err into a StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INPUT"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "RANKING") || strings.Contains(codeStr, "SCORING") ||
		strings.Contains(codeStr, "FEED") || strings.Contains(codeStr, "BACKHAUL"):
		return "SCORING"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CORRIDOR"):
		return "DATABASE"
	case strings.Contains(codeStr, "NEARBY"):
		return "SEARCH"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "ALERT"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
