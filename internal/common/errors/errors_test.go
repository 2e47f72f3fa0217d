// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDatabaseQueryFailedError("select allocation config", cause)

	assert.Equal(t, "StandardError[DATABASE_QUERY_FAILED]: Database query failed", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Details, "select allocation config")
	assert.False(t, err.Timestamp.IsZero())
}

func TestStandardError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("rank-operators: %w", NewInputValidationError("candidates is required"))

	assert.True(t, stderrors.Is(wrapped, &StandardError{Code: ErrCodeInputValidationFailed}))
	assert.False(t, stderrors.Is(wrapped, &StandardError{Code: ErrCodeRankingFailed}))
}

func TestAsStandardError(t *testing.T) {
	t.Run("wrapped standard error", func(t *testing.T) {
		original := NewCacheUnavailableError(stderrors.New("dial tcp"))
		got := AsStandardError(fmt.Errorf("load: %w", original))
		assert.Same(t, original, got)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := AsStandardError(stderrors.New("boom"))
		assert.Equal(t, ErrCodeInternal, got.Code)
		assert.False(t, got.Retryable)
		assert.Equal(t, "boom", got.Details)
	})
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{
			name:        "validation is terminal",
			err:         NewInputValidationError("limit must be positive"),
			wantCode:    "INVALID_INPUT",
			wantRetries: 0,
		},
		{
			name:        "corridor stats retry",
			err:         NewCorridorStatsUnavailableError("tx-ok", stderrors.New("timeout")),
			wantCode:    "CORRIDOR_STATS_UNAVAILABLE",
			wantRetries: 3,
		},
		{
			name:        "timeout retries twice",
			err:         NewTimeoutError("rank", stderrors.New("deadline exceeded")),
			wantCode:    "TIMEOUT",
			wantRetries: 2,
		},
		{
			name:        "unmapped code passes through",
			err:         AsStandardError(stderrors.New("x")),
			wantCode:    "INTERNAL_ERROR",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_NonRetryableOverridesCode(t *testing.T) {
	err := &StandardError{Code: ErrCodeDatabaseQueryFailed, Message: "m", Retryable: false}
	assert.Equal(t, 0, ConvertToBPMNError(err).Retries)
}

func TestBPMNError_ToErrorVariables(t *testing.T) {
	stdErr := NewAlertPublishFailedError("sns", stderrors.New("throttled")).
		WithMetadata("jobId", "job-1")
	vars := ConvertToBPMNError(stdErr).ToErrorVariables()

	require.Contains(t, vars, "errorCode")
	assert.Equal(t, "ALERT_PUBLISH_FAILED", vars["errorCode"])
	assert.Equal(t, "job-1", vars["jobId"])
	assert.Equal(t, true, vars["retryable"])
}

func TestGetErrorCategory(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrCodeInputParseFailed:          "VALIDATION",
		ErrCodeAllocationConfigInvalid:   "CONFIGURATION",
		ErrCodeAllocationConfigLoadError: "CONFIGURATION",
		ErrCodeRankingFailed:             "SCORING",
		ErrCodeBackhaulEstimationFailed:  "SCORING",
		ErrCodeCorridorStatsUnavailable:  "DATABASE",
		ErrCodeNearbyLoadQueryFailed:     "SEARCH",
		ErrCodeCacheUnavailable:          "CACHE",
		ErrCodeAlertPublishFailed:        "NOTIFICATION",
		ErrCodeTimeout:                   "OTHER",
	}
	for code, want := range cases {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeNearbyLoadQueryFailed))
	assert.True(t, IsRetryableErrorCode(ErrCodeTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeUrgencyScoringFailed))
}
