package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("connection refused")
	domainErr := NewDomainError(ErrorTypeRetrieval, "vector search failed", baseErr)

	assert.Equal(t, ErrorTypeRetrieval, domainErr.Type)
	assert.Equal(t, "vector search failed", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeGeneration,
				Message: "response generation failed",
				Err:     errors.New("timeout"),
			},
			wantMsg: "generation: response generation failed (timeout)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeEmptyContext,
				Message: "no documents",
			},
			wantMsg: "empty_context: no documents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    WrapRetrieval("embedding failed", errors.New("dial tcp")),
			target: ErrRetrievalFailure,
			want:   true,
		},
		{
			name:   "different error type",
			err:    InvalidArgument("bad"),
			target: ErrEmptyContext,
			want:   false,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("call: %w", ErrEmptyContext),
			target: ErrEmptyContext,
			want:   true,
		},
		{
			name:   "not a domain error",
			err:    ErrGenerationFailure,
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)

	err.WithDetail("field", "conversationId").WithDetail("reason", "blank")

	assert.Equal(t, "conversationId", err.Details["field"])
	assert.Equal(t, "blank", err.Details["reason"])
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"validation", ErrInvalidChunkConfig, IsValidationError, true},
		{"wrapped validation", fmt.Errorf("x: %w", ErrEmptyPrompt), IsValidationError, true},
		{"retrieval", ErrSearchFailed, IsRetrievalError, true},
		{"retrieval is not generation", ErrEmbeddingFailed, IsGenerationError, false},
		{"empty context", ErrEmptyContext, IsEmptyContextError, true},
		{"generation", ErrStreamInterrupted, IsGenerationError, true},
		{"unauthorized", ErrInvalidToken, IsUnauthorizedError, true},
		{"not found", ErrNotFound, IsNotFoundError, true},
		{"internal", ErrDatabaseError, IsInternalError, true},
		{"regular error", errors.New("regular"), IsInternalError, false},
		{"nil error", nil, IsValidationError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"validation", ErrInvalidFilter, ErrorTypeValidation},
		{"empty context", ErrEmptyContext, ErrorTypeEmptyContext},
		{"generation", WrapGeneration("boom", errors.New("x")), ErrorTypeGeneration},
		{"regular error", errors.New("regular"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeEmptyContext, "no documents", nil)
	err.WithDetail("top_k", 3).WithDetail("threshold", 0.3)

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, 3, details["top_k"])
	assert.Equal(t, 0.3, details["threshold"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestWrapHelpers(t *testing.T) {
	baseErr := errors.New("upstream")

	retrieval := WrapRetrieval("search failed", baseErr)
	assert.True(t, IsRetrievalError(retrieval))
	assert.Equal(t, baseErr, errors.Unwrap(retrieval))

	generation := WrapGeneration("model failed", baseErr)
	assert.True(t, IsGenerationError(generation))
	assert.Equal(t, baseErr, errors.Unwrap(generation))

	internal := WrapInternal("db failed", baseErr)
	assert.True(t, IsInternalError(internal))

	wrapped := WrapError(ErrorTypeNotFound, "missing", baseErr)
	assert.True(t, IsNotFoundError(wrapped))
}
