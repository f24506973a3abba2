package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-chat/services"
	"github.com/upb/rag-chat/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "validation error",
			err:            services.ErrEmptyPrompt,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "not found error",
			err:            services.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
		},
		{
			name:           "empty context",
			err:            services.ErrEmptyContext,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedError:  "empty_context",
		},
		{
			name:           "retrieval failure",
			err:            services.WrapRetrieval("vector search failed", errors.New("connection refused")),
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "retrieval",
		},
		{
			name:           "generation failure",
			err:            services.WrapGeneration("response generation failed", errors.New("502 from provider")),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "generation",
		},
		{
			name:           "internal error",
			err:            services.ErrInternal,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "plain error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
		})
	}

	t.Run("internal errors hide the cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.WrapInternal("database error", errors.New("password authentication failed")), logger)

		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("details are forwarded", func(t *testing.T) {
		err := services.NewDomainError(services.ErrorTypeValidation, "invalid filter expression", nil).
			WithDetail("filter_expression", "genre ==")
		w := httptest.NewRecorder()
		HandleServiceError(w, err, logger)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "genre ==", response.Details["filter_expression"])
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Empty(t, w.Body.String())
	})
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("structured", func(t *testing.T) {
		err := utils.ValidateStruct(&RagPromptBody{})
		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Message)
		assert.Contains(t, response.Details, "conversationId")
		assert.Contains(t, response.Details, "userPrompt")
	})

	t.Run("generic", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, errors.New("bad input"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "bad input")
	})
}
