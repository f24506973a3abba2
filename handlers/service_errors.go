package handlers

import (
	"net/http"

	"github.com/upb/rag-chat/services"
	"github.com/upb/rag-chat/utils"
	"go.uber.org/zap"
)

type errorMapping struct {
	status int
	code   string // empty uses the status default
	log    bool
}

var errorMappings = map[services.ErrorType]errorMapping{
	services.ErrorTypeValidation:   {status: http.StatusBadRequest},
	services.ErrorTypeUnauthorized: {status: http.StatusUnauthorized},
	services.ErrorTypeNotFound:     {status: http.StatusNotFound},
	services.ErrorTypeEmptyContext: {status: http.StatusUnprocessableEntity, code: string(services.ErrorTypeEmptyContext)},
	services.ErrorTypeRetrieval:    {status: http.StatusServiceUnavailable, code: string(services.ErrorTypeRetrieval), log: true},
	services.ErrorTypeGeneration:   {status: http.StatusBadGateway, code: string(services.ErrorTypeGeneration), log: true},
}

// HandleServiceError writes err as a JSON error response. Internal and
// unknown errors are logged and answered with a generic 500 so causes such
// as driver messages never reach the client.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	m, known := errorMappings[errType]

	var writeErr error
	if !known {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("error_type", string(errType)))
		writeErr = utils.WriteError(w, http.StatusInternalServerError, "An internal error occurred", nil)
	} else {
		if m.log {
			logger.Error("request failed", zap.Error(err), zap.String("error_type", string(errType)))
		}
		details := services.GetErrorDetails(err)
		if m.code == "" {
			writeErr = utils.WriteError(w, m.status, err.Error(), details)
		} else {
			writeErr = utils.WriteTypedError(w, m.status, m.code, err.Error(), details)
		}
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError answers a request body that failed validation.
// Field messages from utils.ValidateStruct become the response details.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	message := err.Error()
	var details map[string]interface{}
	if fields := utils.GetValidationFields(err); fields != nil {
		message = "Validation failed"
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
	}
	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
