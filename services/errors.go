package services

import (
	"errors"
	"fmt"
)

// ErrorType is the failure category a caller can act on. The HTTP layer
// maps each type to a status code; the stream layer sends it as the
// error event's type.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeRetrieval    ErrorType = "retrieval"
	ErrorTypeEmptyContext ErrorType = "empty_context"
	ErrorTypeGeneration   ErrorType = "generation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError carries a category, a client-facing message and the cause.
// errors.Is matches any two domain errors of the same type, so the package
// sentinels below work as category targets.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: map[string]interface{}{},
	}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Type == t.Type
}

// WithDetail sets a detail in place and returns e for chaining. It must not
// be called on the shared sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func sentinel(t ErrorType, message string) *DomainError {
	return &DomainError{Type: t, Message: message}
}

var (
	ErrInvalidArgument     = sentinel(ErrorTypeValidation, "invalid argument")
	ErrInvalidChunkConfig  = sentinel(ErrorTypeValidation, "invalid chunk configuration")
	ErrEmptyConversationID = sentinel(ErrorTypeValidation, "conversation id cannot be empty")
	ErrEmptyPrompt         = sentinel(ErrorTypeValidation, "user prompt cannot be empty")
	ErrInvalidFilter       = sentinel(ErrorTypeValidation, "invalid filter expression")
	ErrInvalidChatOptions  = sentinel(ErrorTypeValidation, "invalid chat options")

	ErrRetrievalFailure = sentinel(ErrorTypeRetrieval, "document retrieval failed")
	ErrEmbeddingFailed  = sentinel(ErrorTypeRetrieval, "query embedding failed")
	ErrSearchFailed     = sentinel(ErrorTypeRetrieval, "vector search failed")

	ErrEmptyContext = sentinel(ErrorTypeEmptyContext, "no relevant documents found for the query")

	ErrGenerationFailure = sentinel(ErrorTypeGeneration, "response generation failed")
	ErrStreamInterrupted = sentinel(ErrorTypeGeneration, "response stream interrupted")

	ErrUnauthorized  = sentinel(ErrorTypeUnauthorized, "unauthorized")
	ErrInvalidToken  = sentinel(ErrorTypeUnauthorized, "invalid authentication token")
	ErrNotFound      = sentinel(ErrorTypeNotFound, "resource not found")
	ErrInternal      = sentinel(ErrorTypeInternal, "internal server error")
	ErrDatabaseError = sentinel(ErrorTypeInternal, "database error")
)

// GetErrorType returns the type of the first DomainError in err's chain,
// or "" when there is none.
func GetErrorType(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

func GetErrorDetails(err error) map[string]interface{} {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

func IsValidationError(err error) bool   { return GetErrorType(err) == ErrorTypeValidation }
func IsRetrievalError(err error) bool    { return GetErrorType(err) == ErrorTypeRetrieval }
func IsEmptyContextError(err error) bool { return GetErrorType(err) == ErrorTypeEmptyContext }
func IsGenerationError(err error) bool   { return GetErrorType(err) == ErrorTypeGeneration }
func IsUnauthorizedError(err error) bool { return GetErrorType(err) == ErrorTypeUnauthorized }
func IsNotFoundError(err error) bool     { return GetErrorType(err) == ErrorTypeNotFound }
func IsInternalError(err error) bool     { return GetErrorType(err) == ErrorTypeInternal }

func WrapError(errType ErrorType, message string, err error) *DomainError {
	return NewDomainError(errType, message, err)
}

// WrapRetrieval marks an embedding or vector store failure.
func WrapRetrieval(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeRetrieval, message, err)
}

// WrapGeneration marks a chat model failure.
func WrapGeneration(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeGeneration, message, err)
}

func WrapInternal(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, err)
}

func InvalidArgument(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}
