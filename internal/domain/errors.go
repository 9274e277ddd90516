package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code and message so that a wrapped
// sentinel still satisfies errors.Is after NewDomainErrorWithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches a cause to a sentinel domain error while keeping its code.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
	ErrCodeUnsupportedInput  = "UNSUPPORTED_INPUT"
	ErrCodeEmbeddingFailure  = "EMBEDDING_FAILURE"
	ErrCodeGenerationFailure = "GENERATION_FAILURE"
	ErrCodeUnavailable       = "UNAVAILABLE"
)

// Validation errors
var (
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuestion          = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrFileTooLarge           = NewDomainError(ErrCodeValidation, "file exceeds maximum upload size")
	ErrInvalidJobStatus       = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrInvalidJobKind         = NewDomainError(ErrCodeValidation, "invalid job kind")
	ErrInvalidDocumentStatus  = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrNoReportSections       = NewDomainError(ErrCodeValidation, "report requires at least one section")
	ErrInvalidReportSection   = NewDomainError(ErrCodeValidation, "report section name cannot be empty")
	ErrInvalidSimilarityFloor = NewDomainError(ErrCodeValidation, "similarity floor must be within [0, 1]")
)

// Not found errors
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrReportNotFound       = NewDomainError(ErrCodeNotFound, "report not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrJobNotFound          = NewDomainError(ErrCodeNotFound, "processing job not found")
	ErrFileNotFound         = NewDomainError(ErrCodeNotFound, "stored file not found")
	ErrDriveFileNotFound    = NewDomainError(ErrCodeNotFound, "drive file not found")
)

// Operation errors
var (
	ErrDocumentBusy     = NewDomainError(ErrCodeInvalidOperation, "document is already being processed")
	ErrReportNotReady   = NewDomainError(ErrCodeInvalidOperation, "report has not completed")
	ErrLockNotAcquired  = NewDomainError(ErrCodeInvalidOperation, "could not acquire lock")
	ErrDriveUnavailable = NewDomainError(ErrCodeUnavailable, "google drive integration is not configured")
)

// Pipeline errors
var (
	ErrUnsupportedInput     = NewDomainError(ErrCodeUnsupportedInput, "unsupported input")
	ErrEmbeddingFailure     = NewDomainError(ErrCodeEmbeddingFailure, "embedding index operation failed")
	ErrGenerationFailure    = NewDomainError(ErrCodeGenerationFailure, "generator call failed")
	ErrNoExtractableContent = NewDomainError(ErrCodeUnsupportedInput, "document has no extractable content")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
