package app

import (
	"errors"
	"fmt"
	"net/http"

	"inkvault/api/internal/content"
	"inkvault/api/internal/response"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeMalformedContent     = "MALFORMED_CONTENT"
	CodeInvalidBody          = "INVALID_BODY"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeUserExists           = "USER_EXISTS"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeAlreadyAuthenticated = "ALREADY_AUTHENTICATED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeVersionConflict      = "VERSION_CONFLICT"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeExportUnavailable    = "EXPORT_UNAVAILABLE"
	CodeNotReady             = "NOT_READY"
	CodeInternal             = response.CodeInternal
)

// DomainError is an error the API reports to the client as is. Target names
// the offending input field; Details carries nested errors or, for
// VERSION_CONFLICT, the note as currently stored.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Target  string
	Details []any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) apiError() response.APIError {
	return response.APIError{
		Code:    e.Code,
		Message: e.Message,
		Target:  e.Target,
		Details: e.Details,
	}
}

func domainError(status int, code, message string, details ...any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(target, message string, details ...any) *DomainError {
	err := domainError(http.StatusUnprocessableEntity, CodeValidation, message, details...)
	err.Target = target
	return err
}

// contentError reports a malformed content tree, with the offending node path
// in a MALFORMED_CONTENT detail.
func contentError(err error) *DomainError {
	detail := response.APIError{Code: CodeMalformedContent, Message: err.Error()}
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		detail.Message = verr.Reason
		detail.Target = verr.Path
	}
	return validationError("content", "content is not a valid document", detail)
}

func invalidBody(message string) *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidBody, message)
}

var (
	errUnauthorized       = domainError(http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
	errInvalidCredentials = domainError(http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
	errUserExists         = domainError(http.StatusConflict, CodeUserExists, "Email already registered")
	errForbidden          = domainError(http.StatusForbidden, CodeForbidden, "Forbidden")
	errNotFound           = domainError(http.StatusNotFound, CodeNotFound, "Not found")
	errExportUnavailable  = domainError(http.StatusServiceUnavailable, CodeExportUnavailable, "Export is not available")
)

func versionConflict(current NoteView) *DomainError {
	return domainError(http.StatusConflict, CodeVersionConflict,
		fmt.Sprintf("Note was modified; current version is %d", current.Version), current)
}
