package app

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrDocumentNotFound = errors.New("document not found")

// DomainError carries the HTTP status and machine-readable code a failed
// operation should be reported with.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

// analyzerError wraps a failure of the analysis collaborator.
func analyzerError(err error, details map[string]any) *DomainError {
	if details == nil {
		details = map[string]any{}
	}
	details["error"] = err.Error()
	return domainError(http.StatusBadGateway, "ANALYZER_FAILED", "Analysis failed", details)
}
