package detect

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed ingestion
type Kind string

const (
	KindClient        Kind = "client-error"
	KindConfiguration Kind = "configuration-error"
	KindUpstream      Kind = "upstream-degraded"
	KindPersistence   Kind = "persistence-error"
	KindInternal      Kind = "internal-error"
)

// Error is rendered into the failure envelope
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Code    string
	Details string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus picks the response status
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindClient, KindPersistence:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ClientError is a malformed or missing request field
func ClientError(message, details string) *Error {
	return &Error{Kind: KindClient, Message: message, Details: details}
}

// Unauthorized is a credential that failed verification
func Unauthorized(message string, err error) *Error {
	return &Error{Kind: KindClient, Status: http.StatusUnauthorized, Message: message, Err: err}
}

// ConfigurationError is a missing server side setting
func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// InternalError wraps anything unexpected
func InternalError(err error) *Error {
	msg := "Internal server error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// AsError converts any error to *Error, wrapping unknown ones as internal
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return InternalError(err)
}
