// Package apperr holds the error taxonomy surfaced to HTTP callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindNotFound
	KindUpstream
	KindIntegrity
	KindUnavailable
)

const (
	CodeMissingParameter     = "MissingParameter"
	CodeInvalidParameter     = "InvalidParameter"
	CodeUnauthorized         = "Unauthorized"
	CodeInvalidSignature     = "InvalidSignature"
	CodeUserNotFound         = "UserNotFound"
	CodePackageNotFound      = "PackageNotFound"
	CodeSubscriptionNotFound = "SubscriptionNotFound"
	CodeUpstreamAPIError     = "UpstreamApiError"
	CodeUpstreamEmptyResult  = "UpstreamEmptyResult"
	CodeDirectoryUnavailable = "DirectoryUnavailable"
	CodeMissingMetadata      = "MissingMetadata"
	CodeMissingImageData     = "MissingImageData"
	CodeStorageUnavailable   = "StorageUnavailable"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Status overrides the kind's default HTTP status when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code a handler should answer with.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func MissingParameter(message string) *Error {
	return Validation(CodeMissingParameter, message)
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuth, Code: CodeUnauthorized, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Upstream wraps a failed external call. A status outside 400..599 falls back to 500.
func Upstream(status int, err error) *Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	msg := "upstream request failed"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindUpstream, Code: CodeUpstreamAPIError, Message: msg, Status: status, Err: err}
}

func Integrity(code, message string) *Error {
	return &Error{Kind: KindIntegrity, Code: code, Message: message}
}

func DirectoryUnavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: CodeDirectoryUnavailable, Message: "image output directory unavailable", Err: err}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf maps any error to an HTTP status; unknown errors are 500.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// CodeOf returns the error code or "" for foreign errors.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// Message returns the text shown to callers. Foreign errors are not leaked.
func Message(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "internal server error"
}
