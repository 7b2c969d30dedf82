package util

import (
	"fmt"
	"net/http"
)

// ResponseError is the tagged flow-failure type consumed by the HTTP error
// handler. Fields carries per-field validation messages and is only set for
// 400 validation failures.
type ResponseError struct {
	Status int
	Msg    string
	Fields map[string][]string
}

func (e ResponseError) Error() string { return e.Msg }

func NewResponseError(status int, format string, args ...interface{}) error {
	return ResponseError{
		Msg:    fmt.Sprintf(format, args...),
		Status: status,
	}
}

func NewValidationError(fields map[string][]string) error {
	return ResponseError{
		Msg:    "validation failed",
		Status: http.StatusBadRequest,
		Fields: fields,
	}
}

func NewUnauthorized(format string, args ...interface{}) error {
	return NewResponseError(http.StatusUnauthorized, format, args...)
}

func NewConflict(format string, args ...interface{}) error {
	return NewResponseError(http.StatusConflict, format, args...)
}

func NewInternalError(format string, args ...interface{}) error {
	return NewResponseError(http.StatusInternalServerError, format, args...)
}
