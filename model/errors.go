package model

import (
	"errors"
	"fmt"
)

const (
	GenericRequestFailure   = "Request failed"
	GenericInferenceFailure = "Inference failed"
)

// ValidationError is raised locally before any network I/O.
type ValidationError struct {
	Message string
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// APIError carries the human readable detail extracted from a backend error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return e.Detail
}

func (e *APIError) String() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Message returns the text to show an operator for err.
func Message(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var a *APIError
	if errors.As(err, &a) {
		return a.Detail
	}
	return err.Error()
}
