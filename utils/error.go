package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// ValidationError rejects a request before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RequiredError is the ValidationError for a missing identifier.
func RequiredError(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// NotFoundError names the missing resource. errors.Is(err, ErrorRecordNotFound) holds.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrorRecordNotFound }

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}
