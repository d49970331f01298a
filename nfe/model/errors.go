package model

import (
	"fmt"

	"github.com/alapierre/go-nfe-client/nfe"
)

// FieldError is an input error tied to one field of the document.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e *FieldError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s: %s (value=%v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return nfe.ErrInvalidInput
}

func NewFieldError(field string, value any, message string) *FieldError {
	return &FieldError{Field: field, Value: value, Message: message}
}
