package types

import "errors"

// Validation error types shared across components.
var (
	ErrInvalidStudentName = errors.New("student name must be 1-100 characters")
	ErrInvalidClassCode   = errors.New("class code must be 4-12 characters, alphanumeric only")
	ErrInvalidStudentID   = errors.New("student ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrDocumentTooLarge   = errors.New("document exceeds 256KB limit")
	ErrInvalidClassName   = errors.New("class name must be 1-200 characters")
)
