package directory

import "errors"

// Class directory error types
var (
	ErrInvalidClassName = errors.New("class name must be 1-200 characters")
	ErrInvalidClassCode = errors.New("class code must be 4-12 alphanumeric characters")
	ErrClassNotFound    = errors.New("class not found")
	ErrCodeTaken        = errors.New("class code already in use")
)
