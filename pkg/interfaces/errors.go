package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrRecordNotFound = errors.New("session record not found")
	ErrClassNotFound  = errors.New("class not found")
)
