package router

import "errors"

// Router-specific error types
var (
	ErrNilViewer = errors.New("viewer connection cannot be nil")
)
