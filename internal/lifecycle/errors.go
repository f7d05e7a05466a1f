package lifecycle

import "errors"

// Join/rejoin validation failures are reported to the originating connection
// only, never broadcast. None of these are fatal to the process.
var (
	ErrInvalidClassCode   = errors.New("class code not found or malformed")
	ErrClassInactive      = errors.New("class is not active")
	ErrClassFull          = errors.New("class is at capacity")
	ErrInvalidStudentName = errors.New("invalid student name")
	ErrInvalidStudentID   = errors.New("invalid student ID")
	ErrNotJoined          = errors.New("connection has not joined a class")
	ErrAlreadyJoined      = errors.New("connection already joined a class")
	ErrTargetNotFound     = errors.New("target connection not found")
)
