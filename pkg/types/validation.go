package types

import (
	"regexp"
	"strings"
)

// Compiled once at package initialization; validation sits on the hot join
// and update paths.
var (
	classCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	studentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Document payloads larger than this are rejected before they reach the
// registry or the durable store.
const MaxDocumentBytes = 256 * 1024

// NormalizeClassCode folds a class code to its canonical uppercase form.
// Lookup is case-insensitive exact match; normalizing at every boundary
// keeps the registry, directory, and group keys consistent.
func NormalizeClassCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidClassCode checks the class code format before any directory lookup.
func IsValidClassCode(code string) bool {
	if len(code) < 4 || len(code) > 12 {
		return false
	}
	return classCodeRegex.MatchString(code)
}

// IsValidStudentName checks a display name. Names are free text but bounded.
func IsValidStudentName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return len(trimmed) >= 1 && len(trimmed) <= 100
}

// IsValidStudentID checks a caller-supplied rejoin ID.
func IsValidStudentID(studentID string) bool {
	if len(studentID) < 1 || len(studentID) > 50 {
		return false
	}
	return studentIDRegex.MatchString(studentID)
}

// Validate bounds a document payload. Whole-document replacement means a
// single oversized update would otherwise sit in memory and in every flush.
func (d Document) Validate() error {
	if len(d.HTML)+len(d.CSS) > MaxDocumentBytes {
		return ErrDocumentTooLarge
	}
	return nil
}
