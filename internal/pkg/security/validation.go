package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxQueryLength     = 2000
	MaxSessionIDLength = 128
	MaxSources         = 100
	MaxCorpusFileSize  = 10 * 1024 * 1024 // 10MB
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery checks a search query or chat question: required after
// trimming, valid UTF-8, at most MaxQueryLength characters.
func ValidateQuery(field, query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: field, Constraint: "required"}
	}
	if !utf8.ValidString(query) {
		return &ValidationError{Field: field, Constraint: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryLength {
		return &ValidationError{
			Field:      field,
			Value:      n,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}
	return nil
}

// ValidateSessionID accepts an empty ID or up to MaxSessionIDLength
// printable characters without spaces.
func ValidateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxSessionIDLength {
		return &ValidationError{
			Field:      "session_id",
			Value:      len(id),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxSessionIDLength),
		}
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return &ValidationError{Field: "session_id", Constraint: "must not contain spaces or control characters"}
		}
	}
	return nil
}

// ValidateRange checks that v is within [lo, hi].
func ValidateRange[T int | float64](field string, v, lo, hi T) error {
	if v < lo || v > hi {
		return &ValidationError{
			Field:      field,
			Value:      v,
			Constraint: fmt.Sprintf("must be between %v and %v", lo, hi),
		}
	}
	return nil
}
