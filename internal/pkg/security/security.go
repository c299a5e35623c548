// Package security provides input validation, log sanitization and secret
// masking.
package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeForLog makes user input safe to log: newlines are escaped, other
// control characters dropped and the result cut at 200 runes.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			if !unicode.IsControl(r) {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}

// SanitizeQuery removes control characters from a query and trims it.
// Newlines and tabs become spaces.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, query)

	return strings.TrimSpace(sanitized)
}

// MaskSecret keeps the last four characters of a credential for
// identification. Short secrets are masked entirely.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "[REDACTED]"
	}
	return "..." + s[len(s)-4:]
}

// ValidateContent checks corpus data before parsing: size, UTF-8 and not binary.
func ValidateContent(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return &ContentError{
			Reason: "content exceeds maximum size",
			Size:   len(data),
			Max:    maxSize,
		}
	}
	if !utf8.Valid(data) {
		return &ContentError{Reason: "content is not valid UTF-8"}
	}
	if IsBinaryContent(data) {
		return &ContentError{Reason: "content looks binary"}
	}
	return nil
}

// ContentError describes rejected content.
type ContentError struct {
	Reason string
	Size   int
	Max    int
}

func (e *ContentError) Error() string {
	if e.Size > 0 && e.Max > 0 {
		return fmt.Sprintf("%s (size: %s, max: %s)", e.Reason, formatSize(e.Size), formatSize(e.Max))
	}
	return e.Reason
}

func formatSize(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f%s", float64(bytes)/float64(div), units[exp])
}

// IsBinaryContent reports whether the first 8KB look like binary data:
// more than three NUL bytes or over 10% other control bytes.
func IsBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sample := data[:min(len(data), 8192)]

	nullCount := 0
	nonPrintable := 0
	for _, b := range sample {
		if b == 0 {
			nullCount++
			if nullCount > 3 {
				return true
			}
		} else if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(len(sample)) > 0.1
}
