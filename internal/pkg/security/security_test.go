package security

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "reset password", "reset password"},
		{"newline injection", "q\nlevel=ERROR msg=fake", "q\\nlevel=ERROR msg=fake"},
		{"carriage return", "a\rb", "a\\rb"},
		{"tab", "a\tb", "a\\tb"},
		{"control removed", "a\x00b\x1bc", "abc"},
		{"truncated", strings.Repeat("x", 250), strings.Repeat("x", 200) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"  reset password  ", "reset password"},
		{"reset\npassword", "reset password"},
		{"re\x00set", "reset"},
		{"\t\n", ""},
	}

	for _, tt := range tests {
		if got := SanitizeQuery(tt.input); got != tt.want {
			t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"short", "[REDACTED]"},
		{"sk-1234567890abcd", "...abcd"},
	}

	for _, tt := range tests {
		if got := MaskSecret(tt.input); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr string
	}{
		{"ok", []byte(`{"faqs":[]}`), 100, ""},
		{"too large", []byte(strings.Repeat("a", 2048)), 1024, "exceeds maximum size (size: 2.0KB, max: 1.0KB)"},
		{"invalid utf8", []byte{0xff, 0xfe, 'a'}, 100, "not valid UTF-8"},
		{"binary", []byte("a\x00b\x00c\x00d\x00e"), 100, "binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.data, tt.max)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateContent() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateContent() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"text", []byte("articles:\n  - id: a1\n\ttitle: x\r\n"), false},
		{"nul bytes", []byte{'a', 0, 0, 0, 0, 'b'}, true},
		{"control heavy", []byte{1, 2, 3, 'a', 'b'}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBinaryContent(tt.data); got != tt.want {
				t.Errorf("IsBinaryContent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int
		want  string
	}{
		{512, "512B"},
		{1024, "1.0KB"},
		{10 * 1024 * 1024, "10.0MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
