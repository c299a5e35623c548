package search

import (
	"strings"
	"testing"
)

func TestExtractSnippet_MatchInMiddle(t *testing.T) {
	content := strings.Repeat("x", 500) + "needle" + strings.Repeat("y", 2000-506)

	got := ExtractSnippet(content, "NEEDLE", 300)

	if !strings.HasPrefix(got, "...") {
		t.Errorf("snippet should start with ellipsis, got %q", got[:10])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("snippet should end with ellipsis")
	}
	// 100 before the match, the match, 200 after.
	want := "..." + content[400:706] + "..."
	if got != want {
		t.Errorf("snippet length = %d, want %d", len(got), len(want))
	}
	if !strings.Contains(got, "needle") {
		t.Error("snippet should contain the match")
	}
}

func TestExtractSnippet(t *testing.T) {
	long := strings.Repeat("a", 250)

	tests := []struct {
		name      string
		content   string
		query     string
		maxLength int
		want      string
	}{
		{"no match short", "short text", "zzz", 200, "short text"},
		{"no match truncated", long, "zzz", 200, strings.Repeat("a", 200) + "..."},
		{"default length", long, "zzz", 0, strings.Repeat("a", 200) + "..."},
		{"match near start", "reset your password here", "password", 200, "reset your password here"},
		{"match at start trailing cut", "needle" + strings.Repeat("b", 300), "needle", 200, "needle" + strings.Repeat("b", 200) + "..."},
		{"multibyte", "héllo wörld", "WÖRLD", 200, "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSnippet(tt.content, tt.query, tt.maxLength); got != tt.want {
				t.Errorf("ExtractSnippet() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
		want  string
	}{
		{
			name:  "separate words",
			text:  "Reset your password now",
			terms: []string{"reset password", "reset", "password"},
			want:  "<mark>Reset</mark> your <mark>password</mark> now",
		},
		{
			name:  "longest term wins",
			text:  "password reset steps",
			terms: []string{"reset", "password reset"},
			want:  "<mark>password reset</mark> steps",
		},
		{
			name:  "no terms",
			text:  "unchanged",
			terms: []string{" "},
			want:  "unchanged",
		},
		{
			name:  "repeated",
			text:  "Card card CARD",
			terms: []string{"card"},
			want:  "<mark>Card</mark> <mark>card</mark> <mark>CARD</mark>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Highlight(tt.text, tt.terms); got != tt.want {
				t.Errorf("Highlight() = %q, want %q", got, tt.want)
			}
		})
	}
}
