package chatcontext

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/support-context/internal/store"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreArticle(t *testing.T) {
	tests := []struct {
		name    string
		article store.Article
		want    float64
	}{
		{
			name: "every field matches, clamped",
			article: store.Article{
				Title: "Password Reset", Summary: "How to password reset", Content: "password reset steps",
				Tags: []string{"Password Reset"}, ViewCount: 200, SearchScore: 50,
			},
			want: 1,
		},
		{
			name:    "title only, no feedback",
			article: store.Article{Title: "Password reset", Content: "other"},
			want:    0.42,
		},
		{
			name:    "quality only",
			article: store.Article{Title: "Billing", ViewCount: 50, HelpfulCount: 3, NotHelpfulCount: 1, SearchScore: 100},
			// 0.1 * (0.15 + 0.3 + 0.3)
			want: 0.075,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreArticle("password reset", &tt.article); !near(got, tt.want) {
				t.Errorf("scoreArticle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreFAQ(t *testing.T) {
	tests := []struct {
		name string
		faq  store.FAQ
		want float64
	}{
		{
			name: "question match with feedback",
			faq:  store.FAQ{Question: "Reset password?", Confidence: 80, UsageCount: 5, HelpfulCount: 3, NotHelpfulCount: 1},
			want: 0.5 + 0.12 + 0.025 + 0.0375,
		},
		{
			name: "no feedback term without votes",
			faq:  store.FAQ{Question: "reset password", UsageCount: 20},
			want: 0.55,
		},
		{
			name: "all matches clamp",
			faq: store.FAQ{Question: "reset password", Answer: "reset password", Keywords: []string{"reset password"},
				Confidence: 100, UsageCount: 10, HelpfulCount: 1},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreFAQ("Reset Password", &tt.faq); !near(got, tt.want) {
				t.Errorf("scoreFAQ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreDocument(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	text := "reset " + strings.Repeat("x", 988) + " reset"
	short := strings.Repeat("y", 494) + " reset"

	tests := []struct {
		name string
		doc  store.SessionDocument
		want float64
	}{
		{
			name: "fresh pdf with filename match",
			doc:  store.SessionDocument{Filename: "reset-guide.pdf", FileType: "pdf", ExtractedText: &text, CreatedAt: now},
			// 0.3 + 0.1*2 + 0.09 + 0.1
			want: 0.69,
		},
		{
			name: "old unknown type",
			doc:  store.SessionDocument{Filename: "notes.xyz", ExtractedText: &short, CreatedAt: now.AddDate(0, 0, -60)},
			// density 2 per thousand, unknown type 0.5
			want: 0.25,
		},
		{
			name: "type from extension, half month old",
			doc:  store.SessionDocument{Filename: "Plan.DOCX", ExtractedText: &short, CreatedAt: now.AddDate(0, 0, -15)},
			want: 0.2 + 0.08 + 0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreDocument("reset", &tt.doc, now); !near(got, tt.want) {
				t.Errorf("scoreDocument() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreDocument_DensityCapped(t *testing.T) {
	text := strings.Repeat("reset ", 100)
	d := store.SessionDocument{Filename: "a.txt", ExtractedText: &text}
	now := time.Now()
	d.CreatedAt = now

	// density term caps at 0.5: 0.5 + 0.07 + 0.1
	if got := scoreDocument("reset", &d, now); !near(got, 0.67) {
		t.Errorf("scoreDocument() = %v, want 0.67", got)
	}
}

func TestBudget(t *testing.T) {
	tests := []struct {
		max   int
		share float64
		want  int
	}{
		{10, 0.4, 4},
		{10, 0.2, 2},
		{5, 0.4, 2},
		{5, 0.2, 1},
		{1, 0.2, 1},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := budget(tt.max, tt.share); got != tt.want {
			t.Errorf("budget(%d, %v) = %d, want %d", tt.max, tt.share, got, tt.want)
		}
	}
}
