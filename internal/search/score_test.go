package search

import (
	"reflect"
	"testing"

	"github.com/ricesearch/support-context/internal/store"
)

func TestQueryWords(t *testing.T) {
	got := queryWords("Reset, my PASSWORD a reset")
	want := []string{"reset", "my", "password"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("queryWords() = %v, want %v", got, want)
	}

	if got := queryTerms("reset password"); !reflect.DeepEqual(got, []string{"reset password", "reset", "password"}) {
		t.Errorf("queryTerms() = %v", got)
	}
	if got := queryTerms("billing"); !reflect.DeepEqual(got, []string{"billing"}) {
		t.Errorf("queryTerms(single) = %v", got)
	}
}

func TestScoreFAQ(t *testing.T) {
	f := &store.FAQ{
		Question:   "How do I reset my password?",
		Answer:     "Use the reset password link.",
		Keywords:   []string{"password", "account"},
		Confidence: 80,
		UsageCount: 99,
	}
	// 30 (all words in question) + 20 (content) + 5 (one keyword) + 8 + 2
	if got := scoreFAQ("reset password", f); got != 65 {
		t.Errorf("scoreFAQ() = %v, want 65", got)
	}
}

func TestScoreArticle(t *testing.T) {
	a := &store.Article{Title: "Password Reset Guide", Content: "Steps."}
	// 50 (exact title) + 10 (full confidence)
	if got := scoreArticle("password reset", a); got != 60 {
		t.Errorf("scoreArticle() = %v, want 60", got)
	}
}

func TestRelevance_Caps(t *testing.T) {
	keywords := []string{"reset", "password", "reset password", "login", "account"}
	got := relevance("reset password", "reset password", "reset password", keywords, 100, 1_000_000_000)
	if got != 100 {
		t.Errorf("relevance() = %v, want 100", got)
	}

	if got := relevance("zzz", "title", "content", nil, 0, 0); got != 0 {
		t.Errorf("relevance(no match) = %v, want 0", got)
	}
}

func TestRelevance_PartialTitle(t *testing.T) {
	// one of two words in title: 15, plus confidence 50: 5
	got := relevance("reset email", "Reset your password", "", nil, 50, 0)
	if got != 20 {
		t.Errorf("relevance() = %v, want 20", got)
	}
}
