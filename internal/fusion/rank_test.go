package fusion

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func indexes(ranked []Ranked) []int {
	out := make([]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.Index
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRank_FilterAndSort(t *testing.T) {
	cands := []Candidate{
		{Type: "KNOWLEDGE_BASE", Key: "a1", Score: 0.9},
		{Type: "FAQ_LEARNING", Key: "f1", Score: 0.85},
		{Type: "DOCUMENT", Key: "d1", Score: 0.29},
		{Type: "FAQ_LEARNING", Key: "f2", Score: 0.95},
	}

	got, err := Rank(cands, DefaultOptions())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if want := []int{3, 0, 1}; !reflect.DeepEqual(indexes(got), want) {
		t.Errorf("order = %v, want %v", indexes(got), want)
	}
	for _, r := range got {
		if r.Score < DefaultMinRelevance {
			t.Errorf("score %v below floor", r.Score)
		}
	}
}

func TestRank_DiversityPenalty(t *testing.T) {
	cands := []Candidate{
		{Type: "KNOWLEDGE_BASE", Key: "a1", Score: 0.95},
		{Type: "KNOWLEDGE_BASE", Key: "a2", Score: 0.94},
		{Type: "KNOWLEDGE_BASE", Key: "a3", Score: 0.93},
		{Type: "KNOWLEDGE_BASE", Key: "a4", Score: 0.92},
		{Type: "KNOWLEDGE_BASE", Key: "a5", Score: 0.91},
		{Type: "FAQ_LEARNING", Key: "f1", Score: 0.85},
	}

	got, err := Rank(cands, DefaultOptions())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	// a4 drops to 0.82 and a5 to 0.71, behind the FAQ.
	if want := []int{0, 1, 2, 5, 3, 4}; !reflect.DeepEqual(indexes(got), want) {
		t.Fatalf("order = %v, want %v", indexes(got), want)
	}
	if !approx(got[4].Score, 0.82) || !approx(got[4].Penalty, 0.1) {
		t.Errorf("a4 = %+v, want score 0.82 penalty 0.1", got[4])
	}
	if !approx(got[5].Score, 0.71) || !approx(got[5].Penalty, 0.2) {
		t.Errorf("a5 = %+v, want score 0.71 penalty 0.2", got[5])
	}
	if got[3].Penalty != 0 {
		t.Errorf("faq should not be penalized")
	}
}

func TestRank_PenaltyClampsAtZero(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 12; i++ {
		cands = append(cands, Candidate{Type: "DOCUMENT", Key: fmt.Sprint(i), Score: 0.35})
	}

	got, err := Rank(cands, Options{MaxSources: 20, MinRelevance: 0})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
	for _, r := range got {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v out of range", r.Score)
		}
	}
	if got[len(got)-1].Score != 0 {
		t.Errorf("last score = %v, want 0", got[len(got)-1].Score)
	}
}

func TestRank_PenaltyBelowFloorDropped(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, Candidate{Type: "DOCUMENT", Key: fmt.Sprint(i), Score: 0.35})
	}

	got, err := Rank(cands, Options{MinRelevance: 0.3})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if want := []int{0, 1, 2}; !reflect.DeepEqual(indexes(got), want) {
		t.Errorf("order = %v, want %v", indexes(got), want)
	}
}

func TestRank_Budget(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 20; i++ {
		cands = append(cands, Candidate{Type: "KNOWLEDGE_BASE", Key: fmt.Sprint(i), Score: 0.9})
	}

	got, err := Rank(cands, Options{MinRelevance: 0})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != DefaultMaxSources {
		t.Errorf("len = %d, want %d", len(got), DefaultMaxSources)
	}

	got, _ = Rank(cands, DefaultOptions())
	if len(got) > DefaultMaxSources {
		t.Errorf("len = %d, want at most %d", len(got), DefaultMaxSources)
	}

	got, _ = Rank(cands, Options{MaxSources: 4, MinRelevance: 0.3})
	if len(got) != 4 {
		t.Errorf("len = %d, want 4", len(got))
	}
}

func TestRank_StableTies(t *testing.T) {
	cands := []Candidate{
		{Type: "KNOWLEDGE_BASE", Key: "a1", Score: 0.5},
		{Type: "FAQ_LEARNING", Key: "f1", Score: 0.5},
		{Type: "DOCUMENT", Key: "d1", Score: 0.5},
	}
	got, _ := Rank(cands, DefaultOptions())
	if want := []int{0, 1, 2}; !reflect.DeepEqual(indexes(got), want) {
		t.Errorf("order = %v, want %v", indexes(got), want)
	}
}

func TestRank_Dedup(t *testing.T) {
	cands := []Candidate{
		{Type: "FAQ_LEARNING", Key: "f1", Score: 0.6},
		{Type: "FAQ_LEARNING", Key: "f1", Score: 0.8},
		{Type: "KNOWLEDGE_BASE", Key: "f1", Score: 0.7},
		{Type: "DOCUMENT", Score: 0.5},
		{Type: "DOCUMENT", Score: 0.5},
	}
	got, _ := Rank(cands, DefaultOptions())
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(indexes(got), want) {
		t.Errorf("order = %v, want %v", indexes(got), want)
	}
}

func TestRank_ClampsInput(t *testing.T) {
	got, err := Rank([]Candidate{{Type: "KNOWLEDGE_BASE", Score: 1.4}}, DefaultOptions())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if got[0].Score != 1 {
		t.Errorf("score = %v, want 1", got[0].Score)
	}
}

func TestRank_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cands []Candidate
		opts  Options
	}{
		{"negative budget", nil, Options{MaxSources: -1}},
		{"floor above one", nil, Options{MinRelevance: 1.5}},
		{"nan floor", nil, Options{MinRelevance: math.NaN()}},
		{"nan score", []Candidate{{Type: "DOCUMENT", Score: math.NaN()}}, DefaultOptions()},
		{"inf score", []Candidate{{Type: "DOCUMENT", Score: math.Inf(1)}}, DefaultOptions()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rank(tt.cands, tt.opts); err == nil {
				t.Error("Rank() should fail")
			}
		})
	}
}

func TestRank_Empty(t *testing.T) {
	got, err := Rank(nil, DefaultOptions())
	if err != nil || len(got) != 0 {
		t.Errorf("Rank(nil) = %v, %v", got, err)
	}
}
