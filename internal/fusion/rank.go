// Package fusion merges scored candidates from several corpora into one
// ranked list under a per-type diversity penalty.
package fusion

import (
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultMaxSources caps the ranked output.
	DefaultMaxSources = 10

	// DefaultMinRelevance is the score floor applied before ranking.
	DefaultMinRelevance = 0.3

	// FreePerType is how many sources of one type are admitted unpenalized.
	FreePerType = 3

	// PenaltyStep is the score deducted per extra same-type source.
	PenaltyStep = 0.1
)

// Options configures Rank.
type Options struct {
	// MaxSources caps the output. Zero means DefaultMaxSources.
	MaxSources int

	// MinRelevance drops candidates scoring below it.
	MinRelevance float64
}

// DefaultOptions returns the standard ranking options.
func DefaultOptions() Options {
	return Options{
		MaxSources:   DefaultMaxSources,
		MinRelevance: DefaultMinRelevance,
	}
}

// Candidate is one scored source offered to the ranker.
type Candidate struct {
	// Type groups candidates for the diversity penalty.
	Type string

	// Key identifies the underlying item. Candidates sharing a non-empty
	// Type and Key are collapsed to the first, highest scoring one.
	Key string

	// Score is the relevance in [0,1].
	Score float64
}

// Ranked is a selected candidate.
type Ranked struct {
	// Index points into the slice passed to Rank.
	Index int

	// Score is the adjusted score in [0,1].
	Score float64

	// Penalty is what the diversity step deducted.
	Penalty float64
}

func (o Options) validate() error {
	if o.MaxSources < 0 {
		return fmt.Errorf("max sources must not be negative, got %d", o.MaxSources)
	}
	if math.IsNaN(o.MinRelevance) || o.MinRelevance < 0 || o.MinRelevance > 1 {
		return fmt.Errorf("min relevance must be between 0 and 1, got %v", o.MinRelevance)
	}
	return nil
}

// Rank filters candidates below the floor, sorts them by score, penalizes the
// fourth and later sources of each type by 0.1 per extra source, re-sorts and
// truncates to MaxSources. Equal scores keep their input order in both sorts.
// A source pushed under the floor by its penalty is dropped.
func Rank(candidates []Candidate, opts Options) ([]Ranked, error) {
	if opts.MaxSources == 0 {
		opts.MaxSources = DefaultMaxSources
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	kept := make([]Ranked, 0, len(candidates))
	for i, c := range candidates {
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			return nil, fmt.Errorf("candidate %d (%s %s) has invalid score %v", i, c.Type, c.Key, c.Score)
		}
		if c.Score < opts.MinRelevance {
			continue
		}
		kept = append(kept, Ranked{Index: i, Score: clamp(c.Score)})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	kept = dedup(kept, candidates)

	seen := make(map[string]int)
	for i := range kept {
		typ := candidates[kept[i].Index].Type
		if n := seen[typ]; n >= FreePerType {
			kept[i].Penalty = PenaltyStep * float64(n-FreePerType+1)
			kept[i].Score = math.Max(0, kept[i].Score-kept[i].Penalty)
		}
		seen[typ]++
	}
	kept = aboveFloor(kept, opts.MinRelevance)

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	if len(kept) > opts.MaxSources {
		kept = kept[:opts.MaxSources]
	}
	return kept, nil
}

// dedup keeps the first occurrence of each keyed candidate in sorted order.
func dedup(sorted []Ranked, candidates []Candidate) []Ranked {
	seen := make(map[[2]string]bool, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		c := candidates[r.Index]
		if c.Key != "" {
			k := [2]string{c.Type, c.Key}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, r)
	}
	return out
}

func aboveFloor(ranked []Ranked, floor float64) []Ranked {
	out := ranked[:0]
	for _, r := range ranked {
		if r.Score >= floor {
			out = append(out, r)
		}
	}
	return out
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}
