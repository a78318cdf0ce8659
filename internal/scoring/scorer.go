// Package scoring ranks eligible candidates by a weighted composite score.
//
// Quality dominates, cost is secondary, health is a tie-breaking
// quality-of-service signal (the hard gate is the healthy flag upstream),
// and priority is a final operator override. The weights are business
// policy, tunable in configuration.
package scoring

import (
	"sort"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// RateSource reports the rolling success rate for a provider, 0-100.
type RateSource interface {
	SuccessRate(providerID string) float64
}

// Weights are the composite score coefficients.
type Weights struct {
	Quality  float64
	Cost     float64
	Health   float64
	Priority float64
}

// DefaultWeights returns the stock routing policy.
func DefaultWeights() Weights {
	return Weights{Quality: 0.4, Cost: 0.3, Health: 0.2, Priority: 0.1}
}

// Ranked pairs a candidate with its computed score, best first after Rank.
type Ranked struct {
	Candidate models.Candidate
	Score     float64
}

// Scorer ranks candidates.
type Scorer struct {
	weights Weights
	rates   RateSource
}

// NewScorer creates a Scorer. rates may be nil, in which case every
// provider scores a neutral 100 on the health term.
func NewScorer(weights Weights, rates RateSource) *Scorer {
	return &Scorer{weights: weights, rates: rates}
}

// score computes the composite for one candidate.
//
// The cost term intentionally uses only the input-unit price; the output
// price is billed but does not influence ranking. Likewise minTrustRequired
// participates only in the upstream eligibility gate, never in the score.
func (s *Scorer) score(c models.Candidate) float64 {
	costScore := 100 - c.Model.CostPerUnitInput*1000
	if costScore < 0 {
		costScore = 0
	}

	healthScore := 100.0
	if s.rates != nil {
		healthScore = s.rates.SuccessRate(c.Provider.ID)
	}

	return float64(c.Model.QualityScore)*s.weights.Quality +
		costScore*s.weights.Cost +
		healthScore*s.weights.Health +
		float64(c.Provider.Priority)*s.weights.Priority
}

// Rank orders candidates best first. The sort is stable, so candidates with
// identical scores keep their discovery order and identical inputs always
// produce identical orderings.
func (s *Scorer) Rank(candidates []models.Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Score: s.score(c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
