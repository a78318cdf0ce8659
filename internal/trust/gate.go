// Package trust converts a caller identity into a numeric trust score.
//
// The score is a pure per-request read from the identity collaborator,
// authoritative at request start; the gateway never caches it beyond that.
package trust

import (
	"context"
	"fmt"
)

// Source is the identity collaborator's lookup contract.
type Source interface {
	GetCallerTrust(ctx context.Context, callerID string) (int, error)
}

// Tier labels for observability. Labels never gate anything; the
// minTrustRequired check on each model is the only eligibility gate.
const (
	TierPremium  = "premium"
	TierStandard = "standard"
	TierBasic    = "basic"
)

// Gate resolves caller trust scores.
type Gate struct {
	source Source
}

// NewGate creates a Gate backed by the given identity source.
func NewGate(source Source) *Gate {
	return &Gate{source: source}
}

// Score looks up the caller's trust score, clamped to [0,100].
func (g *Gate) Score(ctx context.Context, callerID string) (int, error) {
	if callerID == "" {
		return 0, fmt.Errorf("trust: caller id is required")
	}
	score, err := g.source.GetCallerTrust(ctx, callerID)
	if err != nil {
		return 0, fmt.Errorf("trust: lookup for %s: %w", callerID, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// Tier maps a score to its observability label.
func Tier(score int) string {
	switch {
	case score >= 70:
		return TierPremium
	case score >= 50:
		return TierStandard
	default:
		return TierBasic
	}
}
