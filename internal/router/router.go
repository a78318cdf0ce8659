// Package router is the routing facade: one public entry point that strings
// the trust gate, catalog, scorer, and dispatcher together for each request.
//
// A route call either returns a response or exactly one of the terminal
// error kinds (trust unavailable, no eligible provider, all providers
// exhausted, deadline exceeded). Per-candidate failures never escape; they
// are absorbed by the dispatcher's failover loop.
package router

import (
	"context"
	"errors"
	"log"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/catalog"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/dispatch"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/health"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/scoring"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/trust"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// Router composes the routing pipeline.
type Router struct {
	catalog    *catalog.Store
	gate       *trust.Gate
	scorer     *scoring.Scorer
	dispatcher *dispatch.Dispatcher
	tracker    *health.Tracker
}

// New wires a Router from its collaborators. All dependencies are injected;
// the router owns no state of its own.
func New(cat *catalog.Store, gate *trust.Gate, scorer *scoring.Scorer, disp *dispatch.Dispatcher, tracker *health.Tracker) *Router {
	return &Router{
		catalog:    cat,
		gate:       gate,
		scorer:     scorer,
		dispatcher: disp,
		tracker:    tracker,
	}
}

// Route resolves the caller's trust, gathers and ranks eligible candidates,
// and dispatches with failover. Many Route calls run concurrently; within
// one call candidate attempts are strictly sequential.
func (r *Router) Route(ctx context.Context, req models.ChatRequest, callerID string) (*models.RouteResponse, error) {
	score, err := r.gate.Score(ctx, callerID)
	if err != nil {
		return nil, &TrustUnavailableError{CallerID: callerID, Err: err}
	}
	tier := trust.Tier(score)

	candidates := r.catalog.EligibleCandidates(score)
	if len(candidates) == 0 {
		log.Printf("router: caller %s (trust %d, %s): no eligible candidates", callerID, score, tier)
		return nil, &NoEligibleProviderError{CallerID: callerID, TrustScore: score}
	}

	ranked := r.scorer.Rank(candidates)

	result, err := r.dispatcher.Execute(ctx, callerID, ranked, req)
	if err != nil {
		// An empty list cannot reach here, but keep the mapping total.
		if errors.Is(err, dispatch.ErrNoCandidates) {
			return nil, &NoEligibleProviderError{CallerID: callerID, TrustScore: score}
		}
		return nil, err
	}

	return &models.RouteResponse{
		RequestID:  result.Record.ID,
		Content:    result.Chat.Content,
		ProviderID: result.Candidate.Provider.ID,
		Provider:   result.Candidate.Provider.Name,
		Model:      result.Candidate.Model.Name,
		Usage:      result.Chat.Usage,
		CostUSD:    result.Record.CostUSD,
		LatencyMs:  result.Chat.LatencyMs,
		TrustTier:  tier,
		Attempts:   result.Attempts,
	}, nil
}

// CheckAllHealth triggers one probe cycle over the current catalog and
// returns the resulting snapshots, for diagnostics and dashboards. It only
// touches the healthy flag and lastCheckedAt; the rolling counters move
// exclusively with real traffic.
func (r *Router) CheckAllHealth(ctx context.Context) []models.HealthSnapshot {
	return r.tracker.CheckAll(ctx, r.catalog.Providers())
}
