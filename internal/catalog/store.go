// Package catalog holds the provider/model registry and answers eligibility
// queries for the routing path.
//
// The store is an explicitly injected dependency, not ambient process-wide
// state, so tests can substitute a fixture catalog without touching globals.
// It is read-mostly: the only mutation is the administrative active flag,
// which becomes visible to new route calls without synchronizing with
// in-flight ones.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// HealthSource reports the probe-driven health flag for a provider.
type HealthSource interface {
	IsHealthy(providerID string) bool
}

// Source loads catalog rows from the persistent store.
type Source interface {
	ListProviders(ctx context.Context) ([]models.Provider, error)
	ListModels(ctx context.Context, providerID string) ([]models.Model, error)
}

// Store is the in-memory provider/model catalog.
type Store struct {
	mu        sync.RWMutex
	providers []models.Provider            // discovery order, preserved for stable ranking
	modelsFor map[string][]models.Model    // providerID -> models
	index     map[string]int               // providerID -> position in providers
	health    HealthSource
}

// NewStore creates an empty catalog backed by the given health source.
func NewStore(health HealthSource) *Store {
	return &Store{
		modelsFor: make(map[string][]models.Model),
		index:     make(map[string]int),
		health:    health,
	}
}

// AddProvider registers a provider and its models. Later additions with the
// same ID replace the earlier entry in place, keeping discovery order.
func (s *Store) AddProvider(p models.Provider, providerModels ...models.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.index[p.ID]; ok {
		s.providers[pos] = p
	} else {
		s.index[p.ID] = len(s.providers)
		s.providers = append(s.providers, p)
	}
	s.modelsFor[p.ID] = append([]models.Model(nil), providerModels...)
}

// LoadFrom replaces the catalog contents from the persistent store.
func (s *Store) LoadFrom(ctx context.Context, src Source) error {
	providers, err := src.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("loading providers: %w", err)
	}

	for _, p := range providers {
		providerModels, err := src.ListModels(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("loading models for %s: %w", p.ID, err)
		}
		s.AddProvider(p, providerModels...)
	}
	return nil
}

// Providers returns a copy of all registered providers in discovery order.
func (s *Store) Providers() []models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// SetActive flips a provider's administrative active flag.
func (s *Store) SetActive(providerID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[providerID]
	if !ok {
		return fmt.Errorf("catalog: provider %s not found", providerID)
	}
	s.providers[pos].IsActive = active
	return nil
}

// EligibleCandidates returns the (provider, model) pairs reachable at the
// given trust score, in discovery order. A candidate qualifies only when its
// provider is active and healthy and the model's trust gate is satisfied.
// An empty result is not an error; the router maps it to its own terminal
// state so callers can separate access-denied from infrastructure failure.
func (s *Store) EligibleCandidates(trustScore int) []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.Candidate
	for _, p := range s.providers {
		if !p.IsActive {
			continue
		}
		if s.health != nil && !s.health.IsHealthy(p.ID) {
			continue
		}
		for _, m := range s.modelsFor[p.ID] {
			if m.MinTrustRequired > trustScore {
				continue
			}
			candidates = append(candidates, models.Candidate{Provider: p, Model: m})
		}
	}
	return candidates
}
