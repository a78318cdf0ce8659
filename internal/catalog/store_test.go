package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

type fakeHealth struct {
	unhealthy map[string]bool
}

func (f *fakeHealth) IsHealthy(providerID string) bool {
	return !f.unhealthy[providerID]
}

func seedStore(health HealthSource) *Store {
	s := NewStore(health)
	s.AddProvider(
		models.Provider{ID: "alpha", Name: "Alpha", IsActive: true, Priority: 50},
		models.Model{ProviderID: "alpha", Name: "alpha-small", MinTrustRequired: 0},
		models.Model{ProviderID: "alpha", Name: "alpha-large", MinTrustRequired: 70},
	)
	s.AddProvider(
		models.Provider{ID: "beta", Name: "Beta", IsActive: true, Priority: 60},
		models.Model{ProviderID: "beta", Name: "beta-med", MinTrustRequired: 50},
	)
	return s
}

func TestEligibleCandidates_TrustGate(t *testing.T) {
	s := seedStore(nil)

	low := s.EligibleCandidates(10)
	if len(low) != 1 || low[0].Model.Name != "alpha-small" {
		t.Fatalf("expected only alpha-small at trust 10, got %d candidates", len(low))
	}

	mid := s.EligibleCandidates(50)
	if len(mid) != 2 {
		t.Fatalf("expected 2 candidates at trust 50, got %d", len(mid))
	}

	high := s.EligibleCandidates(70)
	if len(high) != 3 {
		t.Fatalf("expected all 3 candidates at trust 70, got %d", len(high))
	}
}

func TestEligibleCandidates_SkipsInactiveProvider(t *testing.T) {
	s := seedStore(nil)
	if err := s.SetActive("beta", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	candidates := s.EligibleCandidates(100)
	for _, c := range candidates {
		if c.Provider.ID == "beta" {
			t.Error("expected inactive beta excluded from candidates")
		}
	}
}

func TestEligibleCandidates_SkipsUnhealthyProvider(t *testing.T) {
	health := &fakeHealth{unhealthy: map[string]bool{"alpha": true}}
	s := seedStore(health)

	candidates := s.EligibleCandidates(100)
	if len(candidates) != 1 || candidates[0].Provider.ID != "beta" {
		t.Fatalf("expected only beta with alpha unhealthy, got %d candidates", len(candidates))
	}
}

func TestEligibleCandidates_EmptyIsNotError(t *testing.T) {
	health := &fakeHealth{unhealthy: map[string]bool{"alpha": true, "beta": true}}
	s := seedStore(health)

	candidates := s.EligibleCandidates(100)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates with everything unhealthy, got %d", len(candidates))
	}
}

func TestEligibleCandidates_DiscoveryOrder(t *testing.T) {
	s := seedStore(nil)
	candidates := s.EligibleCandidates(100)

	want := []string{"alpha-small", "alpha-large", "beta-med"}
	if len(candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(candidates))
	}
	for i, name := range want {
		if candidates[i].Model.Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, candidates[i].Model.Name)
		}
	}
}

func TestAddProvider_ReplacesInPlace(t *testing.T) {
	s := seedStore(nil)
	s.AddProvider(
		models.Provider{ID: "alpha", Name: "Alpha v2", IsActive: true, Priority: 99},
		models.Model{ProviderID: "alpha", Name: "alpha-new", MinTrustRequired: 0},
	)

	providers := s.Providers()
	if providers[0].ID != "alpha" || providers[0].Name != "Alpha v2" {
		t.Errorf("expected alpha replaced in place at position 0, got %+v", providers[0])
	}

	candidates := s.EligibleCandidates(100)
	for _, c := range candidates {
		if c.Model.Name == "alpha-small" {
			t.Error("expected old alpha models replaced")
		}
	}
}

func TestSetActive_UnknownProvider(t *testing.T) {
	s := seedStore(nil)
	if err := s.SetActive("missing", false); err == nil {
		t.Error("expected error for unknown provider")
	}
}

type fakeSource struct {
	providers []models.Provider
	models    map[string][]models.Model
	listErr   error
}

func (f *fakeSource) ListProviders(ctx context.Context) ([]models.Provider, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.providers, nil
}

func (f *fakeSource) ListModels(ctx context.Context, providerID string) ([]models.Model, error) {
	return f.models[providerID], nil
}

func TestLoadFrom_PopulatesCatalog(t *testing.T) {
	src := &fakeSource{
		providers: []models.Provider{{ID: "p1", Name: "One", IsActive: true}},
		models: map[string][]models.Model{
			"p1": {{ProviderID: "p1", Name: "m1"}},
		},
	}

	s := NewStore(nil)
	if err := s.LoadFrom(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Providers()) != 1 {
		t.Fatalf("expected 1 provider loaded, got %d", len(s.Providers()))
	}
	if got := s.EligibleCandidates(0); len(got) != 1 || got[0].Model.Name != "m1" {
		t.Errorf("expected loaded model m1 eligible, got %v", got)
	}
}

func TestLoadFrom_PropagatesError(t *testing.T) {
	src := &fakeSource{listErr: errors.New("connection refused")}
	s := NewStore(nil)
	if err := s.LoadFrom(context.Background(), src); err == nil {
		t.Error("expected error from failing source")
	}
}
