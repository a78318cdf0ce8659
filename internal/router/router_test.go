package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/catalog"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/dispatch"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/health"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/ledger"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/scoring"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/trust"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

type fakeTrust struct {
	scores map[string]int
	err    error
}

func (f *fakeTrust) GetCallerTrust(ctx context.Context, callerID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[callerID], nil
}

type fakeClient struct {
	errs  map[string]error
	delay map[string]time.Duration
	calls int
}

func (f *fakeClient) Chat(ctx context.Context, model string, req models.ChatRequest) (*models.ChatResult, error) {
	f.calls++
	if d, ok := f.delay[model]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[model]; ok {
		return nil, err
	}
	return &models.ChatResult{
		Content: "response from " + model,
		Usage:   models.Usage{InputUnits: 100, OutputUnits: 50},
	}, nil
}

// testGateway assembles a full pipeline around a fake trust source and a
// fake provider client.
func testGateway(trustSource trust.Source, client dispatch.ChatClient, attemptTimeout time.Duration) (*Router, *ledger.Memory, *health.Tracker) {
	tracker := health.NewTracker(nil, nil)

	cat := catalog.NewStore(tracker)
	cat.AddProvider(
		models.Provider{ID: "prime", Name: "Prime", Kind: models.KindOpenAI, IsActive: true, Priority: 70},
		models.Model{ProviderID: "prime", Name: "prime-best", QualityScore: 95, CostPerUnitInput: 0.00001, CostPerUnitOutput: 0.00003, MinTrustRequired: 70},
		models.Model{ProviderID: "prime", Name: "prime-basic", QualityScore: 70, CostPerUnitInput: 0.000001, CostPerUnitOutput: 0.000002, MinTrustRequired: 50},
	)
	cat.AddProvider(
		models.Provider{ID: "backup", Name: "Backup", Kind: models.KindOpenAI, IsActive: true, Priority: 40},
		models.Model{ProviderID: "backup", Name: "backup-std", QualityScore: 60, CostPerUnitInput: 0.0000005, CostPerUnitOutput: 0.000001, MinTrustRequired: 50},
	)

	gate := trust.NewGate(trustSource)
	scorer := scoring.NewScorer(scoring.DefaultWeights(), tracker)
	mem := ledger.NewMemory()
	disp := dispatch.NewDispatcher(
		map[models.ProviderKind]dispatch.ChatClient{models.KindOpenAI: client},
		tracker, mem, attemptTimeout,
	)

	return New(cat, gate, scorer, disp, tracker), mem, tracker
}

func TestRoute_Success(t *testing.T) {
	client := &fakeClient{}
	rt, mem, _ := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 0)

	resp, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != "prime-best" {
		t.Errorf("expected highest-quality model prime-best, got %s", resp.Model)
	}
	if resp.TrustTier != trust.TierPremium {
		t.Errorf("expected premium tier, got %s", resp.TrustTier)
	}
	if resp.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", resp.Attempts)
	}
	if resp.RequestID == "" {
		t.Error("expected a request id from the ledger record")
	}
	if resp.CostUSD <= 0 {
		t.Errorf("expected positive cost, got %f", resp.CostUSD)
	}
	if len(mem.Records()) != 1 {
		t.Errorf("expected 1 ledger record, got %d", len(mem.Records()))
	}
}

func TestRoute_LowTrustNoNetworkCalls(t *testing.T) {
	client := &fakeClient{}
	rt, mem, _ := testGateway(&fakeTrust{scores: map[string]int{"caller-low": 10}}, client, 0)

	_, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-low")
	var noProvider *NoEligibleProviderError
	if !errors.As(err, &noProvider) {
		t.Fatalf("expected NoEligibleProviderError, got %v", err)
	}
	if noProvider.TrustScore != 10 {
		t.Errorf("expected trust score 10 in error, got %d", noProvider.TrustScore)
	}
	if client.calls != 0 {
		t.Errorf("expected zero provider calls for low trust, got %d", client.calls)
	}
	if len(mem.Records()) != 0 {
		t.Errorf("expected no ledger records, got %d", len(mem.Records()))
	}
}

func TestRoute_TrustLookupFailure(t *testing.T) {
	client := &fakeClient{}
	rt, _, _ := testGateway(&fakeTrust{err: errors.New("identity down")}, client, 0)

	_, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	var trustErr *TrustUnavailableError
	if !errors.As(err, &trustErr) {
		t.Fatalf("expected TrustUnavailableError, got %v", err)
	}
	if client.calls != 0 {
		t.Errorf("expected zero provider calls on trust failure, got %d", client.calls)
	}
}

func TestRoute_FailoverRecordsEveryAttempt(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		"prime-best":  errors.New("upstream status 500"),
		"prime-basic": errors.New("upstream status 500"),
	}}
	rt, mem, tracker := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 0)

	resp, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != "backup-std" {
		t.Errorf("expected fallback to backup-std, got %s", resp.Model)
	}
	if resp.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", resp.Attempts)
	}

	records := mem.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 ledger records (one per attempt), got %d", len(records))
	}
	if records[0].Success || records[1].Success || !records[2].Success {
		t.Errorf("expected fail, fail, success in order, got %+v", records)
	}

	// Health saw both prime failures and the backup success.
	if rate := tracker.SuccessRate("prime"); rate != 0 {
		t.Errorf("expected prime success rate 0, got %f", rate)
	}
	if rate := tracker.SuccessRate("backup"); rate != 100 {
		t.Errorf("expected backup success rate 100, got %f", rate)
	}
}

func TestRoute_AllProvidersFail(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		"prime-best":  errors.New("upstream status 500"),
		"prime-basic": errors.New("upstream status 503"),
		"backup-std":  errors.New("connection refused"),
	}}
	rt, mem, _ := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 0)

	_, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	var exhausted *dispatch.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if len(mem.Records()) != 3 {
		t.Errorf("expected 3 failed ledger records, got %d", len(mem.Records()))
	}
}

func TestRoute_TimeoutThenSuccess(t *testing.T) {
	client := &fakeClient{delay: map[string]time.Duration{
		"prime-best": 200 * time.Millisecond,
	}}
	rt, mem, _ := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 20*time.Millisecond)

	resp, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != "prime-basic" {
		t.Errorf("expected prime-basic after prime-best timeout, got %s", resp.Model)
	}
	if resp.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", resp.Attempts)
	}

	records := mem.Records()
	if len(records) != 2 || records[0].Success || !records[1].Success {
		t.Fatalf("expected timeout then success records, got %+v", records)
	}
}

func TestRoute_UnhealthyProviderSkipped(t *testing.T) {
	client := &fakeClient{}
	rt, _, tracker := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 0)

	tracker.RecordProbe("prime", false, errors.New("connection refused"))

	resp, err := rt.Route(context.Background(), models.ChatRequest{Prompt: "hi"}, "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "Backup" {
		t.Errorf("expected Backup with prime unhealthy, got %s", resp.Provider)
	}
	if client.calls != 1 {
		t.Errorf("expected exactly one provider call, got %d", client.calls)
	}
}

func TestCheckAllHealth_TouchesOnlyProbeState(t *testing.T) {
	client := &fakeClient{}
	rt, _, tracker := testGateway(&fakeTrust{scores: map[string]int{"caller-1": 80}}, client, 0)

	tracker.RecordOutcome("prime", true, nil)
	tracker.RecordOutcome("prime", false, errors.New("boom"))

	snapshots := rt.CheckAllHealth(context.Background())
	if len(snapshots) != 2 {
		t.Fatalf("expected snapshots for both providers, got %d", len(snapshots))
	}
	for _, s := range snapshots {
		if s.ProviderID == "prime" {
			if s.TotalRequests != 2 || s.FailedRequests != 1 {
				t.Errorf("expected counters 2/1 untouched, got %d/%d", s.TotalRequests, s.FailedRequests)
			}
		}
	}
}
