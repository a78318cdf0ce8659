package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

type fakeProber struct {
	err    error
	probed []string
}

func (f *fakeProber) Probe(ctx context.Context, provider models.Provider) error {
	f.probed = append(f.probed, provider.ID)
	return f.err
}

func TestSuccessRate_NoTraffic(t *testing.T) {
	tr := NewTracker(nil, nil)
	if rate := tr.SuccessRate("unknown"); rate != 100 {
		t.Errorf("expected neutral rate 100 for untried provider, got %f", rate)
	}
}

func TestRecordOutcome_Counters(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.RecordOutcome("p1", true, nil)
	tr.RecordOutcome("p1", true, nil)
	tr.RecordOutcome("p1", false, errors.New("upstream status 500"))
	tr.RecordOutcome("p1", true, nil)

	snap := tr.Snapshot("p1")
	if snap.TotalRequests != 4 {
		t.Errorf("expected 4 total requests, got %d", snap.TotalRequests)
	}
	if snap.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", snap.FailedRequests)
	}
	if snap.SuccessRate != 75 {
		t.Errorf("expected success rate 75, got %f", snap.SuccessRate)
	}
	if snap.LastError != "upstream status 500" {
		t.Errorf("expected last error recorded, got %q", snap.LastError)
	}
}

func TestRecordOutcome_DoesNotTouchHealthyFlag(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.RecordOutcome("p1", false, errors.New("boom"))
	tr.RecordOutcome("p1", false, errors.New("boom"))

	if !tr.IsHealthy("p1") {
		t.Error("expected healthy flag unaffected by outcome failures")
	}
}

func TestRecordProbe_SetsHealthyFlagOnly(t *testing.T) {
	tr := NewTracker(nil, nil)

	tr.RecordOutcome("p1", true, nil)
	before := tr.Snapshot("p1")

	tr.RecordProbe("p1", false, errors.New("connection refused"))

	after := tr.Snapshot("p1")
	if after.IsHealthy {
		t.Error("expected unhealthy after failed probe")
	}
	if after.TotalRequests != before.TotalRequests || after.FailedRequests != before.FailedRequests {
		t.Errorf("expected counters untouched by probe, got total %d failed %d",
			after.TotalRequests, after.FailedRequests)
	}
	if after.LastCheckedAt.IsZero() {
		t.Error("expected lastCheckedAt set by probe")
	}

	tr.RecordProbe("p1", true, nil)
	if !tr.IsHealthy("p1") {
		t.Error("expected healthy after successful probe")
	}
}

func TestIsHealthy_DefaultsTrue(t *testing.T) {
	tr := NewTracker(nil, nil)
	if !tr.IsHealthy("never-seen") {
		t.Error("expected unknown provider to default healthy")
	}
}

func TestRestore_SeedsState(t *testing.T) {
	tr := NewTracker(nil, nil)
	checked := time.Now().UTC().Add(-time.Hour)

	tr.Restore([]models.HealthSnapshot{
		{ProviderID: "p1", IsHealthy: false, TotalRequests: 10, FailedRequests: 4, LastError: "old failure", LastCheckedAt: checked},
	})

	if tr.IsHealthy("p1") {
		t.Error("expected restored unhealthy flag")
	}
	if rate := tr.SuccessRate("p1"); rate != 60 {
		t.Errorf("expected restored success rate 60, got %f", rate)
	}
	snap := tr.Snapshot("p1")
	if !snap.LastCheckedAt.Equal(checked) {
		t.Errorf("expected restored lastCheckedAt %v, got %v", checked, snap.LastCheckedAt)
	}
}

func TestCheckAll_ProbesEveryProvider(t *testing.T) {
	prober := &fakeProber{}
	tr := NewTracker(nil, prober)

	providers := []models.Provider{
		{ID: "p1", Name: "One"},
		{ID: "p2", Name: "Two"},
	}

	snapshots := tr.CheckAll(context.Background(), providers)
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if len(prober.probed) != 2 || prober.probed[0] != "p1" || prober.probed[1] != "p2" {
		t.Errorf("expected probes for p1 then p2, got %v", prober.probed)
	}
	for _, s := range snapshots {
		if !s.IsHealthy {
			t.Errorf("expected %s healthy after successful probe", s.ProviderID)
		}
		if s.LastCheckedAt.IsZero() {
			t.Errorf("expected lastCheckedAt set for %s", s.ProviderID)
		}
	}
}

func TestCheckAll_LeavesCountersAlone(t *testing.T) {
	prober := &fakeProber{err: errors.New("probe refused")}
	tr := NewTracker(nil, prober)

	tr.RecordOutcome("p1", true, nil)
	tr.RecordOutcome("p1", false, errors.New("boom"))

	providers := []models.Provider{{ID: "p1", Name: "One"}}
	tr.CheckAll(context.Background(), providers)
	snapshots := tr.CheckAll(context.Background(), providers)

	if snapshots[0].TotalRequests != 2 || snapshots[0].FailedRequests != 1 {
		t.Errorf("expected counters 2/1 untouched by probe cycles, got %d/%d",
			snapshots[0].TotalRequests, snapshots[0].FailedRequests)
	}
	if snapshots[0].IsHealthy {
		t.Error("expected unhealthy after failed probe")
	}
}

func TestCheckAll_NilProberSkipsProbe(t *testing.T) {
	tr := NewTracker(nil, nil)

	snapshots := tr.CheckAll(context.Background(), []models.Provider{{ID: "p1"}})
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if !snapshots[0].LastCheckedAt.IsZero() {
		t.Error("expected no probe timestamp without a prober")
	}
}
