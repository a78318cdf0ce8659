// Package health maintains rolling per-provider health from passive request
// outcomes and active liveness probes.
//
// The two signals are independent: outcomes drive the success-rate counters,
// probes drive the healthy flag. A probe failure can take a provider out of
// rotation immediately even with a good historical rate, and a probe success
// does not erase a bad trend.
package health

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// Store persists health mutations. Both methods are single-row atomic
// updates; the tracker never reads counters back from the store.
type Store interface {
	ApplyOutcome(ctx context.Context, providerID string, success bool, lastError string) error
	ApplyProbe(ctx context.Context, providerID string, healthy bool, lastError string, checkedAt time.Time) error
}

// Prober performs an out-of-band liveness check against one provider.
type Prober interface {
	Probe(ctx context.Context, provider models.Provider) error
}

// record holds the in-memory health state for one provider. Counters use
// atomic increments so concurrent writers from unrelated requests converge
// regardless of interleaving.
type record struct {
	total   atomic.Int64
	failed  atomic.Int64
	healthy atomic.Bool

	mu            sync.Mutex
	lastError     string
	lastCheckedAt time.Time
}

// Tracker maintains health records for all known providers.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record

	store  Store  // optional; nil means in-memory only
	prober Prober // optional; nil disables probe cycles
}

// NewTracker creates a Tracker. store and prober may be nil.
func NewTracker(store Store, prober Prober) *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		store:   store,
		prober:  prober,
	}
}

func (t *Tracker) getOrCreate(providerID string) *record {
	t.mu.RLock()
	rec, ok := t.records[providerID]
	t.mu.RUnlock()
	if ok {
		return rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[providerID]; ok {
		return rec
	}
	rec = &record{}
	rec.healthy.Store(true)
	t.records[providerID] = rec
	return rec
}

// Restore seeds the in-memory state from persisted snapshots at startup.
func (t *Tracker) Restore(snapshots []models.HealthSnapshot) {
	for _, s := range snapshots {
		rec := t.getOrCreate(s.ProviderID)
		rec.total.Store(s.TotalRequests)
		rec.failed.Store(s.FailedRequests)
		rec.healthy.Store(s.IsHealthy)
		rec.mu.Lock()
		rec.lastError = s.LastError
		rec.lastCheckedAt = s.LastCheckedAt
		rec.mu.Unlock()
	}
}

// RecordOutcome folds one real attempt outcome into the rolling counters.
// Exactly one call per dispatch attempt.
func (t *Tracker) RecordOutcome(providerID string, success bool, attemptErr error) {
	rec := t.getOrCreate(providerID)
	rec.total.Add(1)

	errMsg := ""
	if !success {
		rec.failed.Add(1)
		if attemptErr != nil {
			errMsg = attemptErr.Error()
			rec.mu.Lock()
			rec.lastError = errMsg
			rec.mu.Unlock()
		}
	}

	if t.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.store.ApplyOutcome(ctx, providerID, success, errMsg); err != nil {
				log.Printf("health: failed to persist outcome for %s: %v", providerID, err)
			}
		}()
	}
}

// RecordProbe applies an out-of-band liveness result. The healthy flag is
// set directly from the probe; the rolling counters are untouched.
func (t *Tracker) RecordProbe(providerID string, healthy bool, probeErr error) {
	rec := t.getOrCreate(providerID)
	rec.healthy.Store(healthy)

	now := time.Now().UTC()
	errMsg := ""
	if probeErr != nil {
		errMsg = probeErr.Error()
	}
	rec.mu.Lock()
	if errMsg != "" {
		rec.lastError = errMsg
	}
	rec.lastCheckedAt = now
	rec.mu.Unlock()

	if t.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.store.ApplyProbe(ctx, providerID, healthy, errMsg, now); err != nil {
				log.Printf("health: failed to persist probe for %s: %v", providerID, err)
			}
		}()
	}
}

// IsHealthy reports the probe-driven health flag. Providers with no state
// yet default to healthy so new catalog entries are routable.
func (t *Tracker) IsHealthy(providerID string) bool {
	t.mu.RLock()
	rec, ok := t.records[providerID]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	return rec.healthy.Load()
}

// SuccessRate derives (total-failed)/total*100, clamped to [0,100].
// With no traffic recorded the rate is neutral (100) so untried providers
// are not penalized by the scorer.
func (t *Tracker) SuccessRate(providerID string) float64 {
	t.mu.RLock()
	rec, ok := t.records[providerID]
	t.mu.RUnlock()
	if !ok {
		return 100
	}

	total := rec.total.Load()
	if total == 0 {
		return 100
	}
	failed := rec.failed.Load()
	rate := float64(total-failed) / float64(total) * 100
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// Snapshot returns a point-in-time view of one provider's record.
func (t *Tracker) Snapshot(providerID string) models.HealthSnapshot {
	rec := t.getOrCreate(providerID)
	rec.mu.Lock()
	lastError := rec.lastError
	lastChecked := rec.lastCheckedAt
	rec.mu.Unlock()

	return models.HealthSnapshot{
		ProviderID:     providerID,
		IsHealthy:      rec.healthy.Load(),
		TotalRequests:  rec.total.Load(),
		FailedRequests: rec.failed.Load(),
		SuccessRate:    t.SuccessRate(providerID),
		LastError:      lastError,
		LastCheckedAt:  lastChecked,
	}
}

// CheckAll runs one probe cycle over the given providers and returns the
// resulting snapshots. Probe failures are logged, not retried; the next
// cycle re-evaluates.
func (t *Tracker) CheckAll(ctx context.Context, providers []models.Provider) []models.HealthSnapshot {
	snapshots := make([]models.HealthSnapshot, 0, len(providers))
	for _, p := range providers {
		select {
		case <-ctx.Done():
			return snapshots
		default:
		}

		if t.prober != nil {
			err := t.prober.Probe(ctx, p)
			if err != nil {
				log.Printf("health: probe failed for provider %s: %v", p.ID, err)
			}
			t.RecordProbe(p.ID, err == nil, err)
		}
		snapshots = append(snapshots, t.Snapshot(p.ID))
	}
	return snapshots
}

// Start runs the periodic probe loop until ctx is cancelled. It never blocks
// request-path routing; each cycle probes the current provider set.
func (t *Tracker) Start(ctx context.Context, interval time.Duration, providersFn func() []models.Provider) {
	if t.prober == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.CheckAll(ctx, providersFn())
			}
		}
	}()
}
