// Package ledger records the outcome of every dispatch attempt.
//
// Records are append-only: one per attempt, written under a fresh identity,
// never mutated, never retried under the same identity. Persistence happens
// off the request path so a slow store cannot stall failover.
package ledger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/database"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
	"github.com/google/uuid"
)

// Cost prices one attempt: both unit prices are billed even though ranking
// only looks at the input price.
func Cost(m models.Model, usage models.Usage) float64 {
	return float64(usage.InputUnits)*m.CostPerUnitInput +
		float64(usage.OutputUnits)*m.CostPerUnitOutput
}

func buildRecord(callerID string, cand models.Candidate, usage models.Usage, latencyMs int64, success bool) *models.UsageRecord {
	return &models.UsageRecord{
		ID:          uuid.New().String(),
		CallerID:    callerID,
		ProviderID:  cand.Provider.ID,
		ModelName:   cand.Model.Name,
		InputUnits:  usage.InputUnits,
		OutputUnits: usage.OutputUnits,
		CostUSD:     Cost(cand.Model, usage),
		LatencyMs:   latencyMs,
		Success:     success,
		Timestamp:   time.Now().UTC(),
	}
}

// SpendMirror keeps a live per-caller spend counter alongside the durable
// records, for fast dashboard lookups.
type SpendMirror interface {
	IncrCallerSpend(ctx context.Context, callerID string, amount float64) (float64, error)
}

// PG is the PostgreSQL-backed ledger. Inserts run asynchronously with their
// own timeout, mirroring spend to the cache when one is configured.
type PG struct {
	db     *database.DB
	mirror SpendMirror // optional
}

// NewPG creates a PostgreSQL-backed ledger. mirror may be nil.
func NewPG(db *database.DB, mirror SpendMirror) *PG {
	return &PG{db: db, mirror: mirror}
}

// Record appends one usage record for the attempt.
func (l *PG) Record(ctx context.Context, callerID string, cand models.Candidate, usage models.Usage, latencyMs int64, success bool) *models.UsageRecord {
	rec := buildRecord(callerID, cand, usage, latencyMs, success)

	go func() {
		insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.db.InsertUsage(insertCtx, rec); err != nil {
			log.Printf("ledger: [%s] failed to insert usage record: %v", rec.ID, err)
		}
		if l.mirror != nil && rec.CostUSD > 0 {
			if _, err := l.mirror.IncrCallerSpend(insertCtx, callerID, rec.CostUSD); err != nil {
				log.Printf("ledger: [%s] failed to mirror spend: %v", rec.ID, err)
			}
		}
	}()

	return rec
}

// Memory is an in-process ledger used in tests and when the database is
// unavailable at startup.
type Memory struct {
	mu      sync.Mutex
	records []models.UsageRecord
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends one usage record for the attempt.
func (l *Memory) Record(ctx context.Context, callerID string, cand models.Candidate, usage models.Usage, latencyMs int64, success bool) *models.UsageRecord {
	rec := buildRecord(callerID, cand, usage, latencyMs, success)
	l.mu.Lock()
	l.records = append(l.records, *rec)
	l.mu.Unlock()
	return rec
}

// Records returns a copy of everything recorded so far, in append order.
func (l *Memory) Records() []models.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}
