// Package dispatch executes ranked candidates sequentially with failover.
//
// Each logical request walks its ranked list one candidate at a time under a
// bounded per-attempt timeout: Pending -> Attempting(i) -> Success, or on
// failure Attempting(i+1), or Exhausted. Attempts are never concurrent
// within one request, which bounds worst-case latency to the sum of
// per-candidate timeouts and keeps health attribution unambiguous.
package dispatch

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/scoring"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// State names the dispatcher's per-request phases.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateSuccess    State = "success"
	StateExhausted  State = "exhausted"
)

// ChatClient is the single polymorphic seam to a backend provider: one
// implementation per provider kind, provider quirks stay behind it.
type ChatClient interface {
	Chat(ctx context.Context, model string, req models.ChatRequest) (*models.ChatResult, error)
}

// OutcomeRecorder receives exactly one passive health outcome per attempt.
type OutcomeRecorder interface {
	RecordOutcome(providerID string, success bool, attemptErr error)
}

// Ledger receives exactly one append-only usage record per attempt.
type Ledger interface {
	Record(ctx context.Context, callerID string, cand models.Candidate, usage models.Usage, latencyMs int64, success bool) *models.UsageRecord
}

// Result is a successful dispatch: the candidate that answered and its reply.
type Result struct {
	Candidate models.Candidate
	Chat      *models.ChatResult
	Record    *models.UsageRecord
	Attempts  int
}

// Dispatcher runs the failover loop.
type Dispatcher struct {
	clients        map[models.ProviderKind]ChatClient
	health         OutcomeRecorder
	ledger         Ledger
	attemptTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. attemptTimeout bounds each candidate
// call; zero disables the per-attempt bound (the caller deadline still holds).
func NewDispatcher(clients map[models.ProviderKind]ChatClient, health OutcomeRecorder, ledger Ledger, attemptTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		clients:        clients,
		health:         health,
		ledger:         ledger,
		attemptTimeout: attemptTimeout,
	}
}

// Execute tries ranked candidates in order until one succeeds. Every attempt,
// successful or not, yields one health outcome and one usage record. The
// ranked list is never reordered here; scoring already decided the order.
func (d *Dispatcher) Execute(ctx context.Context, callerID string, ranked []scoring.Ranked, req models.ChatRequest) (*Result, error) {
	if len(ranked) == 0 {
		return nil, ErrNoCandidates
	}

	var lastErr error

	for i, r := range ranked {
		// A caller deadline that elapsed mid-failover aborts the walk.
		if err := ctx.Err(); err != nil {
			return nil, &DeadlineError{Attempts: i, LastErr: lastErr}
		}

		cand := r.Candidate

		chat, latencyMs, attemptErr := d.attempt(ctx, cand, req)
		if attemptErr == nil {
			d.health.RecordOutcome(cand.Provider.ID, true, nil)
			rec := d.ledger.Record(ctx, callerID, cand, chat.Usage, latencyMs, true)
			return &Result{Candidate: cand, Chat: chat, Record: rec, Attempts: i + 1}, nil
		}

		d.health.RecordOutcome(cand.Provider.ID, false, attemptErr)
		d.ledger.Record(ctx, callerID, cand, models.Usage{}, latencyMs, false)
		lastErr = attemptErr
		log.Printf("dispatch: [%s] candidate %d/%d %s/%s failed: %v",
			StateAttempting, i+1, len(ranked), cand.Provider.ID, cand.Model.Name, attemptErr)

		// The caller deadline, not the per-attempt bound, ended this attempt.
		if ctx.Err() != nil {
			return nil, &DeadlineError{Attempts: i + 1, LastErr: lastErr}
		}
	}

	log.Printf("dispatch: [%s] caller %s, %d candidates tried", StateExhausted, callerID, len(ranked))
	return nil, &ExhaustedError{Attempts: len(ranked), LastErr: lastErr}
}

// attempt invokes one candidate under the per-attempt timeout and classifies
// any failure into a ProviderError.
func (d *Dispatcher) attempt(ctx context.Context, cand models.Candidate, req models.ChatRequest) (*models.ChatResult, int64, error) {
	client, ok := d.clients[cand.Provider.Kind]
	if !ok {
		return nil, 0, &ProviderError{
			ProviderID: cand.Provider.ID,
			Model:      cand.Model.Name,
			Kind:       KindUpstream,
			Err:        errors.New("no client registered for provider kind " + string(cand.Provider.Kind)),
		}
	}

	attemptCtx := ctx
	cancel := func() {}
	if d.attemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, d.attemptTimeout)
	}
	defer cancel()

	start := time.Now()
	chat, err := client.Chat(attemptCtx, cand.Model.Name, req)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		kind := KindUpstream
		var urlErr *url.Error
		if errors.Is(err, context.DeadlineExceeded) {
			// A timeout is treated identically to a reported failure,
			// but keeps its own kind for the audit trail.
			kind = KindTimeout
		} else if errors.As(err, &urlErr) {
			kind = KindNetwork
		}
		return nil, latencyMs, &ProviderError{
			ProviderID: cand.Provider.ID,
			Model:      cand.Model.Name,
			Kind:       kind,
			Err:        err,
		}
	}

	if chat.LatencyMs == 0 {
		chat.LatencyMs = latencyMs
	}
	return chat, latencyMs, nil
}
