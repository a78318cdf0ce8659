// Package models defines the core data structures shared across the gateway.
package models

import "time"

// ProviderKind identifies the wire protocol a backend provider speaks.
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindAnthropic ProviderKind = "anthropic"
	KindGemini    ProviderKind = "gemini"
)

// Provider is a registered backend AI provider. Providers are created at
// catalog load and mutated only by administrative action, never on the
// request path.
type Provider struct {
	ID        string       `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Kind      ProviderKind `json:"kind" db:"kind"`
	IsActive  bool         `json:"is_active" db:"is_active"`
	Priority  int          `json:"priority" db:"priority"` // 0-100, operator tie-break
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Model is a chat model owned by exactly one provider. Immutable to the
// routing layer.
type Model struct {
	ProviderID        string  `json:"provider_id" db:"provider_id"`
	Name              string  `json:"name" db:"name"`
	CostPerUnitInput  float64 `json:"cost_per_unit_input" db:"cost_per_unit_input"`
	CostPerUnitOutput float64 `json:"cost_per_unit_output" db:"cost_per_unit_output"`
	QualityScore      int     `json:"quality_score" db:"quality_score"`           // 0-100, static rating
	MinTrustRequired  int     `json:"min_trust_required" db:"min_trust_required"` // 0-100 gate
}

// Candidate is a (Provider, Model) pair eligible for a given request.
type Candidate struct {
	Provider Provider `json:"provider"`
	Model    Model    `json:"model"`
}

// HealthSnapshot is a point-in-time view of a provider's health record,
// safe to serialize for dashboards.
type HealthSnapshot struct {
	ProviderID     string    `json:"provider_id"`
	IsHealthy      bool      `json:"is_healthy"`
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	SuccessRate    float64   `json:"success_rate"` // (total-failed)/total*100
	LastError      string    `json:"last_error,omitempty"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
}

// Usage is the token accounting reported by a provider for one attempt.
type Usage struct {
	InputUnits  int64 `json:"input_units"`
	OutputUnits int64 `json:"output_units"`
}

// UsageRecord is the append-only audit row written for every dispatch
// attempt. Exactly one per attempt; never mutated or deleted.
type UsageRecord struct {
	ID          string    `json:"id" db:"id"`
	CallerID    string    `json:"caller_id" db:"caller_id"`
	ProviderID  string    `json:"provider_id" db:"provider_id"`
	ModelName   string    `json:"model_name" db:"model_name"`
	InputUnits  int64     `json:"input_units" db:"input_units"`
	OutputUnits int64     `json:"output_units" db:"output_units"`
	CostUSD     float64   `json:"cost_usd" db:"cost_usd"`
	LatencyMs   int64     `json:"latency_ms" db:"latency_ms"`
	Success     bool      `json:"success" db:"success"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// ChatRequest is the inference request carried end to end. Prompt content
// is never persisted; only usage metadata reaches the ledger.
type ChatRequest struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// ChatResult is what a backend provider returns for one successful call.
type ChatResult struct {
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	LatencyMs int64  `json:"latency_ms"`
}

// RouteResponse is the gateway's answer for a routed request: the content
// plus the provider/model actually used, cost, and the caller's tier label.
type RouteResponse struct {
	RequestID  string  `json:"request_id"`
	Content    string  `json:"content"`
	ProviderID string  `json:"provider_id"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Usage      Usage   `json:"usage"`
	CostUSD    float64 `json:"cost_usd"`
	LatencyMs  int64   `json:"latency_ms"`
	TrustTier  string  `json:"trust_tier"`
	Attempts   int     `json:"attempts"`
}

// UsageSummary is aggregated usage grouped by one dimension
// (caller, provider, or model).
type UsageSummary struct {
	Dimension     string  `json:"dimension"`
	DimensionID   string  `json:"dimension_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	TotalRequests int64   `json:"total_requests"`
	TotalUnits    int64   `json:"total_units"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	FailureCount  int64   `json:"failure_count"`
}
