package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// ListProviders returns all registered providers.
func (db *DB) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, kind, is_active, priority, created_at
		FROM providers ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying providers: %w", err)
	}
	defer rows.Close()

	var results []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.IsActive, &p.Priority, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ListModels returns all models for a provider.
func (db *DB) ListModels(ctx context.Context, providerID string) ([]models.Model, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider_id, name, cost_per_unit_input, cost_per_unit_output, quality_score, min_trust_required
		FROM provider_models WHERE provider_id = $1 ORDER BY name
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("querying models for %s: %w", providerID, err)
	}
	defer rows.Close()

	var results []models.Model
	for rows.Next() {
		var m models.Model
		if err := rows.Scan(&m.ProviderID, &m.Name, &m.CostPerUnitInput, &m.CostPerUnitOutput, &m.QualityScore, &m.MinTrustRequired); err != nil {
			return nil, fmt.Errorf("scanning model: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SetProviderActive flips a provider's administrative active flag. This is
// the only catalog mutation; it never runs on the request path.
func (db *DB) SetProviderActive(ctx context.Context, providerID string, active bool) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE providers SET is_active = $1 WHERE id = $2`, active, providerID)
	if err != nil {
		return fmt.Errorf("updating provider %s: %w", providerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provider %s not found", providerID)
	}
	return nil
}

// ApplyOutcome atomically folds one attempt outcome into a provider's health
// counters. Plain single-row increments keep concurrent writers commutative;
// no read-modify-write cycle is ever issued.
func (db *DB) ApplyOutcome(ctx context.Context, providerID string, success bool, lastError string) error {
	failedDelta := 0
	if !success {
		failedDelta = 1
	}
	_, err := db.Pool.Exec(ctx, `
		UPDATE health_records
		SET total_requests = total_requests + 1,
		    failed_requests = failed_requests + $1,
		    last_error = CASE WHEN $2 <> '' THEN $2 ELSE last_error END
		WHERE provider_id = $3
	`, failedDelta, lastError, providerID)
	if err != nil {
		return fmt.Errorf("applying outcome for %s: %w", providerID, err)
	}
	return nil
}

// ApplyProbe records an out-of-band liveness probe result. Probes set the
// health flag directly and never touch the rolling counters.
func (db *DB) ApplyProbe(ctx context.Context, providerID string, healthy bool, lastError string, checkedAt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE health_records
		SET is_healthy = $1,
		    last_error = CASE WHEN $2 <> '' THEN $2 ELSE last_error END,
		    last_checked_at = $3
		WHERE provider_id = $4
	`, healthy, lastError, checkedAt, providerID)
	if err != nil {
		return fmt.Errorf("applying probe for %s: %w", providerID, err)
	}
	return nil
}

// GetHealthRecords returns the persisted health rows for all providers.
func (db *DB) GetHealthRecords(ctx context.Context) ([]models.HealthSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider_id, is_healthy, total_requests, failed_requests,
		       COALESCE(last_error, ''), last_checked_at
		FROM health_records ORDER BY provider_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying health records: %w", err)
	}
	defer rows.Close()

	var results []models.HealthSnapshot
	for rows.Next() {
		var h models.HealthSnapshot
		if err := rows.Scan(&h.ProviderID, &h.IsHealthy, &h.TotalRequests, &h.FailedRequests, &h.LastError, &h.LastCheckedAt); err != nil {
			return nil, fmt.Errorf("scanning health record: %w", err)
		}
		if h.TotalRequests > 0 {
			h.SuccessRate = float64(h.TotalRequests-h.FailedRequests) / float64(h.TotalRequests) * 100
		} else {
			h.SuccessRate = 100
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetCallerTrust returns the trust score for a caller.
func (db *DB) GetCallerTrust(ctx context.Context, callerID string) (int, error) {
	var score int
	err := db.Pool.QueryRow(ctx,
		`SELECT trust_score FROM callers WHERE id = $1`, callerID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("querying trust for %s: %w", callerID, err)
	}
	return score, nil
}

// InsertUsage stores one append-only usage record.
func (db *DB) InsertUsage(ctx context.Context, rec *models.UsageRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, caller_id, provider_id, model_name,
			input_units, output_units, cost_usd, latency_ms, success, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.CallerID, rec.ProviderID, rec.ModelName,
		rec.InputUnits, rec.OutputUnits, rec.CostUSD, rec.LatencyMs, rec.Success, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// GetRecentUsage returns the most recent N usage records.
func (db *DB) GetRecentUsage(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, caller_id, provider_id, model_name,
		       input_units, output_units, cost_usd, latency_ms, success, timestamp
		FROM usage_records ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent usage: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(
			&r.ID, &r.CallerID, &r.ProviderID, &r.ModelName,
			&r.InputUnits, &r.OutputUnits, &r.CostUSD, &r.LatencyMs, &r.Success, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetUsageSummary returns aggregated usage grouped by a given dimension.
// Only whitelisted dimension values are accepted; all SQL identifiers are
// derived from the whitelisted map to prevent SQL injection.
func (db *DB) GetUsageSummary(ctx context.Context, dimension string, from, to time.Time) ([]models.UsageSummary, error) {
	allowed := map[string]string{
		"caller":   "caller_id",
		"provider": "provider_id",
		"model":    "model_name",
	}
	col, ok := allowed[dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported dimension: %s", dimension)
	}

	query := fmt.Sprintf(`
		SELECT
			'%s' AS dimension,
			%s AS dimension_id,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd,
			COUNT(*) AS total_requests,
			COALESCE(SUM(input_units + output_units), 0) AS total_units,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms,
			COUNT(*) FILTER (WHERE NOT success) AS failure_count
		FROM usage_records
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY %s
		ORDER BY total_cost_usd DESC
	`, col, col, col)

	rows, err := db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}
	defer rows.Close()

	var results []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(
			&s.Dimension, &s.DimensionID, &s.TotalCostUSD,
			&s.TotalRequests, &s.TotalUnits, &s.AvgLatencyMs, &s.FailureCount,
		); err != nil {
			return nil, fmt.Errorf("scanning usage summary: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
