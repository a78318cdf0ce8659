// Package analytics generates operational insights from the usage ledger:
// spend spikes per caller, failover hot spots per provider, and period
// summary reports for the admin API.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InsightType categorizes the kind of insight generated.
type InsightType string

const (
	InsightCostSpike    InsightType = "cost_spike"
	InsightFailoverHot  InsightType = "failover_hotspot"
	InsightTrustStarved InsightType = "trust_starved"
)

// Severity indicates the urgency of an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight represents an actionable recommendation or alert.
type Insight struct {
	ID             string      `json:"id"`
	Type           InsightType `json:"type"`
	Severity       Severity    `json:"severity"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	AffectedEntity string      `json:"affected_entity"`
	CreatedAt      time.Time   `json:"created_at"`
}

// InsightsEngine generates insights from the usage ledger.
type InsightsEngine struct {
	pool *pgxpool.Pool
}

// NewInsightsEngine creates a new InsightsEngine.
func NewInsightsEngine(pool *pgxpool.Pool) *InsightsEngine {
	return &InsightsEngine{pool: pool}
}

// DetectSpikes analyzes recent usage data to identify caller cost spikes.
// A spike is a day where a caller's spend exceeds their 7-day rolling
// average by 2x.
func (e *InsightsEngine) DetectSpikes(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		WITH daily_costs AS (
			SELECT
				DATE(timestamp) AS day,
				SUM(cost_usd) AS daily_cost,
				caller_id
			FROM usage_records
			WHERE timestamp > NOW() - INTERVAL '14 days'
			GROUP BY DATE(timestamp), caller_id
		),
		rolling_avg AS (
			SELECT
				day,
				caller_id,
				daily_cost,
				AVG(daily_cost) OVER (
					PARTITION BY caller_id
					ORDER BY day
					ROWS BETWEEN 7 PRECEDING AND 1 PRECEDING
				) AS avg_cost
			FROM daily_costs
		)
		SELECT day, caller_id, daily_cost, avg_cost
		FROM rolling_avg
		WHERE daily_cost > avg_cost * 2
		  AND avg_cost > 0
		ORDER BY day DESC
		LIMIT 20
	`)
	if err != nil {
		return nil, fmt.Errorf("detecting spikes: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var day time.Time
		var callerID string
		var dailyCost, avgCost float64

		if err := rows.Scan(&day, &callerID, &dailyCost, &avgCost); err != nil {
			return nil, fmt.Errorf("scanning spike row: %w", err)
		}

		spikeMultiple := dailyCost / avgCost
		severity := SeverityWarning
		if spikeMultiple > 5 {
			severity = SeverityCritical
		}

		insights = append(insights, Insight{
			ID:       fmt.Sprintf("spike-%s-%s", callerID, day.Format("2006-01-02")),
			Type:     InsightCostSpike,
			Severity: severity,
			Title:    fmt.Sprintf("Cost spike detected for caller %s", callerID),
			Description: fmt.Sprintf(
				"On %s, caller %s spent $%.4f, which is %.1fx the 7-day rolling average of $%.4f.",
				day.Format("Jan 2"), callerID, dailyCost, spikeMultiple, avgCost,
			),
			AffectedEntity: callerID,
			CreatedAt:      time.Now(),
		})
	}

	return insights, rows.Err()
}

// DetectFailoverHotspots flags providers whose failed-attempt share over
// the last 7 days exceeds 25% with meaningful volume. Those providers are
// burning failover attempts and latency before a sibling picks the
// request up.
func (e *InsightsEngine) DetectFailoverHotspots(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		SELECT
			provider_id,
			COUNT(*) AS attempts,
			COUNT(*) FILTER (WHERE NOT success) AS failures
		FROM usage_records
		WHERE timestamp > NOW() - INTERVAL '7 days'
		GROUP BY provider_id
		HAVING COUNT(*) >= 20
		   AND COUNT(*) FILTER (WHERE NOT success) * 4 > COUNT(*)
		ORDER BY failures DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying failover hotspots: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var providerID string
		var attempts, failures int64

		if err := rows.Scan(&providerID, &attempts, &failures); err != nil {
			return nil, fmt.Errorf("scanning hotspot row: %w", err)
		}

		failurePct := float64(failures) / float64(attempts) * 100
		severity := SeverityWarning
		if failurePct > 50 {
			severity = SeverityCritical
		}

		insights = append(insights, Insight{
			ID:       fmt.Sprintf("hotspot-%s", providerID),
			Type:     InsightFailoverHot,
			Severity: severity,
			Title:    fmt.Sprintf("Provider %s is failing %.0f%% of attempts", providerID, failurePct),
			Description: fmt.Sprintf(
				"Over the last 7 days, %s failed %d of %d routed attempts. "+
					"Consider deactivating it until the upstream recovers.",
				providerID, failures, attempts,
			),
			AffectedEntity: providerID,
			CreatedAt:      time.Now(),
		})
	}

	return insights, rows.Err()
}

// GenerateReport creates a summary report for a given time period.
func (e *InsightsEngine) GenerateReport(ctx context.Context, from, to time.Time) (*Report, error) {
	if e.pool == nil {
		return nil, nil
	}

	var report Report
	report.From = from
	report.To = to

	err := e.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(cost_usd), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COALESCE(SUM(input_units + output_units), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM usage_records
		WHERE timestamp >= $1 AND timestamp <= $2
	`, from, to).Scan(
		&report.TotalCostUSD,
		&report.TotalAttempts,
		&report.SuccessfulAttempts,
		&report.TotalUnits,
		&report.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	return &report, nil
}

// Report is a summary of routed traffic and costs over a time period.
type Report struct {
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	TotalCostUSD       float64   `json:"total_cost_usd"`
	TotalAttempts      int64     `json:"total_attempts"`
	SuccessfulAttempts int64     `json:"successful_attempts"`
	TotalUnits         int64     `json:"total_units"`
	AvgLatencyMs       float64   `json:"avg_latency_ms"`
}
