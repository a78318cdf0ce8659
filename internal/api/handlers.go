// Package api implements the REST API endpoints for the routing gateway:
// the route endpoint itself plus the admin surface for catalog, health,
// and usage inspection.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/analytics"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/catalog"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/database"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/dispatch"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/health"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/router"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// SpendReader reads live per-caller spend counters.
type SpendReader interface {
	GetCallerSpend(ctx context.Context, callerID string) (float64, error)
}

// Handlers provides REST API endpoint handlers.
type Handlers struct {
	router   *router.Router
	catalog  *catalog.Store
	tracker  *health.Tracker
	db       *database.DB
	spend    SpendReader
	insights *analytics.InsightsEngine
}

// NewHandlers creates a new Handlers instance. db and spend may be nil when
// the gateway runs degraded; the handlers that need them answer 503.
func NewHandlers(rt *router.Router, cat *catalog.Store, tracker *health.Tracker, db *database.DB, spend SpendReader, insights *analytics.InsightsEngine) *Handlers {
	return &Handlers{router: rt, catalog: cat, tracker: tracker, db: db, spend: spend, insights: insights}
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "relay",
		"version": "0.1.0",
	})
}

// requireDB returns true if the database is available, or sends a 503 and returns false.
func (h *Handlers) requireDB(c *gin.Context) bool {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return false
	}
	return true
}

// RouteChatRequest represents the request body for the route endpoint.
type RouteChatRequest struct {
	System    string `json:"system"`
	Prompt    string `json:"prompt" binding:"required"`
	MaxTokens int    `json:"max_tokens"`
}

// RouteChat handles POST /v1/route. It resolves the caller, picks the best
// eligible provider, and fails over until success or exhaustion. Terminal
// routing errors map onto distinct status codes so clients can tell an
// access decision from an infrastructure failure.
func (h *Handlers) RouteChat(c *gin.Context) {
	var req RouteChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callerID := c.GetString("caller_id")

	chatReq := models.ChatRequest{
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	}

	resp, err := h.router.Route(c.Request.Context(), chatReq, callerID)
	if err != nil {
		h.writeRouteError(c, callerID, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// writeRouteError maps terminal routing errors to HTTP responses.
func (h *Handlers) writeRouteError(c *gin.Context, callerID string, err error) {
	var noProvider *router.NoEligibleProviderError
	var trustDown *router.TrustUnavailableError
	var exhausted *dispatch.ExhaustedError
	var deadline *dispatch.DeadlineError

	switch {
	case errors.As(err, &noProvider):
		c.JSON(http.StatusForbidden, gin.H{
			"error":       "no_eligible_provider",
			"message":     "No provider is available at your trust level.",
			"trust_score": noProvider.TrustScore,
		})
	case errors.As(err, &trustDown):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "trust_unavailable",
			"message": "Caller trust could not be resolved. Try again shortly.",
		})
	case errors.As(err, &exhausted):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "all_providers_exhausted",
			"message":  "Every eligible provider failed.",
			"attempts": exhausted.Attempts,
		})
	case errors.As(err, &deadline):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":    "deadline_exceeded",
			"message":  "The request deadline elapsed during failover.",
			"attempts": deadline.Attempts,
		})
	default:
		log.Printf("api: [%s] unexpected route error: %v", callerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// ListProviders returns the catalog providers with their live health snapshots.
func (h *Handlers) ListProviders(c *gin.Context) {
	providers := h.catalog.Providers()

	type providerView struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Kind      string  `json:"kind"`
		IsActive  bool    `json:"isActive"`
		Priority  int     `json:"priority"`
		Healthy   bool    `json:"healthy"`
		SuccessPc float64 `json:"successRate"`
	}

	views := make([]providerView, 0, len(providers))
	for _, p := range providers {
		snap := h.tracker.Snapshot(p.ID)
		views = append(views, providerView{
			ID:        p.ID,
			Name:      p.Name,
			Kind:      string(p.Kind),
			IsActive:  p.IsActive,
			Priority:  p.Priority,
			Healthy:   snap.IsHealthy,
			SuccessPc: snap.SuccessRate,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(views),
		"data":  views,
	})
}

// SetProviderActiveRequest represents the request body for toggling a provider.
type SetProviderActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetProviderActive activates or deactivates a provider in the catalog and,
// when the database is up, persists the flag so restarts keep it.
func (h *Handlers) SetProviderActive(c *gin.Context) {
	providerID := c.Param("id")

	var req SetProviderActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.catalog.SetActive(providerID, *req.Active); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if h.db != nil {
		if err := h.db.SetProviderActive(c.Request.Context(), providerID, *req.Active); err != nil {
			log.Printf("api: persist active flag for %s failed: %v", providerID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"provider_id": providerID,
		"active":      *req.Active,
	})
}

// GetProviderHealth returns the live health snapshots for all catalog providers.
func (h *Handlers) GetProviderHealth(c *gin.Context) {
	providers := h.catalog.Providers()
	snapshots := make([]any, 0, len(providers))
	for _, p := range providers {
		snapshots = append(snapshots, h.tracker.Snapshot(p.ID))
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(snapshots),
		"data":  snapshots,
	})
}

// TriggerHealthCheck runs one probe cycle over all providers and returns
// the refreshed snapshots.
func (h *Handlers) TriggerHealthCheck(c *gin.Context) {
	snapshots := h.router.CheckAllHealth(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"count": len(snapshots),
		"data":  snapshots,
	})
}

// GetRecentUsage returns the most recent usage records.
func (h *Handlers) GetRecentUsage(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 1000 {
		limit = 50
	}

	records, err := h.db.GetRecentUsage(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(records),
		"data":  records,
	})
}

// GetUsageSummary returns aggregated usage data.
// Query params: dimension (caller|provider|model), from, to
func (h *Handlers) GetUsageSummary(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	dimension := c.DefaultQuery("dimension", "provider")
	fromStr := c.DefaultQuery("from", time.Now().AddDate(0, -1, 0).Format(time.RFC3339))
	toStr := c.DefaultQuery("to", time.Now().Format(time.RFC3339))

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' date format, use RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' date format, use RFC3339"})
		return
	}

	summaries, err := h.db.GetUsageSummary(c.Request.Context(), dimension, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dimension": dimension,
		"from":      from,
		"to":        to,
		"data":      summaries,
	})
}

// GetInsights returns operational insights derived from the usage ledger.
func (h *Handlers) GetInsights(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	spikes, err := h.insights.DetectSpikes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hotspots, err := h.insights.DetectFailoverHotspots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	insights := append(spikes, hotspots...)
	c.JSON(http.StatusOK, gin.H{
		"count": len(insights),
		"data":  insights,
	})
}

// GetReport returns a summary report over a time period.
// Query params: from, to (RFC3339; defaults to the last 7 days)
func (h *Handlers) GetReport(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	fromStr := c.DefaultQuery("from", time.Now().AddDate(0, 0, -7).Format(time.RFC3339))
	toStr := c.DefaultQuery("to", time.Now().Format(time.RFC3339))

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' date format, use RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' date format, use RFC3339"})
		return
	}

	report, err := h.insights.GenerateReport(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetCallerSpend returns the live spend counter for a caller, served from
// Redis when available.
func (h *Handlers) GetCallerSpend(c *gin.Context) {
	if h.spend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "spend counters unavailable"})
		return
	}

	callerID := c.Param("caller_id")
	spent, err := h.spend.GetCallerSpend(c.Request.Context(), callerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"caller_id": callerID,
		"spent_usd": spent,
	})
}
