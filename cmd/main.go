package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/analytics"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/api"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/catalog"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/config"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/database"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/dispatch"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/health"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/ledger"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/middleware"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/router"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/scoring"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/trust"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/cache"
	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// staticTrust is the trust source used when the database is unavailable.
// Every caller lands on the standard tier so routing still works, but
// premium-gated models stay out of reach.
type staticTrust struct{ score int }

func (s staticTrust) GetCallerTrust(ctx context.Context, callerID string) (int, error) {
	return s.score, nil
}

// seedCatalog fills the in-memory catalog when it cannot be loaded from
// PostgreSQL. The set mirrors the database seed.
func seedCatalog(store *catalog.Store) {
	store.AddProvider(
		models.Provider{ID: "openai", Name: "OpenAI", Kind: models.KindOpenAI, IsActive: true, Priority: 60},
		models.Model{ProviderID: "openai", Name: "gpt-4o-mini", CostPerUnitInput: 0.00000015, CostPerUnitOutput: 0.0000006, QualityScore: 65, MinTrustRequired: 0},
		models.Model{ProviderID: "openai", Name: "gpt-4o", CostPerUnitInput: 0.0000025, CostPerUnitOutput: 0.00001, QualityScore: 85, MinTrustRequired: 50},
		models.Model{ProviderID: "openai", Name: "o1", CostPerUnitInput: 0.000015, CostPerUnitOutput: 0.00006, QualityScore: 95, MinTrustRequired: 70},
	)
	store.AddProvider(
		models.Provider{ID: "anthropic", Name: "Anthropic", Kind: models.KindAnthropic, IsActive: true, Priority: 70},
		models.Model{ProviderID: "anthropic", Name: "claude-3-haiku-20240307", CostPerUnitInput: 0.00000025, CostPerUnitOutput: 0.00000125, QualityScore: 70, MinTrustRequired: 0},
		models.Model{ProviderID: "anthropic", Name: "claude-3-5-sonnet-20241022", CostPerUnitInput: 0.000003, CostPerUnitOutput: 0.000015, QualityScore: 88, MinTrustRequired: 50},
		models.Model{ProviderID: "anthropic", Name: "claude-3-opus-20240229", CostPerUnitInput: 0.000015, CostPerUnitOutput: 0.000075, QualityScore: 92, MinTrustRequired: 70},
	)
	store.AddProvider(
		models.Provider{ID: "gemini", Name: "Google Gemini", Kind: models.KindGemini, IsActive: true, Priority: 50},
		models.Model{ProviderID: "gemini", Name: "gemini-1.5-flash", CostPerUnitInput: 0.000000075, CostPerUnitOutput: 0.0000003, QualityScore: 60, MinTrustRequired: 0},
		models.Model{ProviderID: "gemini", Name: "gemini-1.5-pro", CostPerUnitInput: 0.00000125, CostPerUnitOutput: 0.000005, QualityScore: 82, MinTrustRequired: 50},
	)
}

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Relay - Trust-Tiered LLM Routing Gateway")
	fmt.Println("==============================================")

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	fmt.Printf("Starting server on port %s...\n", cfg.Port)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Initialize database connection.
	db, err := database.New(cfg.DSN())
	if err != nil {
		log.Printf("WARNING: Database unavailable (%v). Running with in-memory catalog and ledger.", err)
		db = nil
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		if err := db.Migrate(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		if err := db.SeedCatalog(ctx); err != nil {
			log.Printf("WARNING: Failed to seed catalog: %v", err)
		}
		cancel()
		log.Println("Database connected and migrations applied.")
	}

	// Initialize Redis connection.
	var redisCache *cache.Cache
	{
		ctx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		redisCache, err = cache.New(ctx, cfg.RedisAddr(), cfg.RedisPassword)
		cancel()
		if err != nil {
			log.Printf("WARNING: Redis unavailable (%v). Rate limiting and spend counters disabled.", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	// Health tracker: persist mutations when the database is up, probe
	// providers over plain HTTP.
	var healthStore health.Store
	if db != nil {
		healthStore = db
	}
	prober := dispatch.NewHTTPProber(10 * time.Second)
	tracker := health.NewTracker(healthStore, prober)

	if db != nil {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		if snapshots, err := db.GetHealthRecords(ctx); err != nil {
			log.Printf("WARNING: Failed to restore health records: %v", err)
		} else {
			tracker.Restore(snapshots)
		}
		cancel()
	}

	// Catalog: load from PostgreSQL, fall back to the built-in seed.
	catalogStore := catalog.NewStore(tracker)
	if db != nil {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		err := catalogStore.LoadFrom(ctx, db)
		cancel()
		if err != nil {
			log.Printf("WARNING: Failed to load catalog from database (%v). Using built-in seed.", err)
			seedCatalog(catalogStore)
		}
	} else {
		seedCatalog(catalogStore)
	}
	log.Printf("Catalog ready with %d providers.", len(catalogStore.Providers()))

	// Trust gate: database-backed, or a fixed standard-tier score when
	// the database is down.
	var trustSource trust.Source
	if db != nil {
		trustSource = db
	} else {
		trustSource = staticTrust{score: 50}
	}
	gate := trust.NewGate(trustSource)

	// Scoring, dispatch, ledger.
	scorer := scoring.NewScorer(scoring.Weights{
		Quality:  cfg.WeightQuality,
		Cost:     cfg.WeightCost,
		Health:   cfg.WeightHealth,
		Priority: cfg.WeightPriority,
	}, tracker)

	clients := dispatch.NewClients(dispatch.Keys{
		OpenAI:    cfg.OpenAIKey,
		Anthropic: cfg.AnthropicKey,
		Gemini:    cfg.GeminiKey,
	})

	var usageLedger dispatch.Ledger
	if db != nil {
		var mirror ledger.SpendMirror
		if redisCache != nil {
			mirror = redisCache
		}
		usageLedger = ledger.NewPG(db, mirror)
	} else {
		usageLedger = ledger.NewMemory()
	}

	dispatcher := dispatch.NewDispatcher(clients, tracker, usageLedger, cfg.AttemptTimeout)
	rt := router.New(catalogStore, gate, scorer, dispatcher, tracker)

	// Background health probe loop.
	tracker.Start(rootCtx, cfg.ProbeInterval, catalogStore.Providers)

	var insightsEngine *analytics.InsightsEngine
	if db != nil {
		insightsEngine = analytics.NewInsightsEngine(db.Pool)
	}

	var spendReader api.SpendReader
	if redisCache != nil {
		spendReader = redisCache
	}
	apiHandlers := api.NewHandlers(rt, catalogStore, tracker, db, spendReader, insightsEngine)

	// Set up Gin router.
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())

	// CORS for the dashboard.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Caller-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check.
	r.GET("/health", apiHandlers.HealthCheck)

	// Management API (protected by admin API key).
	// Fail-secure: if no key is configured, block all management requests.
	v1 := r.Group("/api/v1")
	if cfg.AdminAPIKey != "" {
		v1.Use(middleware.APIKeyAuth(cfg.AdminAPIKey))
		log.Println("Management API authentication enabled.")
	} else {
		log.Println("WARNING: GATEWAY_ADMIN_API_KEY not set. Management API is disabled (fail-secure).")
		v1.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management API disabled: GATEWAY_ADMIN_API_KEY not configured"})
		})
	}
	{
		v1.GET("/providers", apiHandlers.ListProviders)
		v1.PUT("/providers/:id/active", apiHandlers.SetProviderActive)

		v1.GET("/health/providers", apiHandlers.GetProviderHealth)
		v1.POST("/health/check", apiHandlers.TriggerHealthCheck)

		v1.GET("/usage/recent", apiHandlers.GetRecentUsage)
		v1.GET("/usage/summary", apiHandlers.GetUsageSummary)
		v1.GET("/usage/spend/:caller_id", apiHandlers.GetCallerSpend)

		v1.GET("/insights", apiHandlers.GetInsights)
		v1.GET("/report", apiHandlers.GetReport)
	}

	// Route endpoint: the core gateway.
	routeGroup := r.Group("/v1")
	if cfg.RouteAPIKey != "" {
		routeGroup.Use(middleware.APIKeyAuth(cfg.RouteAPIKey))
		log.Println("Route endpoint authentication enabled.")
	} else {
		log.Println("WARNING: GATEWAY_ROUTE_API_KEY not set. Route endpoint is UNAUTHENTICATED.")
		log.Println("WARNING: Ensure this service is on a private network or set GATEWAY_ROUTE_API_KEY.")
	}
	routeGroup.Use(middleware.CallerID())
	if redisCache != nil {
		routeGroup.Use(middleware.RateLimitMiddleware(redisCache, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	{
		routeGroup.POST("/route", apiHandlers.RouteChat)
	}

	// Start HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Relay routing gateway is ready on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited.")
}
