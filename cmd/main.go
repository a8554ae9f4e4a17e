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
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bluelabel/contentmind/auth"
	"github.com/bluelabel/contentmind/config"
	"github.com/bluelabel/contentmind/delivery"
	"github.com/bluelabel/contentmind/handlers"
	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
	"github.com/bluelabel/contentmind/services/agents"
	"github.com/bluelabel/contentmind/services/impl"
	"github.com/bluelabel/contentmind/services/scheduler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := initDB(cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.PromptComponent{},
		&models.ComponentVersion{},
		&models.ComponentTestResult{},
		&models.AgentDescriptor{},
		&models.ContentArtifact{},
		&models.ScheduledJob{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddress(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	componentService := impl.NewComponentService(db, nil)
	routerService := impl.NewRouterService(cfg.RouterPolicy, cfg.Providers, redisClient, componentService)
	impl.WireRouter(componentService, routerService)

	agentRegistry := impl.NewAgentRegistry(db, routerService, componentService)
	artifactStore := impl.NewArtifactStore(db)
	knowledgeStore := impl.NewKnowledgeStore(artifactStore, redisClient, 24*time.Hour, agents.FormatForDigest)
	digestWindow := agents.NewDigestWindow(redisClient, 0)

	smtpSender := delivery.NewSMTPSender(cfg.Delivery.SMTPHost, cfg.Delivery.SMTPPort, cfg.Delivery.SMTPUsername, cfg.Delivery.SMTPPassword, cfg.Delivery.SMTPFrom)
	var whatsappSender *delivery.WhatsAppSender
	if cfg.Delivery.WhatsAppWebhook != "" {
		whatsappSender = delivery.NewWhatsAppSender(cfg.Delivery.WhatsAppWebhook, cfg.Delivery.WhatsAppAPIToken)
	}
	deliverySender := delivery.NewMultiSender(smtpSender, whatsappSender)

	if err := agentRegistry.Discover([]services.AgentManifestEntry{
		{Kind: models.AgentKindContentMind, Name: string(models.AgentKindContentMind), Factory: agents.NewContentMindAgent},
		{Kind: models.AgentKindResearcher, Name: string(models.AgentKindResearcher), Factory: agents.NewResearcherAgent},
		{Kind: models.AgentKindDigest, Name: string(models.AgentKindDigest), Factory: agents.NewDigestAgentFactory(knowledgeStore, digestWindow, deliverySender)},
	}); err != nil {
		log.Fatal("Failed to discover agent manifest:", err)
	}

	if err := ensureAgentRegistered(context.Background(), agentRegistry, models.AgentKindContentMind); err != nil {
		log.Printf("Warning: could not auto-register contentmind agent: %v", err)
	}
	if err := ensureAgentRegistered(context.Background(), agentRegistry, models.AgentKindResearcher); err != nil {
		log.Printf("Warning: could not auto-register researcher agent: %v", err)
	}
	if err := ensureAgentRegistered(context.Background(), agentRegistry, models.AgentKindDigest); err != nil {
		log.Printf("Warning: could not auto-register digest agent: %v", err)
	}

	gatewayService := impl.NewGatewayService(agentRegistry, knowledgeStore, artifactStore)

	jobLock := scheduler.NewJobLock(redisClient, time.Duration(cfg.Scheduler.LockTTLSeconds)*time.Second)
	schedulerService := scheduler.NewSchedulerService(
		db,
		jobLock,
		time.Duration(cfg.Scheduler.TickIntervalSeconds)*time.Second,
		time.Duration(cfg.Scheduler.ShutdownGraceSeconds)*time.Second,
	)

	digestAgent, err := agentRegistry.Create(context.Background(), string(models.AgentKindDigest))
	if err != nil {
		log.Fatal("Failed to construct digest agent for scheduler wiring:", err)
	}
	digestCallback, ok := digestAgent.(*agents.DigestAgent)
	if !ok {
		log.Fatal("Digest agent does not implement the scheduler callback contract")
	}
	for _, digestType := range []string{"daily", "weekly", "monthly"} {
		schedulerService.RegisterCallback("digest_"+digestType, digestCallback.RunScheduledDigest)
	}
	// digest_type is a free tag; jobs created with any other value still
	// run through the standard digest pipeline.
	schedulerService.RegisterDefaultCallback(digestCallback.RunScheduledDigest)

	if cfg.Scheduler.Enabled {
		if err := schedulerService.Start(context.Background()); err != nil {
			log.Fatal("Failed to start scheduler:", err)
		}
	} else {
		log.Println("Scheduler disabled by configuration (SCHEDULER_ENABLED=false)")
	}

	componentHandlers := handlers.NewComponentHandlers(componentService)
	agentHandlers := handlers.NewAgentHandlers(agentRegistry)
	routerHandlers := handlers.NewRouterHandlers(routerService)
	schedulerHandlers := handlers.NewSchedulerHandlers(schedulerService)
	gatewayHandlers := handlers.NewGatewayHandlers(gatewayService)
	artifactHandlers := handlers.NewArtifactHandlers(artifactStore)

	router := setupRouter(cfg, componentHandlers, agentHandlers, routerHandlers, schedulerHandlers, gatewayHandlers, artifactHandlers)

	srv := &http.Server{
		Addr:    cfg.GetServerAddress(),
		Handler: router,
	}

	go func() {
		log.Printf("ContentMind server starting on %s", cfg.GetServerAddress())
		log.Printf("Environment: %s", os.Getenv("ENVIRONMENT"))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if err := schedulerService.Stop(context.Background(), 10*time.Second); err != nil {
		log.Printf("Scheduler did not stop cleanly: %v", err)
	}

	log.Println("Server exited")
}

// ensureAgentRegistered registers a default descriptor for kind if one
// isn't already present, so a fresh deployment has the three standard
// agents reachable by the Gateway without a separate provisioning step.
func ensureAgentRegistered(ctx context.Context, registry services.AgentRegistry, kind models.AgentKind) error {
	name := string(kind)
	if _, err := registry.Get(ctx, name); err == nil {
		return nil
	}
	_, err := registry.Register(ctx, models.RegisterAgentRequest{
		Name:    name,
		Kind:    kind,
		Version: "1.0.0",
	})
	return err
}

func initDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func setupRouter(
	cfg *config.Config,
	componentHandlers *handlers.ComponentHandlers,
	agentHandlers *handlers.AgentHandlers,
	routerHandlers *handlers.RouterHandlers,
	schedulerHandlers *handlers.SchedulerHandlers,
	gatewayHandlers *handlers.GatewayHandlers,
	artifactHandlers *handlers.ArtifactHandlers,
) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Auth.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "contentmind",
		})
	})

	// Gateway ingest endpoints are called by unauthenticated inbound
	// transports (email/WhatsApp webhook adapters), never by the admin UI.
	router.POST("/ingest", gatewayHandlers.Ingest)
	router.POST("/ingest/classify", gatewayHandlers.Classify)

	v1 := router.Group("/api/v1")
	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, []string{
		"https://keycloak.tas.scharber.com/realms/aether",
		"http://tas-keycloak-shared:8080/realms/aether",
		"http://localhost:8081/realms/aether",
	})
	v1.Use(authMiddleware(jwtValidator))

	components := v1.Group("/components")
	{
		components.POST("", componentHandlers.Create)
		components.GET("", componentHandlers.List)
		components.POST("/validate", componentHandlers.Validate)
		components.POST("/import", componentHandlers.Import)
		components.GET("/compare-test-results", componentHandlers.CompareTestResults)
		components.GET("/by-name/:name", componentHandlers.GetByName)
		components.GET("/:id", componentHandlers.Get)
		components.PUT("/:id", componentHandlers.Update)
		components.DELETE("/:id", componentHandlers.Delete)
		components.POST("/:id/duplicate", componentHandlers.Duplicate)
		components.POST("/:id/render", componentHandlers.Render)
		components.GET("/:id/versions", componentHandlers.Versions)
		components.GET("/:id/versions/:version", componentHandlers.GetVersion)
		components.GET("/:id/compare", componentHandlers.Compare)
		components.GET("/:id/export", componentHandlers.Export)
		components.POST("/:id/test-render", componentHandlers.TestRender)
		components.POST("/:id/test-provider", componentHandlers.TestWithProvider)
	}

	agentsGroup := v1.Group("/agents")
	{
		agentsGroup.POST("", agentHandlers.Register)
		agentsGroup.GET("", agentHandlers.List)
		agentsGroup.GET("/capabilities", agentHandlers.Capabilities)
		agentsGroup.GET("/instances", agentHandlers.Instances)
		agentsGroup.GET("/:name", agentHandlers.Get)
		agentsGroup.DELETE("/:name", agentHandlers.Deregister)
	}

	artifactsGroup := v1.Group("/artifacts")
	{
		artifactsGroup.GET("", artifactHandlers.List)
		artifactsGroup.GET("/:id", artifactHandlers.Get)
	}

	schedulerGroup := v1.Group("/scheduled-jobs")
	{
		schedulerGroup.POST("", schedulerHandlers.Schedule)
		schedulerGroup.GET("", schedulerHandlers.List)
		schedulerGroup.GET("/:id", schedulerHandlers.Get)
		schedulerGroup.PUT("/:id", schedulerHandlers.Update)
		schedulerGroup.DELETE("/:id", schedulerHandlers.Cancel)
	}

	routerGroup := v1.Group("/router")
	{
		routerGroup.POST("/route", routerHandlers.Route)
		routerGroup.GET("/local-available", routerHandlers.LocalAvailability)
	}

	return router
}

// authMiddleware validates JWT tokens against the configured Keycloak
// realms: RSA-signed tokens with the realm's JWKS key, HMAC-signed tokens
// with the configured secret.
func authMiddleware(validator *auth.JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(authHeader)
		if err != nil {
			log.Printf("Token validation failed: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		userID, tenantID := validator.ExtractUserContext(claims)
		c.Set("user_id", userID)
		c.Set("tenant_id", tenantID)
		c.Set("user_email", claims.Email)
		c.Set("username", claims.PreferredUsername)

		c.Next()
	}
}
