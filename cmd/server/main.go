package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundlio/be-governance/internal/client"
	"github.com/fundlio/be-governance/internal/config"
	"github.com/fundlio/be-governance/internal/database"
	"github.com/fundlio/be-governance/internal/handler"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/metrics"
	"github.com/fundlio/be-governance/internal/middleware"
	"github.com/fundlio/be-governance/internal/natsclient"
	"github.com/fundlio/be-governance/internal/repository"
	"github.com/fundlio/be-governance/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Governance Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		HealthCheck:     cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	stakeRepo := repository.NewPostgresStakeRepository(db)
	proposalRepo := repository.NewPostgresProposalRepository(db)
	milestoneRepo := repository.NewPostgresMilestoneRepository(db)
	trancheRepo := repository.NewPostgresTrancheRepository(db)
	auditRepo := repository.NewPostgresAuditRepository(db)

	// Initialize NATS notification publishing
	var notifier service.Notifier
	if cfg.NATS.Enabled {
		nc, err := natsclient.Connect(cfg.NATS.URL, log.Logger)
		if err != nil {
			// Notifications are best-effort, the service runs without them.
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS, notifications disabled")
		} else {
			defer nc.Close()
			notifier = client.NewNotificationPublisher(nc, log)
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS notification publishing enabled")
		}
	}

	// Initialize service clients
	var settlement service.SettlementClient
	if url := os.Getenv("SETTLEMENT_SERVICE_URL"); url != "" {
		settlement = client.NewSettlementClient(url)
		log.Info().Str("url", url).Msg("Settlement client initialized")
	} else {
		settlement = client.NewNoopSettlementClient()
		log.Warn().Msg("SETTLEMENT_SERVICE_URL not set, settlement transfers are no-ops")
	}

	var identity service.IdentityClient
	if url := os.Getenv("IDENTITY_SERVICE_URL"); url != "" {
		identity = client.NewIdentityClient(url)
		log.Info().Str("url", url).Msg("Identity client initialized")
	} else {
		identity = client.NewStaticIdentityClient(nil)
		log.Warn().Msg("IDENTITY_SERVICE_URL not set, role checks are permissive")
	}

	// Initialize services
	stakeService := service.NewStakeService(stakeRepo, settlement, auditRepo, log)
	governanceService := service.NewGovernanceService(proposalRepo, stakeService, auditRepo, notifier, cfg.Governance, log)
	milestoneService := service.NewMilestoneService(milestoneRepo, proposalRepo, stakeService, identity, auditRepo, notifier, cfg.Governance, log)
	trancheService := service.NewTrancheService(trancheRepo, milestoneRepo, identity, settlement, auditRepo, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(stakeService, governanceService, milestoneService, trancheService, auditRepo, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Metrics
	mux.Handle("/metrics", metrics.Handler())

	// Governance routes
	httpHandler.RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
