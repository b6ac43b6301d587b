package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/takara-vaults/settlement_service/internal/api/routes"
	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/internal/domain/settlement"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/cache"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/chain"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/config"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/database"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/metrics"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/repositories"
	"github.com/takara-vaults/settlement_service/internal/workers/settlement_reconciler"
	"github.com/takara-vaults/settlement_service/pkg/logger"
	"github.com/takara-vaults/settlement_service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.NewLogger("settlement_service", cfg.LogLevel)
	defer log.Sync()

	// Register Prometheus collectors
	metrics.Register()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database connection", "error", err)
		}
	}()

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()

	// Build the per-chain gateway client and collection address map
	chainConfig := chain.Config{Endpoints: make(map[entities.Chain]chain.EndpointConfig)}
	collectionAddresses := make(map[entities.Chain]string)
	for name, cc := range cfg.Chains {
		chainID := entities.Chain(name)
		if !chainID.IsValid() {
			log.Fatal("Unknown chain in configuration", "chain", name)
		}
		chainConfig.Endpoints[chainID] = chain.EndpointConfig{
			BaseURL:           cc.GatewayURL,
			APIKey:            cc.APIKey,
			Timeout:           time.Duration(cc.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cc.RequestsPerSecond,
		}
		collectionAddresses[chainID] = chainID.NormalizeAddress(cc.CollectionAddress)
	}
	chainClient := chain.NewClient(chainConfig, log.Zap())

	balanceCache := cache.NewBalanceCache(
		chainClient,
		time.Duration(cfg.Settlement.BalanceTTLSeconds)*time.Second,
		log,
	)

	// Repositories and domain services
	investmentRepo := repositories.NewInvestmentRepository(db)
	vaultRepo := repositories.NewVaultRepository(db)
	machine := settlement.NewMachine(collectionAddresses)
	locker := cache.NewRedisLock(redisClient)

	settlementSvc := settlement.NewService(
		investmentRepo,
		vaultRepo,
		chainClient,
		balanceCache,
		locker,
		machine,
		log,
		settlement.Config{
			PaymentDeadline: time.Duration(cfg.Settlement.PaymentDeadlineHours) * time.Hour,
			ReviewWindow:    time.Duration(cfg.Settlement.ReviewWindowHours) * time.Hour,
			LockTTL:         time.Duration(cfg.Settlement.LockTTLSeconds) * time.Second,
		},
	)

	// Start the settlement sweep worker
	reconcilerConfig := settlement_reconciler.Config{
		Enabled:        true,
		Interval:       time.Duration(cfg.Settlement.SweepIntervalSeconds) * time.Second,
		BatchSize:      cfg.Settlement.BatchSize,
		MaxConcurrency: cfg.Settlement.MaxConcurrency,
	}
	reconciler, err := settlement_reconciler.NewReconciler(reconcilerConfig, settlementSvc, log)
	if err != nil {
		log.Fatal("Failed to create settlement reconciler", "error", err)
	}
	if err := reconciler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start settlement reconciler", "error", err)
	}
	log.Info("Settlement reconciler started")

	// Daily snapshot of collection address balances; an operator-facing
	// consistency signal, nothing settles off it
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		for chainID, address := range collectionAddresses {
			balance, err := balanceCache.Get(ctx, chainID, address, entities.TokenUSDT)
			if err != nil {
				log.Warn("Collection balance snapshot failed",
					"chain", chainID, "error", err)
				continue
			}
			log.Info("Collection balance snapshot",
				"chain", chainID, "address", address, "balance", balance.String())
		}
	}); err != nil {
		log.Fatal("Failed to schedule balance snapshot", "error", err)
	}
	scheduler.Start()

	// HTTP server
	router := routes.SetupRoutes(cfg, db, settlementSvc, log)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	scheduler.Stop()

	if err := reconciler.Shutdown(30 * time.Second); err != nil {
		log.Warn("Error stopping settlement reconciler", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited gracefully")
}
