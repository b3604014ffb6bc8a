package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/poolvest/ledger-service/internal/api/routes"
	"github.com/poolvest/ledger-service/internal/domain/services/deposit"
	"github.com/poolvest/ledger-service/internal/domain/services/distribution"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/domain/services/settlement"
	"github.com/poolvest/ledger-service/internal/domain/services/withdrawal"
	"github.com/poolvest/ledger-service/internal/infrastructure/cache"
	"github.com/poolvest/ledger-service/internal/infrastructure/config"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/internal/workers/outbox"
	"github.com/poolvest/ledger-service/pkg/graceful"
	"github.com/poolvest/ledger-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	locker, err := cache.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to redis", "error", err)
	}

	// Repositories
	ledgerRepo := repositories.NewLedgerRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	depositRepo := repositories.NewDepositRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	positionRepo := repositories.NewPositionRepository(db)
	distributionRepo := repositories.NewDistributionRepository(db)
	outboxRepo := repositories.NewOutboxRepository(db)

	// Services
	ledgerService := ledger.NewService(db, ledgerRepo, walletRepo, depositRepo, log)
	depositService := deposit.NewService(db, ledgerService, depositRepo, positionRepo, outboxRepo,
		locker, cfg.Gateway.WebhookSecret, cfg.Ledger.ReferralRate(), log)
	withdrawalService := withdrawal.NewService(db, ledgerService, walletRepo, withdrawalRepo, outboxRepo, log)
	distributionService := distribution.NewService(db, ledgerService, walletRepo, distributionRepo,
		positionRepo, outboxRepo, locker,
		cfg.Ledger.AdminShare(), cfg.Ledger.TaxThresholdAmount(), cfg.Ledger.TaxRateAmount(),
		time.Duration(cfg.Ledger.DistributionLockTTL)*time.Second, log)
	settlementService := settlement.NewService(db, ledgerService, walletRepo, withdrawalRepo,
		positionRepo, outboxRepo, log)

	router := routes.SetupRoutes(&routes.Dependencies{
		Config:              cfg,
		DB:                  db,
		Locker:              locker,
		Logger:              log,
		LedgerService:       ledgerService,
		DepositService:      depositService,
		WithdrawalService:   withdrawalService,
		DistributionService: distributionService,
		SettlementService:   settlementService,
		WalletRepo:          walletRepo,
	})

	outboxWorker := outbox.NewWorker(db, outboxRepo, outbox.NewLogNotifier(log),
		cfg.Workers.OutboxSchedule, cfg.Workers.OutboxBatchSize, cfg.Workers.OutboxMaxAttempts, log)
	if err := outboxWorker.Start(); err != nil {
		log.Fatal("Failed to start outbox worker", "error", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("Starting ledger service",
			"address", server.Addr,
			"environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db, log)
	shutdown.Register(outboxWorker)
	shutdown.WaitForShutdown()

	if err := locker.Close(); err != nil {
		log.Warn("Failed to close redis connection", "error", err)
	}
}
