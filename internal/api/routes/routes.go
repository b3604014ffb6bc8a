package routes

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolvest/ledger-service/internal/api/handlers"
	"github.com/poolvest/ledger-service/internal/api/middleware"
	"github.com/poolvest/ledger-service/internal/domain/services/deposit"
	"github.com/poolvest/ledger-service/internal/domain/services/distribution"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/domain/services/settlement"
	"github.com/poolvest/ledger-service/internal/domain/services/withdrawal"
	"github.com/poolvest/ledger-service/internal/infrastructure/cache"
	"github.com/poolvest/ledger-service/internal/infrastructure/config"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// Dependencies carries everything the router needs
type Dependencies struct {
	Config              *config.Config
	DB                  *sqlx.DB
	Locker              cache.Locker
	Logger              *logger.Logger
	LedgerService       *ledger.Service
	DepositService      *deposit.Service
	WithdrawalService   *withdrawal.Service
	DistributionService *distribution.Service
	SettlementService   *settlement.Service
	WalletRepo          repositories.WalletStore
}

// periodPattern matches a performance period like "2026-08"
var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// registerValidators adds custom binding validations
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			return periodPattern.MatchString(fl.Field().String())
		})
	}
}

// SetupRoutes configures all application routes
func SetupRoutes(deps *Dependencies) *gin.Engine {
	if deps.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registerValidators()

	router := gin.New()

	// Global middleware, order matters
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))

	healthHandlers := handlers.NewHealthHandlers(deps.DB, deps.Locker, deps.Logger)
	depositHandlers := handlers.NewDepositHandlers(deps.DepositService, deps.Logger)
	walletHandlers := handlers.NewWalletHandlers(deps.LedgerService, deps.WalletRepo, deps.Logger)
	withdrawalHandlers := handlers.NewWithdrawalHandlers(deps.WithdrawalService, deps.Logger)
	adminHandlers := handlers.NewAdminHandlers(deps.LedgerService, deps.DistributionService, deps.SettlementService, deps.Logger)

	// Probes and metrics, no auth
	router.GET("/health", healthHandlers.Health)
	router.GET("/live", healthHandlers.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Gateway webhook, authenticated by HMAC signature in the payload
		v1.POST("/payments/callback", depositHandlers.GatewayCallback)

		v1.POST("/deposits", depositHandlers.Initiate)
		v1.GET("/deposits/:orderID", depositHandlers.Get)

		v1.POST("/withdrawals", withdrawalHandlers.Request)
		v1.GET("/withdrawals/:id", withdrawalHandlers.Get)

		v1.GET("/transactions/:transactionID", walletHandlers.GetTransaction)

		users := v1.Group("/users/:userID")
		{
			users.GET("/wallet", walletHandlers.Get)
			users.PUT("/wallet/preference", walletHandlers.SetPreference)
			users.GET("/transactions", walletHandlers.ListTransactions)
			users.GET("/deposits", depositHandlers.ListByUser)
			users.GET("/withdrawals", withdrawalHandlers.ListByUser)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(deps.Config.Server.AdminAPIKey))
		{
			admin.POST("/withdrawals/:id/approve", withdrawalHandlers.Approve)
			admin.POST("/withdrawals/:id/reject", withdrawalHandlers.Reject)
			admin.POST("/distributions", adminHandlers.Distribute)
			admin.GET("/distributions/:period", adminHandlers.GetDistribution)
			admin.POST("/settlements", adminHandlers.Settle)
			admin.GET("/audit", adminHandlers.Audit)
		}
	}

	return router
}
