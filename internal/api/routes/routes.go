package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/takara-vaults/settlement_service/internal/api/handlers"
	"github.com/takara-vaults/settlement_service/internal/api/middleware"
	"github.com/takara-vaults/settlement_service/internal/domain/settlement"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/config"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// SetupRoutes configures all application routes
func SetupRoutes(
	cfg *config.Config,
	db *sqlx.DB,
	settlementSvc *settlement.Service,
	log *logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.InputValidation())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerMin))

	coreHandlers := handlers.NewCoreHandlers(db, log)
	settlementHandlers := handlers.NewSettlementHandlers(settlementSvc, log)

	// Probes and metrics
	router.GET("/health", coreHandlers.Health)
	router.GET("/ready", coreHandlers.Ready)
	router.GET("/live", coreHandlers.Live)
	router.GET("/metrics", coreHandlers.Metrics)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/vaults", settlementHandlers.ListVaults)
		v1.GET("/users/:id/investments", settlementHandlers.ListUserInvestments)

		investments := v1.Group("/investments")
		{
			investments.POST("", settlementHandlers.CreateInvestment)
			investments.POST("/:id/payment", settlementHandlers.SubmitPayment)
			investments.POST("/:id/disbursement", settlementHandlers.SubmitDisbursement)
			investments.GET("/:id/status", settlementHandlers.GetStatus)
			investments.POST("/:id/reconcile", settlementHandlers.Reconcile)
		}
	}

	return router
}
