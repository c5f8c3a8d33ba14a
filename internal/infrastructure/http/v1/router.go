// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"orvit/internal/infrastructure/http/v1/handlers"
	"orvit/internal/infrastructure/http/v1/middleware"
	"orvit/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Ledger serves every /grni route (normally *grni.Service).
	Ledger handlers.Ledger

	// DB backs the readiness probe.
	DB handlers.Prober

	// Logger for request logging
	Logger *logger.Logger

	// Development keeps gin in debug mode.
	Development bool
}

// NewRouter creates and configures the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Order matters: Recovery outermost, ErrorHandler closest to handlers.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	health := router.Group("/health")
	{
		h := handlers.NewHealthHandler(cfg.DB)
		health.GET("/live", h.Live)
		health.GET("/ready", h.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Actor())
	registerGRNIRoutes(v1.Group("/grni"), handlers.NewGRNIHandler(handlers.NewBaseHandler(), cfg.Ledger))

	return router
}

func registerGRNIRoutes(g *gin.RouterGroup, h *handlers.GRNIHandler) {
	receipts := g.Group("/receipts/:receiptId")
	{
		receipts.POST("/confirm", h.ConfirmReceipt)
		receipts.POST("/invoice", h.LinkInvoice)
		receipts.POST("/void", h.VoidReceipt)
	}

	g.POST("/sweep", h.Sweep)
	g.GET("/stats", h.Stats)
	g.GET("/period-close/:period", h.PeriodClose)

	accruals := g.Group("/accruals")
	{
		accruals.GET("", h.List)
		accruals.GET("/export.xlsx", h.Export)
		accruals.GET("/:id/history", h.History)
		accruals.POST("/:id/notes", h.AddNote)
		accruals.PUT("/:id/owner", h.AssignOwner)
		accruals.PUT("/:id/estimate", h.AdjustEstimate)
	}
}
