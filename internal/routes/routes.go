package routes

import (
	"net/http"

	"stock-ledger/internal/handlers"
	"stock-ledger/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers agrupa los handlers registrados en el router
type Handlers struct {
	Stock        *handlers.StockHandler
	Product      *handlers.ProductHandler
	POS          *handlers.POSHandler
	Notification *handlers.NotificationHandler
	Monitoring   *handlers.MonitoringHandler
	Health       *middleware.HealthChecker
}

// SetupRoutes configura todas las rutas de la aplicación
func SetupRoutes(router *gin.Engine, h Handlers) {
	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.POST("", h.Product.CreateProduct)
			products.GET("/:company", h.Product.ListProducts)
			products.PUT("/:company/:id", h.Product.UpdateProduct)
			products.POST("/:company/import", h.Product.ImportProducts)
		}

		stock := v1.Group("/stock/:company")
		{
			stock.POST("/adjust", h.Stock.Adjust)
			stock.POST("/adjust-multiple", h.Stock.AdjustMultiple)
			stock.GET("/product/:id", h.Stock.GetProduct)
			stock.GET("/low", h.Stock.GetLowStock)
			stock.GET("/movements", h.Stock.GetMovements)
			stock.GET("/verify/:id", h.Stock.Verify)
		}

		pos := v1.Group("/pos")
		{
			pos.GET("/cache-stats", h.POS.GetCacheStats)
			pos.GET("/:company/barcode/:code", h.POS.SearchProductByBarcode)
			pos.POST("/:company/sale", h.POS.QuickSale)
			pos.DELETE("/:company/cache/:code", h.POS.InvalidateProductCache)
		}

		notifications := v1.Group("/notifications/:company")
		{
			notifications.GET("/count", h.Notification.GetLowStockCount)
			notifications.GET("/ws", h.Notification.WebSocketNotifications)
		}

		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/metrics", h.Monitoring.GetMetrics)
			monitoring.GET("/metrics/summary", h.Monitoring.GetMetricsSummary)
			monitoring.GET("/ws", h.Monitoring.WebSocketMetrics)
		}
	}

	router.GET("/health", h.Health.HealthCheck)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Stock Ledger API",
			"status":  "running",
			"endpoints": gin.H{
				"health": "/health",
				"api":    "/api/v1",
				"stock": gin.H{
					"adjust":          "POST /api/v1/stock/:company/adjust",
					"adjust_multiple": "POST /api/v1/stock/:company/adjust-multiple",
					"movements":       "GET /api/v1/stock/:company/movements",
					"verify":          "GET /api/v1/stock/:company/verify/:id",
				},
				"pos": gin.H{
					"barcode": "GET /api/v1/pos/:company/barcode/:code",
					"sale":    "POST /api/v1/pos/:company/sale",
				},
			},
		})
	})
}
