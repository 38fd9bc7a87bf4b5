package middleware

import (
	"context"
	"net/http"
	"time"

	"stock-ledger/internal/database"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

type HealthChecker struct {
	postgresDB *database.PostgresDB
	redisDB    *database.RedisDB
	ledgerInfo gin.H
	logger     *zap.Logger
}

// NewHealthChecker redisDB puede ser nil: Redis es opcional y su caída solo degrada el servicio.
func NewHealthChecker(postgresDB *database.PostgresDB, redisDB *database.RedisDB, ledgerInfo gin.H, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		postgresDB: postgresDB,
		redisDB:    redisDB,
		ledgerInfo: ledgerInfo,
		logger:     logger,
	}
}

func (h *HealthChecker) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	services := gin.H{}
	status := "healthy"

	// PostgreSQL es obligatorio
	postgresStatus := "healthy"
	if err := h.postgresDB.Ping(ctx); err != nil {
		postgresStatus = "unhealthy"
		status = "unhealthy"
		h.logger.Error("PostgreSQL health check failed", zap.Error(err))
	}
	postgresStats := h.postgresDB.GetStats()
	services["postgresql"] = gin.H{
		"status": postgresStatus,
		"stats": gin.H{
			"max_open_connections": postgresStats.MaxOpenConnections,
			"open_connections":     postgresStats.OpenConnections,
			"in_use":               postgresStats.InUse,
			"idle":                 postgresStats.Idle,
		},
	}

	if h.redisDB == nil {
		services["redis"] = gin.H{"status": "disabled"}
	} else {
		redisStatus := "healthy"
		var redisStats interface{} = "unavailable"
		if err := h.redisDB.Ping(ctx); err != nil {
			redisStatus = "unhealthy"
			if status == "healthy" {
				status = "degraded"
			}
			h.logger.Warn("Redis health check failed", zap.Error(err))
		} else if stats, err := h.redisDB.Stats(ctx); err == nil {
			redisStats = stats
		}
		services["redis"] = gin.H{
			"status": redisStatus,
			"stats":  redisStats,
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
		"ledger":    h.ledgerInfo,
	})
}
