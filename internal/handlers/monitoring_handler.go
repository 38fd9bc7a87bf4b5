package handlers

import (
	"net/http"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const metricsPushInterval = 10 * time.Second

type MonitoringHandler struct {
	monitoringService services.MonitoringService
	logger            *zap.Logger
}

func NewMonitoringHandler(monitoringService services.MonitoringService, logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{
		monitoringService: monitoringService,
		logger:            logger,
	}
}

// GetMetrics maneja la petición HTTP para obtener métricas
func (h *MonitoringHandler) GetMetrics(c *gin.Context) {
	metrics := h.monitoringService.GetMetrics(c.Request.Context())

	h.logger.Debug("Métricas obtenidas",
		zap.Int64("total_requests", metrics.Requests.TotalRequests),
		zap.Int64("adjustments", metrics.Ledger.Applied))

	c.JSON(http.StatusOK, metrics)
}

// GetMetricsSummary versión resumida de las métricas
func (h *MonitoringHandler) GetMetricsSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitoringService.GetSummary())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMetrics envía las métricas periódicamente por WebSocket
func (h *MonitoringHandler) WebSocketMetrics(c *gin.Context) {
	logger := h.logger.With(zap.String("handler", "websocket_metrics"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Error actualizando a WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	logger.Info("Conexión WebSocket establecida")

	// el lector detecta el cierre del cliente
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(metricsPushInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ticker.C:
			metrics := h.monitoringService.GetMetrics(ctx)
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(metrics); err != nil {
				logger.Warn("Error enviando métricas por WebSocket", zap.Error(err))
				return
			}
		case <-closed:
			logger.Info("Conexión WebSocket cerrada por el cliente")
			return
		case <-ctx.Done():
			logger.Info("Conexión WebSocket cerrada por contexto")
			return
		}
	}
}

// RecordRequestMiddleware registra cada request en las métricas
func (h *MonitoringHandler) RecordRequestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// la ruta registrada agrupa los ids; las rutas desconocidas se agrupan juntas
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		if shouldSkipMonitoring(endpoint) {
			return
		}

		h.monitoringService.RecordRequest(models.RequestData{
			Endpoint:   endpoint,
			Method:     c.Request.Method,
			Duration:   time.Since(start),
			StatusCode: c.Writer.Status(),
			Timestamp:  start,
		})
	}
}

var excludedPaths = map[string]bool{
	"/api/v1/monitoring/metrics":         true,
	"/api/v1/monitoring/metrics/summary": true,
	"/api/v1/monitoring/ws":              true,
	"/health":                            true,
	"/":                                  true,
}

func shouldSkipMonitoring(path string) bool {
	return excludedPaths[path]
}
