package handlers

import (
	"net/http"
	"sync"
	"time"

	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// tiempo máximo de una escritura WebSocket antes de descartar al cliente
const wsWriteWait = 10 * time.Second

// wsSubscriber serializa las escrituras sobre la conexión y les pone deadline.
type wsSubscriber struct {
	conn      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{conn: conn, writeWait: wsWriteWait}
}

func (s *wsSubscriber) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}

// NotificationHandler alertas de stock bajo
type NotificationHandler struct {
	notificationService services.NotificationService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// GetLowStockCount conteo de productos con stock bajo
func (h *NotificationHandler) GetLowStockCount(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	count, err := h.notificationService.LowStockCount(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Conteo de stock bajo", gin.H{
		"company_id":      companyID,
		"low_stock_count": count,
	})
}

// WebSocketNotifications suscribe la conexión a las alertas de la empresa
func (h *NotificationHandler) WebSocketNotifications(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	logger := h.logger.With(
		zap.String("handler", "websocket_notifications"),
		zap.String("company_id", companyID),
	)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Error actualizando a WebSocket", zap.Error(err))
		return
	}
	sub := newWSSubscriber(conn)
	defer sub.Close()

	if count, err := h.notificationService.LowStockCount(c.Request.Context(), companyID); err == nil {
		if err := sub.WriteJSON(gin.H{"company_id": companyID, "low_stock_count": count}); err != nil {
			return
		}
	}

	unsubscribe := h.notificationService.Subscribe(companyID, sub)
	defer unsubscribe()

	logger.Info("Suscriptor de notificaciones conectado")

	// solo se lee para detectar el cierre del cliente
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logger.Info("Suscriptor de notificaciones desconectado")
			return
		}
	}
}
