// Package events publica los hechos del ledger hacia sistemas externos.
package events

import (
	"context"
	"time"

	"stock-ledger/internal/models"

	"go.uber.org/zap"
)

// Publisher publica eventos de dominio. Un fallo al publicar nunca revierte el
// ajuste que lo originó.
type Publisher interface {
	Publish(ctx context.Context, event interface{}) error
	Close() error
}

// StockMovementRecordedEvent se emite tras cada ajuste aceptado por el ledger.
type StockMovementRecordedEvent struct {
	MovementID     string    `json:"movement_id,omitempty"`
	CompanyID      string    `json:"company_id"`
	ProductID      string    `json:"product_id"`
	MovementType   string    `json:"movement_type"`
	Quantity       int       `json:"quantity"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after"`
	Source         string    `json:"source"`
	Reference      string    `json:"reference,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	AuditRecorded  bool      `json:"audit_recorded"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SaleLine línea de una venta rápida
type SaleLine struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
}

// SaleCompletedEvent se emite al terminar una venta rápida del POS.
type SaleCompletedEvent struct {
	SaleID     string     `json:"sale_id"`
	CompanyID  string     `json:"company_id"`
	UserID     string     `json:"user_id,omitempty"`
	Lines      []SaleLine `json:"lines"`
	ViaLedger  bool       `json:"via_ledger"`
	Partial    bool       `json:"partial,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewStockMovementRecorded arma el evento a partir del movimiento registrado o,
// si la auditoría falló, de los datos del ajuste.
func NewStockMovementRecorded(companyID string, m *models.StockMovement, fallback models.StockMovement, audited bool) StockMovementRecordedEvent {
	src := fallback
	if m != nil {
		src = *m
	}
	return StockMovementRecordedEvent{
		MovementID:     src.ID,
		CompanyID:      companyID,
		ProductID:      src.ProductID,
		MovementType:   src.MovementType,
		Quantity:       src.Quantity,
		QuantityBefore: src.QuantityBefore,
		QuantityAfter:  src.QuantityAfter,
		Source:         src.Source,
		Reference:      src.Reference,
		UserID:         src.UserID,
		AuditRecorded:  audited,
		OccurredAt:     time.Now().UTC(),
	}
}

// LogPublisher registra los eventos en el log. Se usa cuando Kafka está deshabilitado.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event interface{}) error {
	p.logger.Debug("Event published",
		zap.String("event_type", eventType(event)),
		zap.String("key", partitionKey(event)),
		zap.Any("event", event))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

func eventType(event interface{}) string {
	switch event.(type) {
	case StockMovementRecordedEvent, *StockMovementRecordedEvent:
		return "StockMovementRecorded"
	case SaleCompletedEvent, *SaleCompletedEvent:
		return "SaleCompleted"
	default:
		return "Unknown"
	}
}

// partitionKey agrupa los eventos de un mismo producto (o venta) en una partición.
func partitionKey(event interface{}) string {
	switch e := event.(type) {
	case StockMovementRecordedEvent:
		return e.ProductID
	case *StockMovementRecordedEvent:
		return e.ProductID
	case SaleCompletedEvent:
		return e.SaleID
	case *SaleCompletedEvent:
		return e.SaleID
	default:
		return ""
	}
}
