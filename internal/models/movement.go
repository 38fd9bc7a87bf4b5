package models

import (
	"time"
)

// Tipos de movimiento
const (
	MovementIn  = "in"
	MovementOut = "out"
)

// Origen del movimiento
const (
	SourceManual = "manual"
	SourceSale   = "sale"
	SourceImport = "import"
)

// StockMovement representa la tabla stock_movements (append-only).
type StockMovement struct {
	ID             string    `json:"id" db:"id"`
	CompanyID      string    `json:"company_id" db:"company_id"`
	ProductID      string    `json:"product_id" db:"product_id"`
	MovementType   string    `json:"movement_type" db:"movement_type"`
	Quantity       int       `json:"quantity" db:"quantity"`
	QuantityBefore int       `json:"quantity_before" db:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after" db:"quantity_after"`
	Source         string    `json:"source" db:"source"`
	Reference      string    `json:"reference,omitempty" db:"reference"`
	Notes          string    `json:"notes,omitempty" db:"notes"`
	UserID         string    `json:"user_id,omitempty" db:"user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// MovementFilter filtros para consultas de movimientos
type MovementFilter struct {
	CompanyID    string     `json:"company_id"`
	ProductID    *string    `json:"product_id,omitempty"`
	MovementType *string    `json:"movement_type,omitempty"`
	Source       *string    `json:"source,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}
