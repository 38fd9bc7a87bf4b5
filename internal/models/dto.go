package models

import "github.com/shopspring/decimal"

// ===== REQUEST DTOs =====

// AdjustStockRequest DTO para un ajuste del ledger
type AdjustStockRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Direction string `json:"direction" validate:"required,oneof=in out"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
	UserID    string `json:"-"` // Se obtiene del header X-User-ID
}

// AdjustItem un producto dentro de un ajuste múltiple
type AdjustItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Direction string `json:"direction" validate:"required,oneof=in out"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
}

// AdjustMultipleRequest DTO para ajustes múltiples; notas y usuario se comparten
type AdjustMultipleRequest struct {
	Items  []AdjustItem `json:"items" validate:"required,min=1,dive"`
	Notes  string       `json:"notes" validate:"max=500"`
	UserID string       `json:"-"`
}

// CreateProductRequest DTO para alta de producto
type CreateProductRequest struct {
	CompanyID   string          `json:"company_id" validate:"required,uuid"`
	SKU         string          `json:"sku" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=255"`
	Barcode     *string         `json:"barcode" validate:"omitempty,max=64"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	MinQuantity int             `json:"min_quantity" validate:"gte=0"`
}

// UpdateProductRequest DTO para modificar metadatos (nunca la cantidad)
type UpdateProductRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Barcode     *string         `json:"barcode" validate:"omitempty,max=64"`
	Price       decimal.Decimal `json:"price"`
	MinQuantity int             `json:"min_quantity" validate:"gte=0"`
}

// SaleItem línea de venta; se identifica por product_id o por código de barras
type SaleItem struct {
	ProductID string `json:"product_id" validate:"required_without=Barcode,omitempty,uuid"`
	Barcode   string `json:"barcode" validate:"required_without=ProductID"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// QuickSaleRequest DTO para venta rápida (POS)
type QuickSaleRequest struct {
	Items  []SaleItem `json:"items" validate:"required,min=1,dive"`
	Notes  string     `json:"notes" validate:"max=500"`
	UserID string     `json:"-"`
}

// ImportRow fila de importación ya parseada
type ImportRow struct {
	Line        int
	SKU         string
	Name        string
	Barcode     *string
	Price       decimal.Decimal
	Quantity    int
	MinQuantity int
}

// ===== RESPONSE DTOs =====

// AdjustResponseData resultado de un ajuste
type AdjustResponseData struct {
	ProductID      string `json:"product_id"`
	Direction      string `json:"direction"`
	Amount         int    `json:"amount"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	MovementID     string `json:"movement_id,omitempty"`
	AuditRecorded  bool   `json:"audit_recorded"`
	Timestamp      string `json:"timestamp"`
}

// AdjustItemError error de procesamiento de un ítem
type AdjustItemError struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
}

// AdjustMultipleResponse respuesta para ajustes múltiples
type AdjustMultipleResponse struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	TotalProcessed int                  `json:"total_processed"`
	Results        []AdjustResponseData `json:"results"`
	Errors         []AdjustItemError    `json:"errors,omitempty"`
	Timestamp      string               `json:"timestamp"`
}

// SaleLineResult resultado de una línea de venta
type SaleLineResult struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	MovementID     string `json:"movement_id,omitempty"`
}

// QuickSaleResponse resultado de una venta rápida
type QuickSaleResponse struct {
	SaleID    string           `json:"sale_id"`
	Lines     []SaleLineResult `json:"lines"`
	ViaLedger bool             `json:"via_ledger"`
	Timestamp string           `json:"timestamp"`
}

// SaleProblem motivo por el que una línea no pasó la validación previa
type SaleProblem struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
	Reason    string `json:"reason"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// ImportRowError error de una fila del CSV
type ImportRowError struct {
	Line  int    `json:"line"`
	SKU   string `json:"sku,omitempty"`
	Error string `json:"error"`
}

// ImportResult resumen de una importación
type ImportResult struct {
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Failed    int              `json:"failed"`
	Errors    []ImportRowError `json:"errors,omitempty"`
	ViaLedger bool             `json:"via_ledger"`
}

// LowStockNotification mensaje enviado a los suscriptores de una empresa
type LowStockNotification struct {
	CompanyID     string         `json:"company_id"`
	LowStockCount int            `json:"low_stock_count"`
	Items         []LowStockItem `json:"items"`
	Timestamp     string         `json:"timestamp"`
}
