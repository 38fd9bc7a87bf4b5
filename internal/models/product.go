package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa la tabla products. Quantity solo cambia a través del ledger
// (o de los caminos legacy de venta/importación cuando no se enrutan por él).
type Product struct {
	ID          string          `json:"id" db:"id"`
	CompanyID   string          `json:"company_id" db:"company_id"`
	SKU         string          `json:"sku" db:"sku"`
	Name        string          `json:"name" db:"name"`
	Barcode     *string         `json:"barcode,omitempty" db:"barcode"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	MinQuantity int             `json:"min_quantity" db:"min_quantity"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsLowStock indica si el producto está en o bajo su punto de reorden.
func (p *Product) IsLowStock() bool {
	return p.Quantity <= p.MinQuantity
}

// BarcodeValue devuelve el código de barras o "" si no tiene.
func (p *Product) BarcodeValue() string {
	if p.Barcode == nil {
		return ""
	}
	return *p.Barcode
}

// LowStockItem resumen para notificaciones
type LowStockItem struct {
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
}

// ToLowStockItem convierte un producto en su resumen de alerta.
func (p *Product) ToLowStockItem() LowStockItem {
	return LowStockItem{
		ProductID:   p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Quantity:    p.Quantity,
		MinQuantity: p.MinQuantity,
	}
}
