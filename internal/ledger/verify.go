package ledger

import (
	"context"
	"fmt"

	"stock-ledger/internal/models"

	"go.uber.org/zap"
)

// Motivos de ruptura de la cadena de movimientos
const (
	BreakBeforeMismatch = "quantity_before_mismatch"
	BreakAfterMismatch  = "quantity_after_mismatch"
)

// Break señala un movimiento que no encadena con el anterior o no cuadra consigo mismo.
type Break struct {
	Index      int    `json:"index"`
	MovementID string `json:"movement_id"`
	Reason     string `json:"reason"`
	Expected   int    `json:"expected"`
	Actual     int    `json:"actual"`
}

// VerifyReport resultado de reconstruir la cantidad de un producto desde su historial.
type VerifyReport struct {
	ProductID        string  `json:"product_id"`
	StoredQuantity   int     `json:"stored_quantity"`
	ReplayedQuantity int     `json:"replayed_quantity"`
	Movements        int     `json:"movements"`
	Consistent       bool    `json:"consistent"`
	Breaks           []Break `json:"breaks"`
}

// Replay recorre los movimientos en orden de creación partiendo del quantity_before
// del primero. Devuelve la cantidad reconstruida y las rupturas encontradas.
func Replay(movements []*models.StockMovement) (int, []Break) {
	breaks := []Break{}
	if len(movements) == 0 {
		return 0, breaks
	}

	current := movements[0].QuantityBefore
	for i, m := range movements {
		if m.QuantityBefore != current {
			breaks = append(breaks, Break{
				Index:      i,
				MovementID: m.ID,
				Reason:     BreakBeforeMismatch,
				Expected:   current,
				Actual:     m.QuantityBefore,
			})
		}

		delta := m.Quantity
		if m.MovementType == models.MovementOut {
			delta = -delta
		}
		if expected := m.QuantityBefore + delta; m.QuantityAfter != expected {
			breaks = append(breaks, Break{
				Index:      i,
				MovementID: m.ID,
				Reason:     BreakAfterMismatch,
				Expected:   expected,
				Actual:     m.QuantityAfter,
			})
		}

		current += delta
	}

	return current, breaks
}

// Verify compara la cantidad almacenada con la reconstruida desde stock_movements.
// Es de solo lectura: no corrige nada.
func (l *Ledger) Verify(ctx context.Context, companyID, productID string) (*VerifyReport, error) {
	product, err := l.store.GetProduct(ctx, companyID, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	movements, err := l.store.ListProductMovements(ctx, companyID, productID)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}

	report := &VerifyReport{
		ProductID:      product.ID,
		StoredQuantity: product.Quantity,
		Movements:      len(movements),
	}

	// Sin historial no hay nada que contradiga la cantidad almacenada.
	if len(movements) == 0 {
		report.ReplayedQuantity = product.Quantity
		report.Consistent = true
		report.Breaks = []Break{}
		return report, nil
	}

	report.ReplayedQuantity, report.Breaks = Replay(movements)
	report.Consistent = len(report.Breaks) == 0 && report.ReplayedQuantity == report.StoredQuantity

	if !report.Consistent {
		l.logger.Warn("Ledger inconsistency detected",
			zap.String("company_id", companyID),
			zap.String("product_id", productID),
			zap.Int("stored_quantity", report.StoredQuantity),
			zap.Int("replayed_quantity", report.ReplayedQuantity),
			zap.Int("breaks", len(report.Breaks)))
	}

	return report, nil
}
