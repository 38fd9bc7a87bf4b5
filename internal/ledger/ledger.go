// Package ledger mantiene products.quantity junto con su historial append-only
// de stock_movements. Cada ajuste lee la cantidad actual, valida, escribe la nueva
// cantidad y registra un movimiento con las fotos antes/después.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditMode define qué pasa cuando falla la inserción del movimiento.
type AuditMode string

const (
	// AuditBestEffort: dos escrituras independientes; si falla el movimiento se
	// registra la divergencia y el ajuste se reporta como exitoso.
	AuditBestEffort AuditMode = "best-effort"
	// AuditStrict: ambas escrituras en una transacción; sin movimiento no hay ajuste.
	AuditStrict AuditMode = "strict"
)

// ConcurrencyMode define cómo se escribe la cantidad.
type ConcurrencyMode string

const (
	// LastWriterWins sobrescribe la cantidad sin comprobar la versión.
	LastWriterWins ConcurrencyMode = "last-writer-wins"
	// Optimistic hace compare-and-swap sobre products.version y reintenta.
	Optimistic ConcurrencyMode = "optimistic"
)

// Store es la persistencia que necesita el ledger. GetProduct devuelve (nil, nil)
// cuando el producto no existe para la empresa.
type Store interface {
	GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error)
	SetQuantity(ctx context.Context, productID string, quantity int) error
	CompareAndSetQuantity(ctx context.Context, productID string, expectedVersion, quantity int) (bool, error)
	InsertMovement(ctx context.Context, movement *models.StockMovement) error
	ListProductMovements(ctx context.Context, companyID, productID string) ([]*models.StockMovement, error)
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Outcome clasifica el resultado de un intento de ajuste para métricas.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeRejected        Outcome = "rejected"
	OutcomeAuditDivergence Outcome = "audit_divergence"
	OutcomeAuditFailed     Outcome = "audit_failed"
	OutcomeVersionConflict Outcome = "version_conflict"
	OutcomeFailed          Outcome = "failed"
)

// Recorder recibe cada Outcome. Puede ser nil.
type Recorder interface {
	RecordAdjustment(outcome Outcome)
}

type Options struct {
	AuditMode   AuditMode
	Concurrency ConcurrencyMode
	// MaxRetries solo aplica en modo Optimistic.
	MaxRetries int
}

// AdjustRequest entrada de una operación del ledger
type AdjustRequest struct {
	CompanyID string
	ProductID string
	Direction string
	Amount    int
	Notes     string
	Source    string
	Reference string
	UserID    string
}

// AdjustResult salida de una operación aceptada
type AdjustResult struct {
	ProductID      string
	Direction      string
	Amount         int
	QuantityBefore int
	QuantityAfter  int
	// Product refleja la fila tras el ajuste.
	Product models.Product
	// Movement es nil cuando AuditRecorded es false.
	Movement      *models.StockMovement
	AuditRecorded bool
	Attempts      int
}

type Ledger struct {
	store    Store
	opts     Options
	recorder Recorder
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(store Store, opts Options, recorder Recorder, logger *zap.Logger) *Ledger {
	if opts.AuditMode == "" {
		opts.AuditMode = AuditBestEffort
	}
	if opts.Concurrency == "" {
		opts.Concurrency = LastWriterWins
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Ledger{
		store:    store,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Options devuelve los modos efectivos.
func (l *Ledger) Options() Options {
	return l.opts
}

// Apply calcula la cantidad resultante de un movimiento sin tocar el almacenamiento.
func Apply(before int, direction string, amount int) (int, error) {
	if amount <= 0 {
		return before, ErrInvalidAmount
	}
	switch direction {
	case models.MovementIn:
		return before + amount, nil
	case models.MovementOut:
		after := before - amount
		if after < 0 {
			return before, ErrInsufficientQuantity
		}
		return after, nil
	default:
		return before, ErrInvalidDirection
	}
}

// Adjust aplica un movimiento de entrada o salida sobre un producto.
func (l *Ledger) Adjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	logger := l.logger.With(
		zap.String("operation", "ledger_adjust"),
		zap.String("company_id", req.CompanyID),
		zap.String("product_id", req.ProductID),
		zap.String("direction", req.Direction),
		zap.Int("amount", req.Amount),
		zap.String("source", req.Source),
	)

	if _, err := Apply(0, req.Direction, req.Amount); err != nil && !errors.Is(err, ErrInsufficientQuantity) {
		logger.Info("Adjustment rejected", zap.Error(err))
		l.record(OutcomeRejected)
		return nil, err
	}
	if req.Source == "" {
		req.Source = models.SourceManual
	}

	attempts := 1
	if l.opts.Concurrency == Optimistic {
		attempts += l.opts.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := l.adjustOnce(ctx, req, logger)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		l.record(OutcomeVersionConflict)
		logger.Warn("Version conflict on quantity write",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (l *Ledger) adjustOnce(ctx context.Context, req AdjustRequest, logger *zap.Logger) (*AdjustResult, error) {
	if l.opts.AuditMode != AuditStrict {
		return l.apply(ctx, l.store, req, logger)
	}

	var result *AdjustResult
	err := l.store.WithinTx(ctx, func(tx Store) error {
		r, err := l.apply(ctx, tx, req, logger)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Ledger) apply(ctx context.Context, s Store, req AdjustRequest, logger *zap.Logger) (*AdjustResult, error) {
	product, err := s.GetProduct(ctx, req.CompanyID, req.ProductID)
	if err != nil {
		l.record(OutcomeFailed)
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		l.record(OutcomeRejected)
		return nil, ErrProductNotFound
	}

	before := product.Quantity
	after, err := Apply(before, req.Direction, req.Amount)
	if err != nil {
		logger.Info("Adjustment rejected",
			zap.Int("quantity_before", before),
			zap.Error(err))
		l.record(OutcomeRejected)
		return nil, err
	}

	if err := l.writeQuantity(ctx, s, product, after); err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			l.record(OutcomeFailed)
			logger.Error("Quantity update failed", zap.Error(err))
		}
		return nil, err
	}

	product.Quantity = after
	product.Version++

	movement := &models.StockMovement{
		ID:             l.newID(),
		CompanyID:      req.CompanyID,
		ProductID:      product.ID,
		MovementType:   req.Direction,
		Quantity:       req.Amount,
		QuantityBefore: before,
		QuantityAfter:  after,
		Source:         req.Source,
		Reference:      req.Reference,
		Notes:          req.Notes,
		UserID:         req.UserID,
		CreatedAt:      l.now(),
	}

	result := &AdjustResult{
		ProductID:      product.ID,
		Direction:      req.Direction,
		Amount:         req.Amount,
		QuantityBefore: before,
		QuantityAfter:  after,
		Product:        *product,
		AuditRecorded:  true,
	}

	if err := s.InsertMovement(ctx, movement); err != nil {
		if l.opts.AuditMode == AuditStrict {
			l.record(OutcomeAuditFailed)
			logger.Error("Movement insert failed, rolling back adjustment", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
		}

		// La cantidad ya cambió; el historial queda sin esta entrada.
		l.record(OutcomeAuditDivergence)
		logger.Warn("Audit divergence: quantity updated but movement not recorded",
			zap.Int("quantity_before", before),
			zap.Int("quantity_after", after),
			zap.Error(err))
		result.AuditRecorded = false
		return result, nil
	}

	result.Movement = movement
	l.record(OutcomeApplied)
	logger.Info("Adjustment applied",
		zap.Int("quantity_before", before),
		zap.Int("quantity_after", after),
		zap.String("movement_id", movement.ID))

	return result, nil
}

func (l *Ledger) writeQuantity(ctx context.Context, s Store, product *models.Product, quantity int) error {
	if l.opts.Concurrency == Optimistic {
		ok, err := s.CompareAndSetQuantity(ctx, product.ID, product.Version, quantity)
		if err != nil {
			return fmt.Errorf("update quantity: %w", err)
		}
		if !ok {
			return ErrVersionConflict
		}
		return nil
	}

	if err := s.SetQuantity(ctx, product.ID, quantity); err != nil {
		return fmt.Errorf("update quantity: %w", err)
	}
	return nil
}

func (l *Ledger) record(outcome Outcome) {
	if l.recorder != nil {
		l.recorder.RecordAdjustment(outcome)
	}
}
