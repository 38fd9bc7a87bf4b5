package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/events"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Motivos de rechazo de una línea de venta
const (
	SaleProblemNotFound     = "product_not_found"
	SaleProblemInsufficient = "insufficient_quantity"
)

// SaleValidationError la venta no pasó la validación previa; nada se descontó.
type SaleValidationError struct {
	Problems []models.SaleProblem
}

func (e *SaleValidationError) Error() string {
	reasons := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		reasons = append(reasons, fmt.Sprintf("item %d: %s", p.Index, p.Reason))
	}
	return "sale rejected: " + strings.Join(reasons, "; ")
}

// SalePartialError una línea falló después de la validación previa. Las líneas
// en Lines ya se descontaron y no se revierten.
type SalePartialError struct {
	SaleID      string
	FailedIndex int
	Lines       []models.SaleLineResult
	Err         error
}

func (e *SalePartialError) Error() string {
	return fmt.Sprintf("sale %s item %d: %v (%d lines applied)", e.SaleID, e.FailedIndex, e.Err, len(e.Lines))
}

func (e *SalePartialError) Unwrap() error {
	return e.Err
}

// SalesService ventas rápidas del POS
type SalesService interface {
	QuickSale(ctx context.Context, companyID string, req *models.QuickSaleRequest) (*models.QuickSaleResponse, error)
}

type salesService struct {
	ledger        StockLedger
	stockRepo     repository.StockRepository
	productRepo   repository.ProductRepository
	cache         *cache.ProductCache
	publisher     events.Publisher
	routeAllPaths bool
	logger        *zap.Logger
}

func NewSalesService(
	l StockLedger,
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	productCache *cache.ProductCache,
	publisher events.Publisher,
	routeAllPaths bool,
	logger *zap.Logger,
) SalesService {
	return &salesService{
		ledger:        l,
		stockRepo:     stockRepo,
		productRepo:   productRepo,
		cache:         productCache,
		publisher:     publisher,
		routeAllPaths: routeAllPaths,
		logger:        logger,
	}
}

// QuickSale valida que haya stock para todas las líneas y luego descuenta cada una.
// Con routeAllPaths cada línea es un movimiento "out" del ledger con source=sale y
// reference=id de venta; sin él se escribe la cantidad directamente.
func (s *salesService) QuickSale(ctx context.Context, companyID string, req *models.QuickSaleRequest) (*models.QuickSaleResponse, error) {
	saleID := uuid.New().String()
	logger := s.logger.With(
		zap.String("operation", "quick_sale"),
		zap.String("company_id", companyID),
		zap.String("sale_id", saleID),
		zap.Int("items", len(req.Items)),
		zap.Bool("via_ledger", s.routeAllPaths),
	)

	products, err := s.resolveItems(ctx, companyID, req.Items)
	if err != nil {
		return nil, err
	}
	if problems := checkAvailability(req.Items, products); len(problems) > 0 {
		logger.Info("Sale rejected by pre-check", zap.Int("problems", len(problems)))
		return nil, &SaleValidationError{Problems: problems}
	}

	lines := make([]models.SaleLineResult, 0, len(req.Items))
	for i, item := range req.Items {
		product := products[i]

		var line models.SaleLineResult
		if s.routeAllPaths {
			line, err = s.deductViaLedger(ctx, companyID, saleID, product, item.Quantity, req)
		} else {
			line, err = s.deductDirect(ctx, companyID, product, item.Quantity)
		}
		if err != nil {
			logger.Error("Sale line failed",
				zap.Int("index", i),
				zap.String("product_id", product.ID),
				zap.Int("lines_applied", len(lines)),
				zap.Error(err))
			if len(lines) > 0 {
				s.publishSale(ctx, companyID, saleID, req.UserID, lines, true, logger)
			}
			return nil, &SalePartialError{SaleID: saleID, FailedIndex: i, Lines: lines, Err: err}
		}
		lines = append(lines, line)
	}

	s.publishSale(ctx, companyID, saleID, req.UserID, lines, false, logger)

	logger.Info("Sale completed")

	return &models.QuickSaleResponse{
		SaleID:    saleID,
		Lines:     lines,
		ViaLedger: s.routeAllPaths,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

// resolveItems devuelve los productos alineados con items; nil si no existe.
func (s *salesService) resolveItems(ctx context.Context, companyID string, items []models.SaleItem) ([]*models.Product, error) {
	products := make([]*models.Product, len(items))
	for i, item := range items {
		var (
			product *models.Product
			err     error
		)
		if item.ProductID != "" {
			product, err = s.stockRepo.GetProduct(ctx, companyID, item.ProductID)
		} else {
			product, err = s.productRepo.GetProductByBarcode(ctx, companyID, item.Barcode)
		}
		if err != nil {
			return nil, err
		}
		products[i] = product
	}
	return products, nil
}

// checkAvailability suma las cantidades pedidas por producto antes de comparar,
// así dos líneas del mismo producto no pasan cada una por separado.
func checkAvailability(items []models.SaleItem, products []*models.Product) []models.SaleProblem {
	requested := make(map[string]int)
	for i, item := range items {
		if products[i] != nil {
			requested[products[i].ID] += item.Quantity
		}
	}

	var problems []models.SaleProblem
	reported := make(map[string]bool)
	for i, item := range items {
		product := products[i]
		if product == nil {
			problems = append(problems, models.SaleProblem{
				Index:     i,
				ProductID: item.ProductID,
				Barcode:   item.Barcode,
				Reason:    SaleProblemNotFound,
				Requested: item.Quantity,
			})
			continue
		}
		if total := requested[product.ID]; total > product.Quantity && !reported[product.ID] {
			reported[product.ID] = true
			problems = append(problems, models.SaleProblem{
				Index:     i,
				ProductID: product.ID,
				Barcode:   item.Barcode,
				Reason:    SaleProblemInsufficient,
				Available: product.Quantity,
				Requested: total,
			})
		}
	}
	return problems
}

func (s *salesService) deductViaLedger(ctx context.Context, companyID, saleID string, product *models.Product, quantity int, req *models.QuickSaleRequest) (models.SaleLineResult, error) {
	result, err := s.ledger.Adjust(ctx, ledger.AdjustRequest{
		CompanyID: companyID,
		ProductID: product.ID,
		Direction: models.MovementOut,
		Amount:    quantity,
		Notes:     req.Notes,
		Source:    models.SourceSale,
		Reference: saleID,
		UserID:    req.UserID,
	})
	if err != nil {
		return models.SaleLineResult{}, err
	}

	afterAdjust(ctx, s.cache, s.publisher, s.logger, companyID, result)

	line := models.SaleLineResult{
		ProductID:      product.ID,
		SKU:            product.SKU,
		Quantity:       quantity,
		QuantityBefore: result.QuantityBefore,
		QuantityAfter:  result.QuantityAfter,
	}
	if result.Movement != nil {
		line.MovementID = result.Movement.ID
	}
	return line, nil
}

// deductDirect descuenta sin registrar movimiento.
func (s *salesService) deductDirect(ctx context.Context, companyID string, product *models.Product, quantity int) (models.SaleLineResult, error) {
	current, err := s.stockRepo.GetProduct(ctx, companyID, product.ID)
	if err != nil {
		return models.SaleLineResult{}, err
	}
	if current == nil {
		return models.SaleLineResult{}, ledger.ErrProductNotFound
	}

	after := current.Quantity - quantity
	if after < 0 {
		return models.SaleLineResult{}, ledger.ErrInsufficientQuantity
	}
	if err := s.stockRepo.SetQuantity(ctx, product.ID, after); err != nil {
		return models.SaleLineResult{}, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateProduct(ctx, companyID, current.BarcodeValue()); err != nil {
			s.logger.Warn("Cache invalidation failed", zap.String("product_id", product.ID), zap.Error(err))
		}
	}

	return models.SaleLineResult{
		ProductID:      product.ID,
		SKU:            product.SKU,
		Quantity:       quantity,
		QuantityBefore: current.Quantity,
		QuantityAfter:  after,
	}, nil
}

// publishSale emite SaleCompleted con las líneas aplicadas; partial indica que
// la venta se cortó en una línea posterior.
func (s *salesService) publishSale(ctx context.Context, companyID, saleID, userID string, lines []models.SaleLineResult, partial bool, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}

	eventLines := make([]events.SaleLine, 0, len(lines))
	for _, l := range lines {
		eventLines = append(eventLines, events.SaleLine{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			QuantityBefore: l.QuantityBefore,
			QuantityAfter:  l.QuantityAfter,
		})
	}

	err := s.publisher.Publish(ctx, events.SaleCompletedEvent{
		SaleID:     saleID,
		CompanyID:  companyID,
		UserID:     userID,
		Lines:      eventLines,
		ViaLedger:  s.routeAllPaths,
		Partial:    partial,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to publish sale event", zap.Error(err))
	}
}
