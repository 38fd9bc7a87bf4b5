package services

import (
	"context"
	"fmt"
	"time"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/events"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/repository"

	"go.uber.org/zap"
)

// StockLedger es la parte del ledger que usan los servicios.
type StockLedger interface {
	Adjust(ctx context.Context, req ledger.AdjustRequest) (*ledger.AdjustResult, error)
	Verify(ctx context.Context, companyID, productID string) (*ledger.VerifyReport, error)
}

// StockService define las operaciones de stock expuestas por HTTP
type StockService interface {
	Adjust(ctx context.Context, companyID string, req *models.AdjustStockRequest) (*models.AdjustResponseData, error)
	AdjustMultiple(ctx context.Context, companyID string, req *models.AdjustMultipleRequest) (*models.AdjustMultipleResponse, error)

	GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error)
	ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error)
	ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error)
	Verify(ctx context.Context, companyID, productID string) (*ledger.VerifyReport, error)
}

type stockService struct {
	ledger      StockLedger
	stockRepo   repository.StockRepository
	productRepo repository.ProductRepository
	cache       *cache.ProductCache
	publisher   events.Publisher
	logger      *zap.Logger
}

func NewStockService(
	l StockLedger,
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	productCache *cache.ProductCache,
	publisher events.Publisher,
	logger *zap.Logger,
) StockService {
	return &stockService{
		ledger:      l,
		stockRepo:   stockRepo,
		productRepo: productRepo,
		cache:       productCache,
		publisher:   publisher,
		logger:      logger,
	}
}

// Adjust aplica un ajuste manual a través del ledger
func (s *stockService) Adjust(ctx context.Context, companyID string, req *models.AdjustStockRequest) (*models.AdjustResponseData, error) {
	result, err := s.ledger.Adjust(ctx, ledger.AdjustRequest{
		CompanyID: companyID,
		ProductID: req.ProductID,
		Direction: req.Direction,
		Amount:    req.Amount,
		Notes:     req.Notes,
		Source:    models.SourceManual,
		UserID:    req.UserID,
	})
	if err != nil {
		return nil, err
	}

	afterAdjust(ctx, s.cache, s.publisher, s.logger, companyID, result)

	return toAdjustResponse(result), nil
}

// AdjustMultiple procesa cada ítem de forma independiente
func (s *stockService) AdjustMultiple(ctx context.Context, companyID string, req *models.AdjustMultipleRequest) (*models.AdjustMultipleResponse, error) {
	logger := s.logger.With(
		zap.String("operation", "adjust_multiple"),
		zap.String("company_id", companyID),
		zap.Int("items", len(req.Items)),
	)

	results := []models.AdjustResponseData{}
	itemErrors := []models.AdjustItemError{}

	for i, item := range req.Items {
		data, err := s.Adjust(ctx, companyID, &models.AdjustStockRequest{
			ProductID: item.ProductID,
			Direction: item.Direction,
			Amount:    item.Amount,
			Notes:     req.Notes,
			UserID:    req.UserID,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			itemErrors = append(itemErrors, models.AdjustItemError{
				Index:     i,
				ProductID: item.ProductID,
				Error:     err.Error(),
			})
			continue
		}
		results = append(results, *data)
	}

	success := len(itemErrors) == 0
	message := "Ajustes registrados correctamente"
	if !success {
		message = "Algunos productos no pudieron ser procesados"
	}

	logger.Info("Adjust multiple completed",
		zap.Int("processed", len(results)),
		zap.Int("failed", len(itemErrors)))

	return &models.AdjustMultipleResponse{
		Success:        success,
		Message:        message,
		TotalProcessed: len(results),
		Results:        results,
		Errors:         itemErrors,
		Timestamp:      time.Now().Format(time.RFC3339),
	}, nil
}

func (s *stockService) GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error) {
	product, err := s.stockRepo.GetProduct(ctx, companyID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ledger.ErrProductNotFound
	}
	return product, nil
}

func (s *stockService) ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error) {
	return s.productRepo.ListLowStock(ctx, companyID)
}

func (s *stockService) ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error) {
	return s.stockRepo.ListMovements(ctx, filter)
}

func (s *stockService) Verify(ctx context.Context, companyID, productID string) (*ledger.VerifyReport, error) {
	return s.ledger.Verify(ctx, companyID, productID)
}

// afterAdjust invalida el caché del POS y publica el movimiento. Ninguno de los
// dos puede hacer fallar un ajuste ya aplicado.
func afterAdjust(ctx context.Context, pc *cache.ProductCache, publisher events.Publisher, logger *zap.Logger, companyID string, result *ledger.AdjustResult) {
	if pc != nil {
		if err := pc.InvalidateProduct(ctx, companyID, result.Product.BarcodeValue()); err != nil {
			logger.Warn("Cache invalidation failed",
				zap.String("product_id", result.ProductID),
				zap.Error(err))
		}
	}

	if publisher == nil {
		return
	}

	fallback := models.StockMovement{
		ProductID:      result.ProductID,
		MovementType:   result.Direction,
		Quantity:       result.Amount,
		QuantityBefore: result.QuantityBefore,
		QuantityAfter:  result.QuantityAfter,
	}
	event := events.NewStockMovementRecorded(companyID, result.Movement, fallback, result.AuditRecorded)
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish stock movement event",
			zap.String("product_id", result.ProductID),
			zap.Error(err))
	}
}

func toAdjustResponse(result *ledger.AdjustResult) *models.AdjustResponseData {
	data := &models.AdjustResponseData{
		ProductID:      result.ProductID,
		Direction:      result.Direction,
		Amount:         result.Amount,
		QuantityBefore: result.QuantityBefore,
		QuantityAfter:  result.QuantityAfter,
		AuditRecorded:  result.AuditRecorded,
		Timestamp:      time.Now().Format(time.RFC3339),
	}
	if result.Movement != nil {
		data.MovementID = result.Movement.ID
	}
	return data
}

// openingBalance registra la cantidad inicial de un producto recién creado como
// un movimiento de entrada desde 0.
func openingBalance(ctx context.Context, l StockLedger, product *models.Product, quantity int, source, userID string) (*ledger.AdjustResult, error) {
	result, err := l.Adjust(ctx, ledger.AdjustRequest{
		CompanyID: product.CompanyID,
		ProductID: product.ID,
		Direction: models.MovementIn,
		Amount:    quantity,
		Notes:     "opening balance",
		Source:    source,
		UserID:    userID,
	})
	if err != nil {
		return nil, fmt.Errorf("opening balance for %s: %w", product.SKU, err)
	}
	return result, nil
}

// createWithOpeningBalance inserta el producto y, si opening > 0, registra el saldo
// inicial. Si el saldo falla el producto se elimina para que el alta pueda reintentarse.
func createWithOpeningBalance(
	ctx context.Context,
	productRepo repository.ProductRepository,
	l StockLedger,
	product *models.Product,
	opening int,
	source, userID string,
	logger *zap.Logger,
) (*ledger.AdjustResult, error) {
	if err := productRepo.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	if opening <= 0 {
		return nil, nil
	}

	result, err := openingBalance(ctx, l, product, opening, source, userID)
	if err != nil {
		// la compensación corre aunque el request se haya cancelado
		if delErr := productRepo.DeleteProduct(context.WithoutCancel(ctx), product.CompanyID, product.ID); delErr != nil {
			logger.Error("Failed to remove product after opening balance failure",
				zap.String("product_id", product.ID),
				zap.String("sku", product.SKU),
				zap.NamedError("opening_error", err),
				zap.Error(delErr))
		}
		return nil, err
	}
	return result, nil
}
