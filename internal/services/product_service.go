package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/events"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductService catálogo de productos y búsqueda del POS
type ProductService interface {
	CreateProduct(ctx context.Context, req *models.CreateProductRequest, userID string) (*models.Product, error)
	UpdateProduct(ctx context.Context, companyID, productID string, req *models.UpdateProductRequest) (*models.Product, error)
	ListProducts(ctx context.Context, companyID string) ([]*models.Product, error)
	GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error)
}

type productService struct {
	productRepo   repository.ProductRepository
	ledger        StockLedger
	cache         *cache.ProductCache
	publisher     events.Publisher
	routeAllPaths bool
	logger        *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	l StockLedger,
	productCache *cache.ProductCache,
	publisher events.Publisher,
	routeAllPaths bool,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo:   productRepo,
		ledger:        l,
		cache:         productCache,
		publisher:     publisher,
		routeAllPaths: routeAllPaths,
		logger:        logger,
	}
}

// CreateProduct da de alta un producto. Con routeAllPaths la cantidad inicial
// entra como movimiento del ledger en lugar de escribirse en el insert.
func (s *productService) CreateProduct(ctx context.Context, req *models.CreateProductRequest, userID string) (*models.Product, error) {
	product := &models.Product{
		ID:          uuid.New().String(),
		CompanyID:   req.CompanyID,
		SKU:         strings.TrimSpace(req.SKU),
		Name:        strings.TrimSpace(req.Name),
		Barcode:     normalizeBarcode(req.Barcode),
		Price:       req.Price,
		Quantity:    req.Quantity,
		MinQuantity: req.MinQuantity,
	}

	opening := 0
	if s.routeAllPaths {
		opening, product.Quantity = product.Quantity, 0
	}

	result, err := createWithOpeningBalance(ctx, s.productRepo, s.ledger, product, opening, models.SourceManual, userID, s.logger)
	if err != nil {
		return nil, err
	}

	if result != nil {
		afterAdjust(ctx, s.cache, s.publisher, s.logger, product.CompanyID, result)
		product.Quantity = result.QuantityAfter
		product.Version = result.Product.Version
	}

	s.logger.Info("Product created",
		zap.String("company_id", product.CompanyID),
		zap.String("product_id", product.ID),
		zap.String("sku", product.SKU),
		zap.Int("quantity", product.Quantity))

	return product, nil
}

// UpdateProduct modifica nombre, código de barras, precio y mínimo.
func (s *productService) UpdateProduct(ctx context.Context, companyID, productID string, req *models.UpdateProductRequest) (*models.Product, error) {
	product := &models.Product{
		ID:          productID,
		CompanyID:   companyID,
		Name:        strings.TrimSpace(req.Name),
		Barcode:     normalizeBarcode(req.Barcode),
		Price:       req.Price,
		MinQuantity: req.MinQuantity,
	}

	previous, err := s.productRepo.UpdateProduct(ctx, product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrProductNotFound
		}
		return nil, err
	}

	invalidateBarcodes(ctx, s.cache, s.logger, product, previous)

	return product, nil
}

// invalidateBarcodes saca del caché el código de barras actual y, si cambió, el anterior.
func invalidateBarcodes(ctx context.Context, pc *cache.ProductCache, logger *zap.Logger, product *models.Product, previous *string) {
	if pc == nil {
		return
	}
	barcodes := []string{product.BarcodeValue()}
	if previous != nil && *previous != product.BarcodeValue() {
		barcodes = append(barcodes, *previous)
	}
	for _, barcode := range barcodes {
		if err := pc.InvalidateProduct(ctx, product.CompanyID, barcode); err != nil {
			logger.Warn("Cache invalidation failed",
				zap.String("product_id", product.ID),
				zap.String("barcode", barcode),
				zap.Error(err))
		}
	}
}

func (s *productService) ListProducts(ctx context.Context, companyID string) ([]*models.Product, error) {
	return s.productRepo.ListProducts(ctx, companyID)
}

// GetProductByBarcode búsqueda del POS: caché primero, luego base de datos.
func (s *productService) GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error) {
	if s.cache != nil {
		if product, err := s.cache.GetProduct(ctx, companyID, barcode); err == nil {
			return product, nil
		}
	}

	product, err := s.productRepo.GetProductByBarcode(ctx, companyID, barcode)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ledger.ErrProductNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.logger.Warn("Cache write failed", zap.String("barcode", barcode), zap.Error(err))
		}
	}

	return product, nil
}

func normalizeBarcode(barcode *string) *string {
	if barcode == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*barcode)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
